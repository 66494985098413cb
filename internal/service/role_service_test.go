package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
	"studio-backend/internal/workflow"
)

func TestRoles(t *testing.T) {
	svc := NewRoleService()

	roles := svc.ListRoles()
	require.Len(t, roles, len(model.AllRoles))
	for _, r := range roles {
		assert.NotEmpty(t, r.Description, r.Name)
		assert.NotNil(t, r.Transitions, r.Name)
	}

	engineer, err := svc.GetRole("sound_engineer")
	require.NoError(t, err)
	assert.ElementsMatch(t, []workflow.Action{
		workflow.ActionAcceptSoundEngineering,
		workflow.ActionCompleteSoundEngineering,
		workflow.ActionRejectBack,
	}, engineer.Actions)

	hr, err := svc.GetRole("hr")
	require.NoError(t, err)
	assert.Empty(t, hr.Actions)
	assert.Empty(t, hr.Transitions)

	_, err = svc.GetRole("manager")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
