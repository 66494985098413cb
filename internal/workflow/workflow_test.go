package workflow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/apperr"
	"studio-backend/internal/model"
)

func submissionIn(state model.SubmissionState, owner uuid.UUID) *model.Submission {
	return &model.Submission{ID: uuid.New(), MusicArrangerID: owner, CurrentState: state}
}

func TestTableTargetsAreKnownStates(t *testing.T) {
	for _, r := range Rules() {
		assert.True(t, r.Role.Valid(), r.Action)
		for _, s := range append(append([]model.SubmissionState{}, r.From...), r.To...) {
			assert.True(t, s.Valid(), "%s references %q", r.Action, s)
		}
	}
}

func TestWrongRoleIsAlwaysForbidden(t *testing.T) {
	owner := uuid.New()
	for _, r := range Rules() {
		for _, role := range model.AllRoles {
			if role == r.Role {
				continue
			}
			for _, state := range model.AllStates {
				caller := model.Caller{ID: owner, Role: role}
				_, err := Authorize(caller, r.Action, submissionIn(state, owner))
				require.Error(t, err)
				assert.Equal(t, apperr.CodeForbidden, apperr.Code(err), "%s by %s in %s", r.Action, role, state)
			}
		}
	}
}

func TestPreconditionStateMatrix(t *testing.T) {
	owner := uuid.New()
	for _, r := range Rules() {
		if len(r.From) == 0 {
			continue
		}
		caller := model.Caller{ID: owner, Role: r.Role}
		for _, state := range model.AllStates {
			_, err := Authorize(caller, r.Action, submissionIn(state, owner))
			if contains(r.From, state) {
				assert.NoError(t, err, "%s in %s", r.Action, state)
			} else {
				assert.Equal(t, apperr.CodeInvalidState, apperr.Code(err), "%s in %s", r.Action, state)
			}
		}
	}
}

func TestRejectNotAllowedFromTerminalStates(t *testing.T) {
	producer := model.Caller{ID: uuid.New(), Role: model.RoleProducer}
	for _, s := range []model.SubmissionState{model.StateCompleted, model.StateRejected} {
		_, err := Authorize(producer, ActionReject, submissionIn(s, uuid.New()))
		assert.True(t, apperr.Is(err, apperr.CodeInvalidState))
	}
}

func TestOwnerOnlyActions(t *testing.T) {
	owner := uuid.New()
	other := model.Caller{ID: uuid.New(), Role: model.RoleMusicArranger}
	s := submissionIn(model.StateArranging, owner)

	_, err := Authorize(other, ActionSubmitArrangement, s)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = Authorize(model.Caller{ID: owner, Role: model.RoleMusicArranger}, ActionSubmitArrangement, s)
	assert.NoError(t, err)
}

func TestOwnershipCheckedBeforeState(t *testing.T) {
	s := submissionIn(model.StateCompleted, uuid.New())
	_, err := Authorize(model.Caller{ID: uuid.New(), Role: model.RoleMusicArranger}, ActionDelete, s)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestAssignedEngineerOnly(t *testing.T) {
	assigned := uuid.New()
	s := submissionIn(model.StateSoundEngineering, uuid.New())
	s.AssignedSoundEngineerID = &assigned

	_, err := Authorize(model.Caller{ID: uuid.New(), Role: model.RoleSoundEngineer}, ActionAcceptSoundEngineering, s)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = Authorize(model.Caller{ID: assigned, Role: model.RoleSoundEngineer}, ActionAcceptSoundEngineering, s)
	assert.NoError(t, err)
}

func TestAllowedActions(t *testing.T) {
	owner := uuid.New()
	s := submissionIn(model.StateSubmitted, owner)

	producer := AllowedActions(model.Caller{ID: uuid.New(), Role: model.RoleProducer}, s)
	assert.ElementsMatch(t, []Action{ActionTake, ActionModify, ActionApprove, ActionReject}, producer)

	arranger := AllowedActions(model.Caller{ID: owner, Role: model.RoleMusicArranger}, s)
	assert.ElementsMatch(t, []Action{ActionUpdate, ActionDelete, ActionStartArranging}, arranger)

	assert.Empty(t, AllowedActions(model.Caller{ID: uuid.New(), Role: model.RoleHR}, s))
}

func TestResolveTransition(t *testing.T) {
	r, err := ResolveTransition(model.RoleProducer, model.StateSubmitted, model.StateProducerReview)
	require.NoError(t, err)
	assert.Equal(t, ActionTake, r.Action)

	r, err = ResolveTransition(model.RoleSoundEngineer, model.StateSoundEngineering, model.StateArranging)
	require.NoError(t, err)
	assert.Equal(t, ActionRejectBack, r.Action)
	assert.True(t, r.Notes)

	_, err = ResolveTransition(model.RoleProducer, model.StateSoundEngineering, model.StateArranging)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = ResolveTransition(model.RoleProducer, model.StateCompleted, model.StateSubmitted)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidState))

	_, err = ResolveTransition(model.RoleSinger, model.StateSubmitted, model.StateArranging)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	_, err = ResolveTransition(model.RoleProducer, model.StateSubmitted, "teleported")
	assert.True(t, apperr.Is(err, apperr.CodeValidationFailed))
}

func TestPayloadActionsHaveNoGenericEdge(t *testing.T) {
	_, err := ResolveTransition(model.RoleMusicArranger, model.StateArranging, model.StateArrangementReview)
	assert.Error(t, err)

	_, err = ResolveTransition(model.RoleCreative, model.StateCreativeWork, model.StateFinalApproval)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestActorRule(t *testing.T) {
	assert.True(t, ActorRule(model.RoleMusicArranger).Owner)
	assert.False(t, ActorRule(model.RoleProducer).Owner)
	assert.False(t, ActorRule(model.RoleSoundEngineer).Owner)

	engineer := uuid.New()
	s := submissionIn(model.StateSoundEngineering, uuid.New())
	s.AssignedSoundEngineerID = &engineer
	err := CheckActor(model.Caller{ID: uuid.New(), Role: model.RoleSoundEngineer}, ActorRule(model.RoleSoundEngineer), s)
	assert.Equal(t, apperr.CodeForbidden, apperr.Code(err))
}
