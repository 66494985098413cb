package scheduler

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-backend/internal/logging"
	"studio-backend/internal/model"
)

func TestAdd_RejectsBadExpressions(t *testing.T) {
	s := New(time.UTC, logging.New("info", "text", &bytes.Buffer{}), time.Minute)
	assert.Error(t, s.Add("empty", "", nil))
	assert.Error(t, s.Add("bad", "every tuesday", nil))
	assert.NoError(t, s.Add("nightly", "0 30 23 * * *", func(context.Context) []model.OperationResult { return nil }))
	assert.NoError(t, s.Add("hourly", "@hourly", func(context.Context) []model.OperationResult { return nil }))
}

func TestRun_LogsFailedSteps(t *testing.T) {
	out := &bytes.Buffer{}
	s := New(time.UTC, logging.New("info", "json", out), time.Minute)

	var gotDeadline bool
	s.run("attendance", func(ctx context.Context) []model.OperationResult {
		_, gotDeadline = ctx.Deadline()
		return []model.OperationResult{
			{Success: true, Message: "fetched 4 punches, 2 new"},
			{Success: false, Message: "attendance pull for Lobby is already running"},
		}
	})

	require.True(t, gotDeadline)
	assert.Contains(t, out.String(), "already running")
	assert.Contains(t, out.String(), `"failed":1`)
	assert.Contains(t, out.String(), `"job":"attendance"`)
}
