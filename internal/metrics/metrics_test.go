package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(workflowActions.WithLabelValues("final-approve", "ok"))
	RecordWorkflowAction("final-approve", "")
	assert.Equal(t, before+1, testutil.ToFloat64(workflowActions.WithLabelValues("final-approve", "ok")))

	before = testutil.ToFloat64(deviceOperations.WithLabelValues("restart", "failure"))
	RecordDeviceOperation("restart", false)
	assert.Equal(t, before+1, testutil.ToFloat64(deviceOperations.WithLabelValues("restart", "failure")))

	before = testutil.ToFloat64(punchesIngested)
	RecordPunchesIngested(0)
	RecordPunchesIngested(3)
	assert.Equal(t, before+3, testutil.ToFloat64(punchesIngested))
}

func TestHandlerExposesCounters(t *testing.T) {
	RecordAttendanceRows("machine", 2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "studio_attendance_rows_written_total")
}
