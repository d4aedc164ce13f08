package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"pipetter/internal/protocol"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun() *protocol.Run {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	return &protocol.Run{
		ID:            "run-1",
		StartedAt:     start,
		FinishedAt:    start.Add(3 * time.Second),
		TipsRequired:  14,
		TipsAvailable: 192,
		Batches: []protocol.BatchResult{
			{Compound: "Compound A", Index: 1, Size: 8, Volume: 400, Duration: time.Second},
			{Compound: "Compound A", Index: 2, Size: 2, Volume: 100, Duration: time.Second},
			{Compound: "Compound B", Index: 1, Size: 3, Volume: 60, Duration: time.Second},
		},
	}
}

func TestObserveRun_Success(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(testRun(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.batches.WithLabelValues("Compound A")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.transfers.WithLabelValues("Compound A")))
	assert.Equal(t, 60.0, testutil.ToFloat64(r.volume.WithLabelValues("Compound B")))
	assert.Equal(t, 14.0, testutil.ToFloat64(r.tipsRequired))
	assert.Equal(t, 192.0, testutil.ToFloat64(r.tipsAvailable))
	assert.Equal(t, 0, testutil.CollectAndCount(r.failures))
}

func TestObserveRun_TransferFailure(t *testing.T) {
	r := NewRecorder()
	err := &protocol.ProtocolError{RunID: "run-1", Stage: protocol.StageExecute, Err: &protocol.TransferError{
		Step:      protocol.StepAspirate,
		Compound:  "Compound A",
		Batch:     2,
		Positions: []string{"A1", "B1"},
		Cause:     errors.New("pressure fault"),
		Recovery:  protocol.RecoveryResult{Attempted: true},
	}}
	r.ObserveRun(testRun(), err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("execute", "aspirate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recoveries.WithLabelValues("released")))
}

func TestObserveRun_FailureLabels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage string
		step  string
	}{
		{"tip budget", &protocol.ProtocolError{Stage: protocol.StageTipBudget, Err: &protocol.TipBudgetError{Required: 8, Available: 7}}, "tip_budget", "none"},
		{"volume", &protocol.ProtocolError{Stage: protocol.StageExecute, Err: &protocol.VolumeError{Position: 1, Volume: 400, Max: 360}}, "execute", "validate"},
		{"unwrapped", errors.New("boom"), "unknown", "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder()
			r.ObserveRun(&protocol.Run{ID: "x"}, tt.err)
			assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues(tt.stage, tt.step)))
			assert.Equal(t, 0, testutil.CollectAndCount(r.recoveries))
		})
	}
}

func TestRecoveryLabel(t *testing.T) {
	assert.Equal(t, "skipped", recoveryLabel(protocol.RecoveryResult{}))
	assert.Equal(t, "released", recoveryLabel(protocol.RecoveryResult{Attempted: true}))
	assert.Equal(t, "failed", recoveryLabel(protocol.RecoveryResult{Attempted: true, Err: errors.New("x")}))
}

func TestObserveRun_Nil(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(nil, errors.New("not configured"))
	assert.Equal(t, 0, testutil.CollectAndCount(r.runs))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(testRun(), nil)
	path := filepath.Join(t.TempDir(), "textfile", "pipetter.prom")

	require.NoError(t, r.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pipetter_runs_total{outcome="success"} 1`)
	assert.Contains(t, string(data), `pipetter_dispensed_microliters_total{compound="Compound A"} 500`)
}
