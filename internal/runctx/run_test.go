package runctx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemadocs/internal/apperr"
	"github.com/tordrt/schemadocs/internal/logging"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		t := current
		current = current.Add(step)
		return t
	}
}

func TestRunRecordsOutcomes(t *testing.T) {
	r := New(logging.Discard())
	require.NotEmpty(t, r.ID)

	r.Succeeded(PhaseConnect, "sales")
	r.Succeeded(PhaseCatalog, "sales.public.orders")
	r.Skipped(PhaseCatalog, "sales.public.audit", "permission denied")
	r.Failed(PhaseDictionary, "sales", apperr.Export("write workbook", "sales", errors.New("disk full")))

	outcomes := r.Outcomes()
	require.Len(t, outcomes, 4)
	assert.Equal(t, StatusFailed, outcomes[3].Status)
	assert.Equal(t, apperr.KindExport, outcomes[3].Kind)

	s := r.Summary()
	assert.Equal(t, PhaseSummary{Phase: PhaseCatalog, Succeeded: 1, Skipped: 1}, s.Phase(PhaseCatalog))
	assert.Equal(t, 1, s.Phase(PhaseDictionary).Failed)
	assert.Equal(t, 1, s.FailedTotal())
	assert.Len(t, s.Phases, len(Phases))
}

func TestRunMetrics(t *testing.T) {
	r := New(logging.Discard())

	r.Succeeded(PhasePublish, "Docs A")
	r.Succeeded(PhasePublish, "Docs B")
	r.Failed(PhasePrune, "Docs A", errors.New("delete failed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.units.WithLabelValues("publish", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.units.WithLabelValues("prune", "failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.units.WithLabelValues("diagram", "skipped")))

	// every phase/status pair is pre-registered
	assert.Equal(t, len(Phases)*3+1, testutil.CollectAndCount(r.Registry()))
}

func TestWriteMetrics(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := New(logging.Discard(), WithClock(fixedClock(start, 2*time.Second)))
	r.Succeeded(PhaseConnect, "sales")

	path := filepath.Join(t.TempDir(), "schemadocs.prom")
	require.NoError(t, r.WriteMetrics(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `schemadocs_units_total{phase="connect",status="succeeded"} 1`)
	assert.Contains(t, text, "schemadocs_run_duration_seconds")
}

func TestSummaryRender(t *testing.T) {
	r := New(logging.Discard())
	r.Succeeded(PhaseConnect, "sales")
	r.Failed(PhaseConnect, "crm", apperr.Connection("crm", errors.New("host unreachable")))

	out := r.Summary().Render()
	assert.Contains(t, out, "PHASE")
	assert.Contains(t, out, "connect")
	assert.Contains(t, out, "FAILED connect crm")
	assert.True(t, strings.HasPrefix(out, "Run "+r.ID))
}
