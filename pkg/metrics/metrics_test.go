package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/newtron-network/ogctl/pkg/dispatch"
)

func TestForDevice(t *testing.T) {
	m := New()
	rec := m.ForDevice("og1")

	rec.ObserveCommand(dispatch.ResultOK)
	rec.ObserveCommand(dispatch.ResultOK)
	rec.ObserveCommand(dispatch.ResultInvalid)

	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("og1", "ok")); got != 2 {
		t.Errorf("ok commands = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("og1", "invalid")); got != 1 {
		t.Errorf("invalid commands = %v, want 1", got)
	}
}

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("og1", "commit", OutcomeOK, 200*time.Millisecond)
	m.ObserveOperation("og1", "commit", OutcomeSkipped, 0)
	m.ObserveOperation("og2", "load", OutcomeError, time.Second)

	expected := `
# HELP ogctl_operations_total Configuration lifecycle operations, by outcome
# TYPE ogctl_operations_total counter
ogctl_operations_total{device="og1",operation="commit",outcome="ok"} 1
ogctl_operations_total{device="og1",operation="commit",outcome="skipped"} 1
ogctl_operations_total{device="og2",operation="load",outcome="error"} 1
`
	if err := testutil.CollectAndCompare(m.OperationsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	// Skipped operations are not timed.
	if count := testutil.CollectAndCount(m.OperationDuration); count != 2 {
		t.Errorf("duration series = %d, want 2", count)
	}
}

func TestSetAlive(t *testing.T) {
	m := New()
	m.SetAlive("og1", true)
	m.SetAlive("og2", false)

	if got := testutil.ToFloat64(m.DeviceAlive.WithLabelValues("og1")); got != 1 {
		t.Errorf("og1 alive = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DeviceAlive.WithLabelValues("og2")); got != 0 {
		t.Errorf("og2 alive = %v, want 0", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ForDevice("og1").ObserveCommand(dispatch.ResultError)

	path := filepath.Join(t.TempDir(), "ogctl.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `ogctl_commands_total{device="og1",result="error"} 1`) {
		t.Errorf("textfile missing command counter:\n%s", data)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ForDevice("og1").ObserveCommand(dispatch.ResultOK)
	m.ObserveOperation("og1", "load", OutcomeOK, time.Second)
	m.SetAlive("og1", true)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteTextfile() on nil = %v", err)
	}
	if m.Registry() != nil {
		t.Error("Registry() on nil should be nil")
	}
}
