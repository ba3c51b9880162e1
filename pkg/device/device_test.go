package device

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/newtron-network/ogctl/internal/testutil"
	"github.com/newtron-network/ogctl/pkg/audit"
	"github.com/newtron-network/ogctl/pkg/auth"
	"github.com/newtron-network/ogctl/pkg/metrics"
	"github.com/newtron-network/ogctl/pkg/stage"
	"github.com/newtron-network/ogctl/pkg/util"
)

// fakeLocker holds locks in memory.
type fakeLocker struct {
	holders map[string]string
	err     error
}

func (f *fakeLocker) Acquire(ctx context.Context, device, holder string, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.holders[device]; ok {
		return fmt.Errorf("%s: %w", device, util.ErrDeviceLocked)
	}
	f.holders[device] = holder
	return nil
}

func (f *fakeLocker) Release(ctx context.Context, device, holder string) error {
	if f.holders[device] == holder {
		delete(f.holders, device)
	}
	return nil
}

func newTestDevice(t *testing.T, opts ...Option) (*Device, *testutil.Appliance) {
	t.Helper()
	app := testutil.NewAppliance(map[string]string{
		"system.name": "og1",
		"ntp.server":  "1.1.1.1",
	})
	opts = append([]Option{WithChannel(app), WithUser("alice")}, opts...)
	d := New(Profile{Name: "og1"}, opts...)
	testutil.AssertNoError(t, d.Open(context.Background()), "open")
	t.Cleanup(func() { d.Close() })
	return d, app
}

func withAuditLog(t *testing.T) *audit.FileLogger {
	t.Helper()
	logger, err := audit.NewFileLogger(filepath.Join(t.TempDir(), "audit.log"), audit.Rotation{})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	audit.SetDefaultLogger(logger)
	t.Cleanup(func() {
		audit.SetDefaultLogger(nil)
		logger.Close()
	})
	return logger
}

func TestDevice_NotOpen(t *testing.T) {
	ctx := context.Background()
	d := New(Profile{Name: "og1"}, WithChannel(testutil.NewAppliance(nil)))

	checks := map[string]error{
		"read":     func() error { _, err := d.ReadConfig(ctx, stage.ScopeAll); return err }(),
		"load":     d.LoadMergeCandidate(ctx, stage.Source{Text: []string{"a 1"}}),
		"compare":  func() error { _, err := d.CompareConfig(ctx); return err }(),
		"commit":   d.CommitConfig(ctx),
		"discard":  d.DiscardConfig(ctx),
		"rollback": d.Rollback(ctx),
		"arp":      func() error { _, err := d.ARPTable(ctx, ""); return err }(),
	}
	for name, err := range checks {
		if !errors.Is(err, util.ErrPreconditionFailed) {
			t.Errorf("%s: error = %v, want precondition error", name, err)
		}
	}

	if d.IsAlive() {
		t.Error("IsAlive() should be false before Open")
	}
	if d.State() != stage.Idle {
		t.Errorf("State() = %s, want idle", d.State())
	}
	if err := d.Lock(ctx, "alice", time.Minute); !errors.Is(err, util.ErrNotConnected) {
		t.Errorf("Lock() error = %v, want ErrNotConnected", err)
	}
}

func TestDevice_LoadMissingSource(t *testing.T) {
	ctx := context.Background()

	closed := New(Profile{Name: "og1"}, WithChannel(testutil.NewAppliance(nil)))
	unlocked, unlockedApp := newTestDevice(t, WithLocker(&fakeLocker{holders: map[string]string{}}))
	open, openApp := newTestDevice(t)

	devices := map[string]*Device{"closed": closed, "unlocked": unlocked, "open": open}
	for name, d := range devices {
		for _, src := range []stage.Source{{}, {File: "a.conf", Text: []string{"a 1"}}} {
			err := d.LoadMergeCandidate(ctx, src)
			if !errors.Is(err, util.ErrMergeConfig) {
				t.Errorf("%s %+v: error = %v, want merge config error", name, src, err)
			}
		}
	}
	for _, app := range []*testutil.Appliance{unlockedApp, openApp} {
		testutil.AssertCommands(t, app.Sent(), nil)
	}
}

func TestDevice_ReadConfig(t *testing.T) {
	d, app := newTestDevice(t)

	cfg, err := d.ReadConfig(context.Background(), stage.ScopeAll)
	testutil.AssertNoError(t, err, "ReadConfig")
	if cfg.Running != cfg.Candidate || cfg.Running != app.Dump(testutil.ActivePath) {
		t.Errorf("Running/Candidate = %q/%q", cfg.Running, cfg.Candidate)
	}
	if cfg.Startup != stage.NotImplemented {
		t.Errorf("Startup = %q", cfg.Startup)
	}
}

func TestDevice_Lifecycle(t *testing.T) {
	ctx := context.Background()
	logger := withAuditLog(t)
	m := metrics.New()
	d, app := newTestDevice(t, WithMetrics(m), WithExecuteMode(true))
	before := app.Dump(testutil.ActivePath)

	testutil.AssertNoError(t, d.LoadMergeCandidate(ctx, stage.Source{Text: []string{"ntp.server 10.0.0.1"}}), "load")
	diff, err := d.CompareConfig(ctx)
	testutil.AssertNoError(t, err, "CompareConfig")
	if !strings.Contains(diff, "+ntp.server 10.0.0.1") {
		t.Errorf("diff = %q", diff)
	}

	testutil.AssertNoError(t, d.CommitConfig(ctx), "commit")
	if d.State() != stage.Committed {
		t.Errorf("State() = %s, want committed", d.State())
	}
	testutil.AssertNoError(t, d.DiscardConfig(ctx), "discard")
	testutil.AssertNoError(t, d.Rollback(ctx), "rollback")
	testutil.AssertNoError(t, d.Rollback(ctx), "second rollback")

	if d.State() != stage.Idle {
		t.Errorf("State() = %s, want idle", d.State())
	}
	if got := app.Dump(testutil.ActivePath); got != before {
		t.Errorf("active after rollback = %q, want %q", got, before)
	}

	events, err := logger.Query(audit.Filter{Device: "og1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	var ops []string
	for _, e := range events {
		ops = append(ops, e.Operation)
		if e.User != "alice" || !e.ExecuteMode {
			t.Errorf("%s event: User=%q ExecuteMode=%v", e.Operation, e.User, e.ExecuteMode)
		}
	}
	testutil.AssertCommands(t, ops, []string{"open", "load", "commit", "discard", "rollback", "rollback"})

	last := events[len(events)-1]
	if !last.Skipped || !last.Success {
		t.Errorf("second rollback event: Skipped=%v Success=%v", last.Skipped, last.Success)
	}
	if events[1].State != "staged" || len(events[1].Directives) != 1 {
		t.Errorf("load event: State=%q Directives=%v", events[1].State, events[1].Directives)
	}

	if got := promtestutil.ToFloat64(m.OperationsTotal.WithLabelValues("og1", "rollback", metrics.OutcomeSkipped)); got != 1 {
		t.Errorf("skipped rollbacks = %v, want 1", got)
	}
	if got := promtestutil.ToFloat64(m.CommandsTotal.WithLabelValues("og1", "ok")); got == 0 {
		t.Error("commands should be counted")
	}
}

func TestDevice_LoadFailureAudited(t *testing.T) {
	logger := withAuditLog(t)
	d, _ := newTestDevice(t)

	err := d.LoadMergeCandidate(context.Background(), stage.Source{Text: []string{"no.such.key"}})
	if !errors.Is(err, util.ErrMergeConfig) {
		t.Fatalf("err = %v, want merge error", err)
	}

	events, _ := logger.Query(audit.Filter{Operation: "load", Failures: true})
	if len(events) != 1 || !strings.Contains(events[0].Error, "not found") {
		t.Errorf("failed load events = %+v", events)
	}
}

func TestDevice_Lock(t *testing.T) {
	ctx := context.Background()
	locker := &fakeLocker{holders: map[string]string{}}
	d, _ := newTestDevice(t, WithLocker(locker))

	err := d.LoadMergeCandidate(ctx, stage.Source{Text: []string{"a 1"}})
	if !errors.Is(err, util.ErrPreconditionFailed) {
		t.Fatalf("load without lock: err = %v, want precondition error", err)
	}

	testutil.AssertNoError(t, d.Lock(ctx, "alice@host", time.Minute), "lock")
	if !d.IsLocked() || locker.holders["og1"] != "alice@host" {
		t.Fatalf("lock not taken: %v", locker.holders)
	}
	testutil.AssertNoError(t, d.Lock(ctx, "alice@host", time.Minute), "relock")
	testutil.AssertNoError(t, d.LoadMergeCandidate(ctx, stage.Source{Text: []string{"a 1"}}), "load")

	other, _ := newTestDevice(t, WithLocker(locker))
	if err := other.Lock(ctx, "bob@host", time.Minute); !errors.Is(err, util.ErrDeviceLocked) {
		t.Errorf("contended Lock() error = %v, want ErrDeviceLocked", err)
	}

	testutil.AssertNoError(t, d.Close(), "close")
	if d.IsLocked() || len(locker.holders) != 0 {
		t.Errorf("Close() should release the lock: %v", locker.holders)
	}
}

func TestDevice_UnlockWithoutLocker(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDevice(t)

	testutil.AssertNoError(t, d.Lock(ctx, "alice", time.Minute), "lock")
	if !d.IsLocked() {
		t.Error("IsLocked() should be true")
	}
	testutil.AssertNoError(t, d.Unlock(ctx), "unlock")
	testutil.AssertNoError(t, d.Unlock(ctx), "second unlock")
	if d.IsLocked() {
		t.Error("IsLocked() should be false")
	}
}

func TestDevice_IsAlive(t *testing.T) {
	m := metrics.New()
	d, app := newTestDevice(t, WithMetrics(m))

	if !d.IsAlive() {
		t.Error("IsAlive() = false, want true")
	}
	if got := promtestutil.ToFloat64(m.DeviceAlive.WithLabelValues("og1")); got != 1 {
		t.Errorf("alive gauge = %v", got)
	}

	app.Inactive = true
	if d.IsAlive() {
		t.Error("IsAlive() = true on inactive transport")
	}
	if got := promtestutil.ToFloat64(m.DeviceAlive.WithLabelValues("og1")); got != 0 {
		t.Errorf("alive gauge = %v", got)
	}
}

func TestDevice_ReopenResetsState(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDevice(t)

	testutil.AssertNoError(t, d.LoadMergeCandidate(ctx, stage.Source{Text: []string{"a 1"}}), "load")
	testutil.AssertNoError(t, d.Close(), "close")
	testutil.AssertNoError(t, d.Open(ctx), "reopen")
	if d.State() != stage.Idle {
		t.Errorf("State() after reopen = %s, want idle", d.State())
	}
}

func TestDevice_RedialAfterChannelDown(t *testing.T) {
	ctx := context.Background()
	d, app := newTestDevice(t)

	testutil.AssertNoError(t, d.LoadMergeCandidate(ctx, stage.Source{Text: []string{"a 1"}}), "load")
	app.FailOn["config -g config"] = errors.New("read timeout")
	app.Inactive = true
	if _, err := d.ReadConfig(ctx, stage.ScopeRunning); err == nil {
		t.Fatal("read on a failing channel should fail")
	}
	delete(app.FailOn, "config -g config")

	testutil.AssertNoError(t, d.Open(ctx), "open after channel down")
	if got := app.Opens(); got != 2 {
		t.Errorf("Opens() = %d, want 2 (redial)", got)
	}
	if d.State() != stage.Idle {
		t.Errorf("State() after redial = %s, want idle", d.State())
	}
	_, err := d.ReadConfig(ctx, stage.ScopeRunning)
	testutil.AssertNoError(t, err, "ReadConfig after redial")

	testutil.AssertNoError(t, d.Open(ctx), "open on a live channel")
	if got := app.Opens(); got != 2 {
		t.Errorf("Opens() = %d, want 2 (no redial while active)", got)
	}
}

func TestDevice_Authorization(t *testing.T) {
	ctx := context.Background()
	logger := withAuditLog(t)
	policy := &auth.Policy{
		UserGroups: map[string][]string{"ops": {"alice"}},
		Permissions: map[string][]string{
			"config.view": {"ops"},
			"config.load": {"ops"},
		},
	}
	d, app := newTestDevice(t, WithAuthorizer(auth.NewChecker(policy)))

	if _, err := d.ReadConfig(ctx, stage.ScopeRunning); err != nil {
		t.Fatalf("read: %v", err)
	}
	testutil.AssertNoError(t, d.LoadMergeCandidate(ctx, stage.Source{Text: []string{"ntp.server 2.2.2.2"}}), "load")

	err := d.CommitConfig(ctx)
	if !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("commit err = %v, want permission denied", err)
	}
	if n := app.Applied(); n != 0 {
		t.Errorf("applied %d times after denied commit", n)
	}
	if d.State() != stage.Staged {
		t.Errorf("State() = %s, want staged", d.State())
	}

	if _, err := d.ARPTable(ctx, ""); !errors.Is(err, util.ErrPermissionDenied) {
		t.Errorf("arp err = %v, want permission denied", err)
	}

	events, err := logger.Query(audit.Filter{Operation: string(audit.EventTypeCommit)})
	testutil.AssertNoError(t, err, "query")
	if len(events) != 1 || events[0].Success || !strings.Contains(events[0].Error, "config.commit") {
		t.Errorf("commit events = %+v", events)
	}
}
