package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newtron-network/ogctl/pkg/audit"
	"github.com/newtron-network/ogctl/pkg/auth"
	"github.com/newtron-network/ogctl/pkg/channel"
	"github.com/newtron-network/ogctl/pkg/dispatch"
	"github.com/newtron-network/ogctl/pkg/lock"
	"github.com/newtron-network/ogctl/pkg/metrics"
	"github.com/newtron-network/ogctl/pkg/stage"
	"github.com/newtron-network/ogctl/pkg/util"
)

// Device runs configuration lifecycle operations on one appliance.
type Device struct {
	Name    string
	Profile Profile

	session    *Session
	dispatcher *dispatch.Dispatcher
	engine     *stage.Engine

	metrics    *metrics.Metrics
	authz      Authorizer
	locker     lock.Locker
	lockHolder string
	locked     bool
	user       string
	execute    bool

	mu sync.Mutex
}

// Authorizer decides whether user may perform perm on device.
// *auth.Checker implements it.
type Authorizer interface {
	Check(user string, perm auth.Permission, device string) error
}

// Option configures a Device.
type Option func(*Device)

// WithMetrics records commands and operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Device) { d.metrics = m }
}

// WithAuthorizer checks every operation against a.
func WithAuthorizer(a Authorizer) Option {
	return func(d *Device) { d.authz = a }
}

// WithLocker requires Lock before any change and uses l to take it.
func WithLocker(l lock.Locker) Option {
	return func(d *Device) { d.locker = l }
}

// WithUser sets the user recorded in audit events.
func WithUser(user string) Option {
	return func(d *Device) { d.user = user }
}

// WithExecuteMode marks audit events as coming from an executing (-x) run.
func WithExecuteMode(execute bool) Option {
	return func(d *Device) { d.execute = execute }
}

// WithChannel uses ch instead of building one from the profile.
func WithChannel(ch channel.Channel) Option {
	return func(d *Device) { d.session = NewSessionWithChannel(d.Name, ch) }
}

// New creates a closed device.
func New(p Profile, opts ...Option) *Device {
	d := &Device{Name: p.Name, Profile: p}
	for _, opt := range opts {
		opt(d)
	}
	if d.session == nil {
		d.session = NewSession(p)
	}
	return d
}

// Open connects to the device. Lifecycle state starts at Idle on every open.
// An open device whose channel has gone down is reconnected.
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session.IsActive() {
		return nil
	}
	if d.session.IsOpen() {
		util.WithDevice(d.Name).Warn("Channel down, reconnecting")
		d.dispatcher = nil
		d.engine = nil
	}

	start := time.Now()
	err := d.session.Open(ctx)
	d.audit(audit.EventTypeOpen, start, err, false)
	if err != nil {
		return err
	}

	d.dispatcher = dispatch.New(d.session.Channel(), d.Name).WithRecorder(d.metrics.ForDevice(d.Name))
	d.engine = stage.New(d.dispatcher, d.Name, d.Profile.Layout)
	util.WithDevice(d.Name).Info("Connected")
	return nil
}

// Close releases the lock if held and closes the session.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.session.IsOpen() {
		return nil
	}
	if d.locked {
		if err := d.unlock(context.Background()); err != nil {
			util.WithDevice(d.Name).Warnf("Failed to release lock: %v", err)
		}
	}

	start := time.Now()
	err := d.session.Close()
	d.audit(audit.EventTypeClose, start, err, false)
	d.dispatcher = nil
	d.engine = nil
	util.WithDevice(d.Name).Info("Disconnected")
	return err
}

// IsOpen reports whether the session is open.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.IsOpen()
}

// IsAlive probes the session. It never fails.
func (d *Device) IsAlive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	alive := d.session.IsAlive()
	d.metrics.SetAlive(d.Name, alive)
	return alive
}

// State returns the lifecycle state, Idle when closed.
func (d *Device) State() stage.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return stage.Idle
	}
	return d.engine.State()
}

// SessionID identifies the current open session.
func (d *Device) SessionID() string {
	return d.session.ID()
}

// Lock takes the device lock. Without a locker it only marks the device
// locked.
func (d *Device) Lock(ctx context.Context, holder string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.session.IsOpen() {
		return util.ErrNotConnected
	}
	if d.locked {
		return nil
	}

	start := time.Now()
	err := d.authorize(auth.PermDeviceLock)
	if err == nil && d.locker != nil {
		err = d.locker.Acquire(ctx, d.Name, holder, ttl)
	}
	d.audit(audit.EventTypeLock, start, err, false)
	if err != nil {
		return err
	}

	d.locked = true
	d.lockHolder = holder
	util.WithDevice(d.Name).Debugf("Lock acquired by %s", holder)
	return nil
}

// Unlock releases the device lock.
func (d *Device) Unlock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unlock(ctx)
}

func (d *Device) unlock(ctx context.Context) error {
	if !d.locked {
		return nil
	}

	start := time.Now()
	var err error
	if d.locker != nil && d.lockHolder != "" {
		err = d.locker.Release(ctx, d.Name, d.lockHolder)
	}
	d.audit(audit.EventTypeUnlock, start, err, false)

	d.locked = false
	d.lockHolder = ""
	util.WithDevice(d.Name).Debug("Lock released")
	return err
}

// IsLocked reports whether this device holds its lock.
func (d *Device) IsLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

func (d *Device) requireOpen(op string) error {
	if !d.session.IsOpen() {
		return util.NewPreconditionError(op, d.Name, "device must be connected", "call Open first")
	}
	return nil
}

// requireWritable checks the session is open and, when a locker is
// configured, that the lock is held.
func (d *Device) requireWritable(op string) error {
	if err := d.requireOpen(op); err != nil {
		return err
	}
	if d.locker != nil && !d.locked {
		return util.NewPreconditionError(op, d.Name, "device must be locked for changes", "call Lock first")
	}
	return nil
}

// ReadConfig returns the configurations selected by scope.
func (d *Device) ReadConfig(ctx context.Context, scope stage.Scope) (*stage.Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.requireOpen("read config"); err != nil {
		return nil, err
	}
	if err := d.authorize(auth.PermConfigView); err != nil {
		return nil, err
	}
	return d.engine.Read(ctx, scope)
}

// LoadMergeCandidate stages a candidate on the device. A source without
// exactly one of file and text fails with *util.MergeConfigError before the
// session is checked.
func (d *Device) LoadMergeCandidate(ctx context.Context, src stage.Source) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := src.Validate(); err != nil {
		return err
	}
	if err := d.requireWritable(string(stage.OpLoad)); err != nil {
		return err
	}

	start := time.Now()
	err := d.authorize(auth.PermConfigLoad)
	if err == nil {
		err = d.engine.LoadCandidate(ctx, src)
	}

	event := d.newEvent(audit.EventTypeLoad, start, err, false).
		WithDirectives(src.Text).
		WithSource(src.File)
	d.log(event)
	d.observe(string(stage.OpLoad), start, err, false)
	return err
}

// CompareConfig returns the unified diff of the staged change, or "" when
// nothing is staged.
func (d *Device) CompareConfig(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.requireOpen("compare config"); err != nil {
		return "", err
	}
	if err := d.authorize(auth.PermConfigView); err != nil {
		return "", err
	}
	return d.engine.Compare(ctx)
}

// CommitConfig applies the staged change. It does nothing when nothing is
// staged.
func (d *Device) CommitConfig(ctx context.Context) error {
	return d.transition(ctx, stage.OpCommit, audit.EventTypeCommit)
}

// DiscardConfig drops the staged change. It does nothing when nothing is
// staged.
func (d *Device) DiscardConfig(ctx context.Context) error {
	return d.transition(ctx, stage.OpDiscard, audit.EventTypeDiscard)
}

// Rollback restores the configuration from before the last commit. It does
// nothing when no commit is in effect.
func (d *Device) Rollback(ctx context.Context) error {
	return d.transition(ctx, stage.OpRollback, audit.EventTypeRollback)
}

func (d *Device) transition(ctx context.Context, op stage.Op, et audit.EventType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.requireWritable(string(op)); err != nil {
		return err
	}

	_, applicable := stage.Transition(d.engine.State(), op)
	start := time.Now()

	var err error
	switch op {
	case stage.OpCommit:
		if err = d.authorize(auth.PermConfigCommit); err == nil {
			err = d.engine.Commit(ctx)
		}
	case stage.OpDiscard:
		if err = d.authorize(auth.PermConfigDiscard); err == nil {
			err = d.engine.Discard(ctx)
		}
	case stage.OpRollback:
		if err = d.authorize(auth.PermConfigRollback); err == nil {
			err = d.engine.Rollback(ctx)
		}
	}

	d.log(d.newEvent(et, start, err, !applicable))
	d.observe(string(op), start, err, !applicable)
	return err
}

func (d *Device) authorize(perm auth.Permission) error {
	if d.authz == nil {
		return nil
	}
	return d.authz.Check(d.user, perm, d.Name)
}

func (d *Device) newEvent(et audit.EventType, start time.Time, err error, skipped bool) *audit.Event {
	event := audit.NewEvent(d.user, d.Name, et).
		WithSession(d.session.ID()).
		WithSkipped(skipped).
		WithExecuteMode(d.execute).
		WithDuration(time.Since(start)).
		WithResult(err)
	if d.engine != nil {
		event.WithState(d.engine.State().String())
	}
	return event
}

func (d *Device) audit(et audit.EventType, start time.Time, err error, skipped bool) {
	d.log(d.newEvent(et, start, err, skipped))
}

func (d *Device) log(event *audit.Event) {
	if err := audit.Log(event); err != nil {
		util.WithDevice(d.Name).Warnf("audit log: %v", err)
	}
}

func (d *Device) observe(op string, start time.Time, err error, skipped bool) {
	outcome := metrics.OutcomeOK
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case skipped:
		outcome = metrics.OutcomeSkipped
	}
	d.metrics.ObserveOperation(d.Name, op, outcome, time.Since(start))
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Profile.Channel.Address())
}
