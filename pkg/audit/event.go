// Package audit records configuration lifecycle operations as JSON lines.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one audited lifecycle operation on a device.
type Event struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	User        string        `json:"user"`
	Device      string        `json:"device"`
	Operation   string        `json:"operation"`
	Directives  []string      `json:"directives,omitempty"`
	Source      string        `json:"source,omitempty"`
	State       string        `json:"state,omitempty"`
	Skipped     bool          `json:"skipped,omitempty"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	ExecuteMode bool          `json:"execute_mode"`
	DryRun      bool          `json:"dry_run"`
	Duration    time.Duration `json:"duration"`
	SessionID   string        `json:"session_id,omitempty"`
}

// EventType names an audited operation.
type EventType string

const (
	EventTypeOpen     EventType = "open"
	EventTypeClose    EventType = "close"
	EventTypeLock     EventType = "lock"
	EventTypeUnlock   EventType = "unlock"
	EventTypeLoad     EventType = "load"
	EventTypeCommit   EventType = "commit"
	EventTypeDiscard  EventType = "discard"
	EventTypeRollback EventType = "rollback"
)

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	Device    string
	User      string
	Operation string
	SessionID string
	Since     time.Time
	Failures  bool // only failed operations
	Limit     int  // keep the newest Limit matches
}

// Match reports whether e passes every set field of f except Limit.
func (f Filter) Match(e *Event) bool {
	switch {
	case f.Device != "" && e.Device != f.Device,
		f.User != "" && e.User != f.User,
		f.Operation != "" && e.Operation != f.Operation,
		f.SessionID != "" && e.SessionID != f.SessionID,
		!f.Since.IsZero() && e.Timestamp.Before(f.Since),
		f.Failures && e.Success:
		return false
	}
	return true
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(user, device string, op EventType) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: string(op),
	}
}

// WithDirectives records the candidate lines of a load.
func (e *Event) WithDirectives(lines []string) *Event {
	e.Directives = append([]string(nil), lines...)
	return e
}

// WithSource records where a candidate came from, usually a file path.
func (e *Event) WithSource(source string) *Event {
	e.Source = source
	return e
}

// WithState records the lifecycle state after the operation.
func (e *Event) WithState(state string) *Event {
	e.State = state
	return e
}

// WithSkipped marks an operation that was not applicable and sent nothing.
func (e *Event) WithSkipped(skipped bool) *Event {
	e.Skipped = skipped
	return e
}

// WithSession ties the event to one device session.
func (e *Event) WithSession(id string) *Event {
	e.SessionID = id
	return e
}

func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event failed. A nil err leaves Error empty.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithResult is WithSuccess when err is nil and WithError otherwise.
func (e *Event) WithResult(err error) *Event {
	if err != nil {
		return e.WithError(err)
	}
	return e.WithSuccess()
}

func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// WithExecuteMode records whether -x was given.
func (e *Event) WithExecuteMode(execute bool) *Event {
	e.ExecuteMode = execute
	e.DryRun = !execute
	return e
}
