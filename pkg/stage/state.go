package stage

// State is the lifecycle position of a device's configuration.
//
//	Idle       nothing staged, nothing committed
//	Staged     candidate loaded, not committed
//	Committed  candidate loaded and committed; discard or rollback possible
//	Applied    committed and the stage discarded; rollback still possible
type State int

const (
	Idle State = iota
	Staged
	Committed
	Applied
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Staged:
		return "staged"
	case Committed:
		return "committed"
	case Applied:
		return "applied"
	}
	return "unknown"
}

// Loaded reports whether a backup snapshot is held for a staged candidate.
func (s State) Loaded() bool {
	return s == Staged || s == Committed
}

// Changed reports whether a commit happened that has not been rolled back.
func (s State) Changed() bool {
	return s == Committed || s == Applied
}

// Op is a lifecycle operation.
type Op string

const (
	OpLoad     Op = "load"
	OpCommit   Op = "commit"
	OpDiscard  Op = "discard"
	OpRollback Op = "rollback"
)

// Transition returns the state after op. ok is false when op is not defined
// for s; callers treat that as a no-op and send nothing to the device.
func Transition(s State, op Op) (next State, ok bool) {
	switch op {
	case OpLoad:
		if s.Changed() {
			return Committed, true
		}
		return Staged, true
	case OpCommit:
		if s.Loaded() {
			return Committed, true
		}
	case OpDiscard:
		switch s {
		case Staged:
			return Idle, true
		case Committed:
			return Applied, true
		}
	case OpRollback:
		switch s {
		case Committed:
			return Staged, true
		case Applied:
			return Idle, true
		}
	}
	return s, false
}
