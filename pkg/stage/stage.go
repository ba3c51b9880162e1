// Package stage implements staged configuration changes on an appliance that
// keeps its configuration in a single file edited through the `config` tool.
//
// A load copies the active file to a backup path, then applies each directive
// of the candidate directly to the active file. Discard and rollback restore
// the backup; commit asks the appliance to apply the active file to the
// running system.
//
// There is exactly one backup slot per engine. Each load overwrites it, so a
// load after a commit makes the earlier pre-commit state unreachable.
package stage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/newtron-network/ogctl/pkg/dispatch"
	"github.com/newtron-network/ogctl/pkg/util"
)

// Remote commands.
const (
	CmdDump  = "config -g config"
	CmdApply = "config -a"

	// DefaultDumpFileFormat dumps the file %[1]s into the file %[2]s.
	DefaultDumpFileFormat = "config -f %[1]s -g config > %[2]s"
)

// NotImplemented is reported for the startup configuration, which these
// appliances do not keep separately.
const NotImplemented = "not implemented"

// Default remote file layout.
const (
	DefaultActivePath     = "/etc/config/config.xml"
	DefaultBackupPath     = "/etc/config/config.xml.ogctl-bak"
	DefaultBackupDumpPath = "/tmp/ogctl-backup.conf"
	DefaultActiveDumpPath = "/tmp/ogctl-active.conf"
)

// Output substrings that mark a directive the appliance refused.
var mergeFailureMarkers = []string{"error", "not found"}

// Scope selects which configurations Read retrieves.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeRunning   Scope = "running"
	ScopeCandidate Scope = "candidate"
)

// Layout is the remote file layout used by an engine.
type Layout struct {
	ActivePath     string `json:"active_path,omitempty" yaml:"active_path,omitempty"`
	BackupPath     string `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	BackupDumpPath string `json:"backup_dump_path,omitempty" yaml:"backup_dump_path,omitempty"`
	ActiveDumpPath string `json:"active_dump_path,omitempty" yaml:"active_dump_path,omitempty"`
	// DumpFileFormat is a fmt format taking the file then the dump path.
	DumpFileFormat string `json:"dump_file_format,omitempty" yaml:"dump_file_format,omitempty"`
}

// DefaultLayout returns the stock appliance layout.
func DefaultLayout() Layout {
	return Layout{
		ActivePath:     DefaultActivePath,
		BackupPath:     DefaultBackupPath,
		BackupDumpPath: DefaultBackupDumpPath,
		ActiveDumpPath: DefaultActiveDumpPath,
		DumpFileFormat: DefaultDumpFileFormat,
	}
}

// WithDefaults fills empty fields from DefaultLayout.
func (l Layout) WithDefaults() Layout {
	d := DefaultLayout()
	if l.ActivePath == "" {
		l.ActivePath = d.ActivePath
	}
	if l.BackupPath == "" {
		l.BackupPath = d.BackupPath
	}
	if l.BackupDumpPath == "" {
		l.BackupDumpPath = d.BackupDumpPath
	}
	if l.ActiveDumpPath == "" {
		l.ActiveDumpPath = d.ActiveDumpPath
	}
	if l.DumpFileFormat == "" {
		l.DumpFileFormat = d.DumpFileFormat
	}
	return l
}

// Config holds the configurations returned by Read. Fields outside the
// requested scope are empty.
type Config struct {
	Startup   string `json:"startup"`
	Running   string `json:"running"`
	Candidate string `json:"candidate"`
}

// Source is where a candidate comes from. Exactly one of File and Text must
// be set. File is read on the local machine.
type Source struct {
	File string
	Text []string
}

// Validate reports a MergeConfigError unless exactly one of File and Text
// is set. It needs no device and holds in every lifecycle state.
func (s Source) Validate() error {
	if (s.File == "") == (len(s.Text) == 0) {
		return util.NewMergeConfigError("", "filename or config param must be provided")
	}
	return nil
}

// Runner sends a command and returns its output. *dispatch.Dispatcher
// implements it.
type Runner interface {
	Run(ctx context.Context, cmd dispatch.Command) (string, error)
}

// Engine drives the staged change lifecycle for one device. It is not safe
// for concurrent use.
type Engine struct {
	run    Runner
	device string
	layout Layout
	state  State

	readFile func(string) ([]byte, error)
}

// New creates an engine in the Idle state.
func New(run Runner, device string, layout Layout) *Engine {
	return &Engine{
		run:      run,
		device:   device,
		layout:   layout.WithDefaults(),
		state:    Idle,
		readFile: os.ReadFile,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Loaded reports whether a candidate is staged.
func (e *Engine) Loaded() bool { return e.state.Loaded() }

// Changed reports whether a commit is in effect.
func (e *Engine) Changed() bool { return e.state.Changed() }

// Layout returns the remote file layout.
func (e *Engine) Layout() Layout { return e.layout }

// Read retrieves the configurations selected by scope.
func (e *Engine) Read(ctx context.Context, scope Scope) (*Config, error) {
	if scope == "" {
		scope = ScopeAll
	}
	if scope != ScopeAll && scope != ScopeRunning && scope != ScopeCandidate {
		return nil, util.NewValidationError(
			fmt.Sprintf("unknown config scope %q (want all, running or candidate)", scope))
	}

	cfg := &Config{Startup: NotImplemented}

	if scope == ScopeAll || scope == ScopeRunning {
		out, err := e.run.Run(ctx, dispatch.Single(CmdDump))
		if err != nil {
			return nil, fmt.Errorf("reading running config: %w", err)
		}
		cfg.Running = out
	}
	if scope == ScopeAll || scope == ScopeCandidate {
		out, err := e.run.Run(ctx, dispatch.Single(CmdDump))
		if err != nil {
			return nil, fmt.Errorf("reading candidate config: %w", err)
		}
		cfg.Candidate = out
	}
	return cfg, nil
}

// LoadCandidate backs up the active file and applies each directive of src
// to it. It stops at the first directive the appliance refuses; directives
// already applied stay applied and the stage stays as it was before the call.
func (e *Engine) LoadCandidate(ctx context.Context, src Source) error {
	log := util.WithOperation(e.device, string(OpLoad))

	if err := src.Validate(); err != nil {
		return err
	}

	lines := src.Text
	if src.File != "" {
		data, err := e.readFile(src.File)
		if err != nil {
			return util.NewMergeConfigError("", fmt.Sprintf("reading %s: %v", src.File, err))
		}
		lines = strings.Split(string(data), "\n")
	}
	directives := ParseDirectives(lines)

	backup := copyCommand(e.layout.ActivePath, e.layout.BackupPath)
	out, err := e.run.Run(ctx, dispatch.Single(backup))
	if err != nil {
		return fmt.Errorf("backing up active config: %w", err)
	}
	if strings.TrimSpace(out) != "" {
		return util.NewMergeConfigError(backup, "backup of active config failed: "+strings.TrimSpace(out))
	}
	log.Debugf("backed up %s to %s", e.layout.ActivePath, e.layout.BackupPath)

	for _, d := range directives {
		cmd := d.Command()
		out, err := e.run.Run(ctx, dispatch.Single(cmd))
		if err != nil {
			return fmt.Errorf("applying directive %q: %w", d.Text, err)
		}
		if isMergeFailure(out) {
			log.Warnf("directive refused: %s", strings.TrimSpace(out))
			return util.NewMergeConfigError(cmd, "directive refused: "+strings.TrimSpace(out))
		}
	}

	e.state, _ = Transition(e.state, OpLoad)
	log.Infof("staged %d directive(s)", len(directives))
	return nil
}

// Compare returns a unified diff of the backup against the active file, or
// "" when nothing is staged. The diff is recomputed on every call.
func (e *Engine) Compare(ctx context.Context) (string, error) {
	if !e.Loaded() {
		return "", nil
	}

	dumps := []string{
		fmt.Sprintf(e.layout.DumpFileFormat, e.layout.BackupPath, e.layout.BackupDumpPath),
		fmt.Sprintf(e.layout.DumpFileFormat, e.layout.ActivePath, e.layout.ActiveDumpPath),
	}
	for _, cmd := range dumps {
		if _, err := e.run.Run(ctx, dispatch.Single(cmd)); err != nil {
			return "", fmt.Errorf("dumping config for compare: %w", err)
		}
	}

	diff := fmt.Sprintf("diff -u %s %s", e.layout.BackupDumpPath, e.layout.ActiveDumpPath)
	out, err := e.run.Run(ctx, dispatch.Single(diff))
	if err != nil {
		return "", fmt.Errorf("comparing config: %w", err)
	}
	return out, nil
}

// Commit applies the active file to the running system. It is a no-op when
// nothing is staged. The stage stays loaded, so Commit may be repeated.
func (e *Engine) Commit(ctx context.Context) error {
	next, ok := Transition(e.state, OpCommit)
	if !ok {
		util.WithOperation(e.device, string(OpCommit)).Debugf("nothing staged, skipping (state %s)", e.state)
		return nil
	}
	if _, err := e.run.Run(ctx, dispatch.Single(CmdApply)); err != nil {
		return fmt.Errorf("applying config: %w", err)
	}
	e.state = next
	util.WithOperation(e.device, string(OpCommit)).Info("committed")
	return nil
}

// Discard restores the backup over the active file. It is a no-op when
// nothing is staged.
func (e *Engine) Discard(ctx context.Context) error {
	return e.restore(ctx, OpDiscard)
}

// Rollback restores the backup over the active file after a commit. It is a
// no-op when no commit is in effect. The restored file is not re-applied to
// the running system.
func (e *Engine) Rollback(ctx context.Context) error {
	return e.restore(ctx, OpRollback)
}

func (e *Engine) restore(ctx context.Context, op Op) error {
	log := util.WithOperation(e.device, string(op))
	next, ok := Transition(e.state, op)
	if !ok {
		log.Debugf("not applicable in state %s, skipping", e.state)
		return nil
	}
	cmd := copyCommand(e.layout.BackupPath, e.layout.ActivePath)
	if _, err := e.run.Run(ctx, dispatch.Single(cmd)); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}
	e.state = next
	log.Infof("restored %s, now %s", e.layout.BackupPath, next)
	return nil
}

func copyCommand(src, dst string) string {
	return fmt.Sprintf("cp %s %s", src, dst)
}

func isMergeFailure(out string) bool {
	for _, m := range mergeFailureMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}
