// Package testutil provides test helpers, including a simulated appliance
// shell that understands the handful of commands ogctl sends.
package testutil

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/newtron-network/ogctl/pkg/channel"
)

// Default remote paths used by the simulated appliance.
const (
	ActivePath = "/etc/config/config.xml"
	BackupPath = "/etc/config/config.xml.ogctl-bak"
)

var (
	reDumpFile = regexp.MustCompile(`^config -f (\S+) -g config > (\S+)$`)
	reDiff     = regexp.MustCompile(`^diff -u (\S+) (\S+)$`)
	reSet      = regexp.MustCompile(`^sudo config -s "(.*)"$`)
	reDelete   = regexp.MustCompile(`^sudo config -d "(.*)"$`)
	reCopy     = regexp.MustCompile(`^cp (\S+) (\S+)$`)
)

// Appliance simulates the shell of a console server. Config files are
// key/value maps; `config -g config` prints them as sorted "key value" lines.
// It implements channel.Channel.
type Appliance struct {
	mu sync.Mutex

	files map[string]map[string]string
	dumps map[string]string

	// Responses overrides the output for exact command lines.
	Responses map[string]string
	// FailOn makes the listed command lines fail with a transport error.
	FailOn map[string]error
	// WriteErr is returned by Write when set.
	WriteErr error
	// Inactive makes IsActive report false until the next Open.
	Inactive bool
	// OpenErr is returned by Open when set.
	OpenErr error

	opened  bool
	opens   int
	sent    []string
	written [][]byte
	applied int
}

// NewAppliance creates a simulated appliance whose active config holds cfg.
func NewAppliance(cfg map[string]string) *Appliance {
	active := make(map[string]string, len(cfg))
	for k, v := range cfg {
		active[k] = v
	}
	return &Appliance{
		files:     map[string]map[string]string{ActivePath: active},
		dumps:     make(map[string]string),
		Responses: make(map[string]string),
		FailOn:    make(map[string]error),
	}
}

// Open marks the appliance session open.
func (a *Appliance) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.OpenErr != nil {
		return a.OpenErr
	}
	a.opened = true
	a.opens++
	a.Inactive = false
	return nil
}

// SendCommand executes one command line against the simulated filesystem.
func (a *Appliance) SendCommand(ctx context.Context, cmd string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.opened {
		return "", channel.ErrClosed
	}
	a.sent = append(a.sent, cmd)

	if err, ok := a.FailOn[cmd]; ok {
		return "", err
	}
	if out, ok := a.Responses[cmd]; ok {
		return out, nil
	}
	return a.execute(cmd), nil
}

func (a *Appliance) execute(cmd string) string {
	switch {
	case cmd == "config -g config":
		return dump(a.files[ActivePath])
	case cmd == "config -a":
		a.applied++
		return ""
	}

	if m := reDumpFile.FindStringSubmatch(cmd); m != nil {
		f, ok := a.files[m[1]]
		if !ok {
			return fmt.Sprintf("config: error: cannot open %s", m[1])
		}
		a.dumps[m[2]] = dump(f)
		return ""
	}

	if m := reDiff.FindStringSubmatch(cmd); m != nil {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(a.dumps[m[1]]),
			B:        difflib.SplitLines(a.dumps[m[2]]),
			FromFile: m[1],
			ToFile:   m[2],
			Context:  3,
		}
		out, _ := difflib.GetUnifiedDiffString(diff)
		return strings.TrimRight(out, "\n")
	}

	if m := reSet.FindStringSubmatch(cmd); m != nil {
		key, value, ok := strings.Cut(m[1], "=")
		if !ok || key == "" {
			return "config: error: malformed assignment " + m[1]
		}
		a.files[ActivePath][key] = value
		return ""
	}

	if m := reDelete.FindStringSubmatch(cmd); m != nil {
		if _, ok := a.files[ActivePath][m[1]]; !ok {
			return fmt.Sprintf("config: %s not found", m[1])
		}
		delete(a.files[ActivePath], m[1])
		return ""
	}

	if m := reCopy.FindStringSubmatch(cmd); m != nil {
		src, ok := a.files[m[1]]
		if !ok {
			return fmt.Sprintf("cp: cannot stat '%s': No such file or directory", m[1])
		}
		a.files[m[2]] = clone(src)
		return ""
	}

	word, _, _ := strings.Cut(cmd, " ")
	return fmt.Sprintf("-sh: %s: not found", word)
}

// Write records raw bytes.
func (a *Appliance) Write(b []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return channel.ErrClosed
	}
	if a.WriteErr != nil {
		return a.WriteErr
	}
	a.written = append(a.written, append([]byte(nil), b...))
	return nil
}

// IsActive reports whether the session is open and not marked inactive.
func (a *Appliance) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opened && !a.Inactive
}

// Close marks the session closed.
func (a *Appliance) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opened = false
	return nil
}

// String returns a description of the simulated connection.
func (a *Appliance) String() string {
	return "sim://appliance"
}

// Opens returns how many times Open succeeded.
func (a *Appliance) Opens() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opens
}

// Sent returns the command lines received so far.
func (a *Appliance) Sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...)
}

// ResetSent clears the record of received commands.
func (a *Appliance) ResetSent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = nil
}

// Written returns the raw writes received so far.
func (a *Appliance) Written() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]byte(nil), a.written...)
}

// Applied returns how many times `config -a` ran.
func (a *Appliance) Applied() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applied
}

// File returns a copy of the config held at path, or nil if absent.
func (a *Appliance) File(path string) map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.files[path]
	if !ok {
		return nil
	}
	return clone(f)
}

// Dump renders the config at path the way `config -g config` prints it.
func (a *Appliance) Dump(path string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return dump(a.files[path])
}

func dump(f map[string]string) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+" "+f[k])
	}
	return strings.Join(lines, "\n")
}

func clone(f map[string]string) map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Ensure Appliance implements the channel.Channel interface.
var _ channel.Channel = (*Appliance)(nil)
