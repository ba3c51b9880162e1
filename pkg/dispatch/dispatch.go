// Package dispatch sends commands to a device over a channel.
//
// A Command is either a single command line or an ordered list of variants
// for firmware releases that spell the same request differently. Variants are
// tried in order; the first whose output is not a syntax rejection wins.
//
// Transport failures of any kind are reported as *util.ConnectivityError so
// callers never depend on transport-specific error types.
package dispatch

import (
	"context"
	"strings"

	"github.com/newtron-network/ogctl/pkg/channel"
	"github.com/newtron-network/ogctl/pkg/util"
)

// InvalidSentinel marks output of a command the device refused to parse.
const InvalidSentinel = "% Invalid"

// Command is one command line or an ordered list of alternatives.
// Build it with Single or Variants.
type Command struct {
	variants []string
}

// Single wraps one command line.
func Single(cmd string) Command {
	return Command{variants: []string{cmd}}
}

// Variants wraps alternatives to be tried in order.
func Variants(cmds ...string) Command {
	return Command{variants: append([]string(nil), cmds...)}
}

// Lines returns the command lines in the order they are tried.
func (c Command) Lines() []string {
	return append([]string(nil), c.variants...)
}

// String returns the command, or the variants joined with " | ".
func (c Command) String() string {
	return strings.Join(c.variants, " | ")
}

// Recorder observes each command sent. Implemented by pkg/metrics.
type Recorder interface {
	ObserveCommand(result string)
}

// Command outcomes passed to a Recorder.
const (
	ResultOK      = "ok"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Dispatcher runs Commands over a channel.
type Dispatcher struct {
	ch       channel.Channel
	device   string
	recorder Recorder
}

// New creates a dispatcher for the named device.
func New(ch channel.Channel, device string) *Dispatcher {
	return &Dispatcher{ch: ch, device: device}
}

// WithRecorder attaches a command observer.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// Run sends cmd and returns the first output without the invalid-command
// sentinel. If every variant is rejected, the last output is returned with
// a nil error; the caller decides what a rejection means.
func (d *Dispatcher) Run(ctx context.Context, cmd Command) (string, error) {
	var output string
	for i, line := range cmd.variants {
		log := util.WithCommand(d.device, line)
		log.Debug("sending")

		out, err := d.ch.SendCommand(ctx, line)
		if err != nil {
			d.observe(ResultError)
			log.Warnf("transport failure: %v", err)
			return "", util.NewConnectivityError(err)
		}
		output = out

		if !IsInvalid(out) {
			d.observe(ResultOK)
			return output, nil
		}

		d.observe(ResultInvalid)
		if i < len(cmd.variants)-1 {
			log.Debug("rejected, trying next variant")
		}
	}
	return output, nil
}

// RunLine is shorthand for Run(ctx, Single(line)).
func (d *Dispatcher) RunLine(ctx context.Context, line string) (string, error) {
	return d.Run(ctx, Single(line))
}

func (d *Dispatcher) observe(result string) {
	if d.recorder != nil {
		d.recorder.ObserveCommand(result)
	}
}

// IsInvalid reports whether output carries the invalid-command sentinel.
func IsInvalid(output string) bool {
	return strings.Contains(output, InvalidSentinel)
}
