// Package channel defines the interactive text session used to drive a remote
// appliance: send one line, read until the prompt returns.
package channel

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// Transport names accepted in the inventory.
const (
	TransportSSH     = "ssh"
	TransportScrapli = "scrapli"
)

// DefaultPromptPattern matches the usual Linux shell prompts
// (user@host:~$, root@og# , [admin@console ~]$).
const DefaultPromptPattern = `(?m)^[\w.\-@()/:~\[\] ]{0,64}[#>$]\s*$`

// DefaultTimeout bounds dialing and each command round-trip.
const DefaultTimeout = 60 * time.Second

// ErrClosed is returned by operations on a channel that is not open.
var ErrClosed = errors.New("channel closed")

// Channel is a bidirectional text session to one remote host.
// Implementations are not safe for concurrent use.
type Channel interface {
	// Open dials the host and waits for the first prompt.
	Open(ctx context.Context) error

	// SendCommand writes cmd followed by a newline and returns everything
	// printed before the next prompt, without the echoed command line.
	// Any returned error is a transport failure.
	SendCommand(ctx context.Context, cmd string) (string, error)

	// Write sends raw bytes without waiting for output.
	Write(b []byte) error

	// IsActive reports whether the underlying transport is still up.
	IsActive() bool

	// Close tears the session down. Closing twice is not an error.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}

// Config holds what every transport needs to reach a host.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyFile  string

	// Timeout bounds dialing and each command round-trip.
	Timeout time.Duration

	// PromptPattern overrides DefaultPromptPattern.
	PromptPattern string
}

// Address returns host:port, defaulting the port to 22.
func (c Config) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// EffectiveTimeout returns Timeout or DefaultTimeout when unset.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// EffectivePrompt returns PromptPattern or DefaultPromptPattern when unset.
func (c Config) EffectivePrompt() string {
	if c.PromptPattern == "" {
		return DefaultPromptPattern
	}
	return c.PromptPattern
}
