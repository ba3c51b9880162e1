package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/newtron-network/ogctl/pkg/channel"
	"github.com/newtron-network/ogctl/pkg/util"
)

// nul is written by the liveness probe; the appliance shell ignores it.
var nul = []byte{0}

// Session owns the command channel to one device. A session has at most one
// open channel and is used by one caller at a time.
type Session struct {
	name    string
	id      string
	factory func() (channel.Channel, error)
	ch      channel.Channel
}

// NewSession creates a closed session that builds its channel from p.
func NewSession(p Profile) *Session {
	return &Session{
		name: p.Name,
		factory: func() (channel.Channel, error) {
			return NewChannel(p.Transport, p.Channel)
		},
	}
}

// NewSessionWithChannel creates a closed session over an existing channel.
func NewSessionWithChannel(name string, ch channel.Channel) *Session {
	return &Session{
		name:    name,
		factory: func() (channel.Channel, error) { return ch, nil },
	}
}

// Open builds and opens the channel. Opening an open session does nothing
// while its channel is active; a channel that went down is closed and
// redialed.
func (s *Session) Open(ctx context.Context) error {
	if s.IsActive() {
		return nil
	}
	if s.ch != nil {
		util.WithDevice(s.name).Debugf("session %s channel down, redialing", s.id)
		if err := s.ch.Close(); err != nil {
			util.WithDevice(s.name).Debugf("closing dead channel: %v", err)
		}
		s.ch = nil
	}
	ch, err := s.factory()
	if err != nil {
		return fmt.Errorf("building channel for %s: %w", s.name, err)
	}
	if err := ch.Open(ctx); err != nil {
		return fmt.Errorf("opening %s: %w", s.name, util.NewConnectivityError(err))
	}
	s.ch = ch
	s.id = uuid.NewString()
	util.WithDevice(s.name).Debugf("session %s open via %s", s.id, ch)
	return nil
}

// Close closes the channel. Closing a closed session does nothing.
func (s *Session) Close() error {
	if s.ch == nil {
		return nil
	}
	err := s.ch.Close()
	s.ch = nil
	util.WithDevice(s.name).Debugf("session %s closed", s.id)
	if err != nil {
		return fmt.Errorf("closing %s: %w", s.name, err)
	}
	return nil
}

// IsOpen reports whether a channel is open.
func (s *Session) IsOpen() bool {
	return s.ch != nil
}

// IsActive reports whether a channel is open and its transport is up.
func (s *Session) IsActive() bool {
	return s.ch != nil && s.ch.IsActive()
}

// IsAlive writes a NUL byte down the channel and reports whether the
// transport is still active. It never fails; any error means not alive.
func (s *Session) IsAlive() bool {
	if s.ch == nil {
		return false
	}
	if err := s.ch.Write(nul); err != nil {
		util.WithDevice(s.name).Debugf("liveness write failed: %v", err)
		return false
	}
	return s.ch.IsActive()
}

// Channel returns the open channel, or nil.
func (s *Session) Channel() channel.Channel {
	return s.ch
}

// ID identifies the current open period of the session; it changes on
// every Open.
func (s *Session) ID() string {
	return s.id
}

// Name returns the device name.
func (s *Session) Name() string {
	return s.name
}
