package device

import (
	"context"
	"errors"
	"testing"

	"github.com/newtron-network/ogctl/internal/testutil"
	"github.com/newtron-network/ogctl/pkg/channel"
	"github.com/newtron-network/ogctl/pkg/channel/scrapli"
	"github.com/newtron-network/ogctl/pkg/channel/sshshell"
	"github.com/newtron-network/ogctl/pkg/util"
)

func TestSession_IsAlive(t *testing.T) {
	app := testutil.NewAppliance(nil)
	s := NewSessionWithChannel("og1", app)

	if s.IsAlive() {
		t.Error("IsAlive() should be false before Open")
	}

	testutil.AssertNoError(t, s.Open(context.Background()), "open")
	if !s.IsAlive() {
		t.Error("IsAlive() should be true on an open session")
	}
	written := app.Written()
	if len(written) != 1 || len(written[0]) != 1 || written[0][0] != 0 {
		t.Errorf("liveness probe wrote %q, want a single NUL", written)
	}

	app.Inactive = true
	if s.IsAlive() {
		t.Error("IsAlive() should follow the transport active flag")
	}

	app.Inactive = false
	app.WriteErr = errors.New("broken pipe")
	if s.IsAlive() {
		t.Error("IsAlive() should be false when the write fails")
	}

	testutil.AssertNoError(t, s.Close(), "close")
	if s.IsAlive() {
		t.Error("IsAlive() should be false after Close")
	}
}

func TestSession_OpenClose(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewAppliance(nil)
	s := NewSessionWithChannel("og1", app)

	if s.IsOpen() || s.Channel() != nil {
		t.Fatal("new session should be closed")
	}
	testutil.AssertNoError(t, s.Close(), "close when closed")

	testutil.AssertNoError(t, s.Open(ctx), "open")
	first := s.ID()
	if first == "" {
		t.Error("ID() should be set after Open")
	}
	testutil.AssertNoError(t, s.Open(ctx), "second open")
	if s.ID() != first {
		t.Error("reopening an open session should keep its ID")
	}

	testutil.AssertNoError(t, s.Close(), "close")
	testutil.AssertNoError(t, s.Open(ctx), "reopen")
	if s.ID() == first {
		t.Error("a new open period should get a new ID")
	}
	if s.Name() != "og1" {
		t.Errorf("Name() = %q", s.Name())
	}
}

func TestSession_OpenRedialsDeadChannel(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewAppliance(nil)
	s := NewSessionWithChannel("og1", app)

	testutil.AssertNoError(t, s.Open(ctx), "open")
	first := s.ID()

	app.Inactive = true
	if s.IsActive() {
		t.Fatal("IsActive() should follow the transport")
	}
	testutil.AssertNoError(t, s.Open(ctx), "open on a dead channel")
	if app.Opens() != 2 {
		t.Errorf("Opens() = %d, want 2", app.Opens())
	}
	if !s.IsActive() {
		t.Error("session should be active after redial")
	}
	if s.ID() == first {
		t.Error("a redial should start a new open period")
	}
}

func TestSession_OpenFailure(t *testing.T) {
	app := testutil.NewAppliance(nil)
	app.OpenErr = errors.New("connection refused")
	s := NewSessionWithChannel("og1", app)

	err := s.Open(context.Background())
	if !errors.Is(err, util.ErrConnectivity) {
		t.Fatalf("Open() error = %v, want connectivity error", err)
	}
	if s.IsOpen() {
		t.Error("session should stay closed")
	}
}

func TestNewChannel(t *testing.T) {
	cfg := channel.Config{Host: "og1", Username: "admin", Password: "secret"}

	ch, err := NewChannel("", cfg)
	testutil.AssertNoError(t, err, "default transport")
	if _, ok := ch.(*sshshell.Channel); !ok {
		t.Errorf("default transport = %T, want *sshshell.Channel", ch)
	}

	ch, err = NewChannel(channel.TransportScrapli, cfg)
	testutil.AssertNoError(t, err, "scrapli transport")
	if _, ok := ch.(*scrapli.Channel); !ok {
		t.Errorf("scrapli transport = %T, want *scrapli.Channel", ch)
	}

	_, err = NewChannel("telnet", cfg)
	if !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("unknown transport error = %v, want validation error", err)
	}
}

func TestNewSession_BadProfile(t *testing.T) {
	s := NewSession(Profile{Name: "og1", Transport: "serial"})
	err := s.Open(context.Background())
	if !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("Open() error = %v, want validation error", err)
	}
}
