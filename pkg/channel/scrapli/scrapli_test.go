package scrapli

import (
	"context"
	"errors"
	"testing"

	"github.com/newtron-network/ogctl/pkg/channel"
)

func TestDriverOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  channel.Config
		want int
	}{
		{"no credentials", channel.Config{Host: "og1"}, 5},
		{"password", channel.Config{Host: "og1", Username: "root", Password: "default"}, 7},
		{"password and key", channel.Config{Host: "og1", Username: "root", Password: "x", KeyFile: "/tmp/id"}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if got := len(c.driverOptions()); got != tt.want {
				t.Errorf("len(driverOptions()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUnopened(t *testing.T) {
	c, err := New(channel.Config{Host: "og1", Username: "root"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.SendCommand(context.Background(), "config -g config"); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("SendCommand = %v, want ErrClosed", err)
	}
	if err := c.Write([]byte{0}); !errors.Is(err, channel.ErrClosed) {
		t.Errorf("Write = %v, want ErrClosed", err)
	}
	if c.IsActive() {
		t.Error("IsActive() should be false before Open")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if got := c.String(); got != "scrapli://root@og1:22" {
		t.Errorf("String() = %q", got)
	}
}

func TestNew_BadPrompt(t *testing.T) {
	if _, err := New(channel.Config{PromptPattern: "(["}); err == nil {
		t.Error("New should reject an invalid prompt pattern")
	}
}
