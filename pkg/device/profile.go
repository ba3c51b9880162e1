// Package device is the caller-facing API for one appliance: a Session that
// owns the command channel, and a Device that runs configuration lifecycle
// operations over it.
package device

import (
	"fmt"

	"github.com/newtron-network/ogctl/pkg/channel"
	"github.com/newtron-network/ogctl/pkg/channel/scrapli"
	"github.com/newtron-network/ogctl/pkg/channel/sshshell"
	"github.com/newtron-network/ogctl/pkg/stage"
	"github.com/newtron-network/ogctl/pkg/util"
)

// Profile is everything needed to reach and manage one device.
type Profile struct {
	Name      string
	Transport string
	Channel   channel.Config
	Layout    stage.Layout
}

// NewChannel builds an unopened channel for the transport.
// An empty transport selects the SSH shell.
func NewChannel(transport string, cfg channel.Config) (channel.Channel, error) {
	switch transport {
	case "", channel.TransportSSH:
		return sshshell.New(cfg)
	case channel.TransportScrapli:
		return scrapli.New(cfg)
	}
	return nil, util.NewValidationError(fmt.Sprintf("unknown transport %q (want %s or %s)",
		transport, channel.TransportSSH, channel.TransportScrapli))
}
