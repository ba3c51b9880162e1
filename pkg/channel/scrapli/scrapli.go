// Package scrapli implements channel.Channel on top of the scrapligo generic
// driver, for hosts where its prompt handling copes better with the shell.
package scrapli

import (
	"context"
	"fmt"
	"regexp"

	"github.com/scrapli/scrapligo/driver/generic"
	"github.com/scrapli/scrapligo/driver/options"
	"github.com/scrapli/scrapligo/util"

	"github.com/newtron-network/ogctl/pkg/channel"
)

// Channel drives one host through a scrapligo generic driver.
type Channel struct {
	cfg    channel.Config
	prompt *regexp.Regexp
	driver *generic.Driver
}

// New creates an unopened channel.
func New(cfg channel.Config) (*Channel, error) {
	prompt, err := regexp.Compile(cfg.EffectivePrompt())
	if err != nil {
		return nil, fmt.Errorf("compiling prompt pattern %q: %w", cfg.EffectivePrompt(), err)
	}
	return &Channel{cfg: cfg, prompt: prompt}, nil
}

// driverOptions translates the channel config into scrapligo options.
func (c *Channel) driverOptions() []util.Option {
	port := c.cfg.Port
	if port == 0 {
		port = 22
	}

	opts := []util.Option{
		options.WithAuthNoStrictKey(),
		options.WithTransportType("standard"),
		options.WithPort(port),
		options.WithTimeoutOps(c.cfg.EffectiveTimeout()),
		options.WithPromptPattern(c.prompt),
	}
	if c.cfg.Username != "" {
		opts = append(opts, options.WithAuthUsername(c.cfg.Username))
	}
	if c.cfg.Password != "" {
		opts = append(opts, options.WithAuthPassword(c.cfg.Password))
	}
	if c.cfg.KeyFile != "" {
		opts = append(opts, options.WithAuthPrivateKey(c.cfg.KeyFile, ""))
	}
	return opts
}

// Open creates the driver and opens the session.
func (c *Channel) Open(ctx context.Context) error {
	if c.driver != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d, err := generic.NewDriver(c.cfg.Host, c.driverOptions()...)
	if err != nil {
		return fmt.Errorf("creating scrapli driver for %s: %w", c.cfg.Host, err)
	}
	if err := d.Open(); err != nil {
		return fmt.Errorf("opening scrapli session to %s: %w", c.cfg.Address(), err)
	}

	c.driver = d
	return nil
}

// SendCommand sends cmd and returns the driver's result text.
func (c *Channel) SendCommand(ctx context.Context, cmd string) (string, error) {
	if c.driver == nil {
		return "", channel.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r, err := c.driver.SendCommand(cmd)
	if err != nil {
		c.Close()
		return "", err
	}
	return r.Result, nil
}

// Write pushes raw bytes through the driver's channel.
func (c *Channel) Write(b []byte) error {
	if c.driver == nil {
		return channel.ErrClosed
	}
	return c.driver.Channel.Write(b, false)
}

// IsActive reports the transport's own liveness flag.
func (c *Channel) IsActive() bool {
	if c.driver == nil {
		return false
	}
	return c.driver.Transport.IsAlive()
}

// Close closes the driver.
func (c *Channel) Close() error {
	if c.driver == nil {
		return nil
	}
	err := c.driver.Close()
	c.driver = nil
	return err
}

// String returns a description of the connection.
func (c *Channel) String() string {
	return fmt.Sprintf("scrapli://%s@%s", c.cfg.Username, c.cfg.Address())
}

// Ensure Channel implements the channel.Channel interface.
var _ channel.Channel = (*Channel)(nil)
