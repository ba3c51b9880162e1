// Package sshshell implements channel.Channel over an interactive PTY shell
// opened with golang.org/x/crypto/ssh.
package sshshell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/ogctl/pkg/channel"
	"github.com/newtron-network/ogctl/pkg/util"
)

// Terminal width is wide enough that the appliance never wraps a command.
const (
	termWidth  = 511
	termHeight = 200
	readChunk  = 4096
)

// Channel is an interactive shell session on one host.
type Channel struct {
	cfg    channel.Config
	prompt *regexp.Regexp

	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	chunks  chan []byte
	done    chan struct{}
	readErr error
	readMu  sync.Mutex
	wg      sync.WaitGroup

	// pending holds bytes read past the last prompt
	pending bytes.Buffer
}

// New creates an unopened channel. The prompt pattern is compiled here so a
// bad inventory entry fails before any network traffic.
func New(cfg channel.Config) (*Channel, error) {
	prompt, err := regexp.Compile(cfg.EffectivePrompt())
	if err != nil {
		return nil, fmt.Errorf("compiling prompt pattern %q: %w", cfg.EffectivePrompt(), err)
	}
	return &Channel{cfg: cfg, prompt: prompt}, nil
}

// Open dials the host, starts a shell on a PTY and waits for the first prompt.
func (c *Channel) Open(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	auth, err := c.authMethods()
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User: c.cfg.Username,
		Auth: auth,
		// Appliances are commonly reflashed and re-keyed; host keys are not pinned.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.EffectiveTimeout(),
	}

	addr := c.cfg.Address()
	util.WithDevice(c.cfg.Host).Debugf("SSH shell to %s: host key verification disabled", addr)

	client, err := dialContext(ctx, addr, config)
	if err != nil {
		return fmt.Errorf("SSH dial %s@%s: %w", c.cfg.Username, addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("SSH session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := session.RequestPty("vt100", termHeight, termWidth, modes); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("requesting pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("starting shell: %w", err)
	}

	c.client = client
	c.session = session
	c.stdin = stdin
	c.chunks = make(chan []byte, 64)
	c.done = make(chan struct{})
	c.readErr = nil
	c.pending.Reset()

	c.wg.Add(1)
	go c.readLoop(stdout)

	if _, err := c.readUntilPrompt(); err != nil {
		c.Close()
		return fmt.Errorf("waiting for initial prompt on %s: %w", addr, err)
	}

	util.WithDevice(c.cfg.Host).Debug("SSH shell ready")
	return nil
}

func (c *Channel) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.cfg.KeyFile != "" {
		pem, err := os.ReadFile(c.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parsing key file %s: %w", c.cfg.KeyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.cfg.Password != "" {
		password := c.cfg.Password
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH credentials for %s: need a password or key file", c.cfg.Host)
	}
	return methods, nil
}

// dialContext is ssh.Dial that also gives up when ctx is done.
func dialContext(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, config)
		done <- result{client, err}
	}()

	select {
	case r := <-done:
		return r.client, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (c *Channel) readLoop(r io.Reader) {
	defer c.wg.Done()
	defer close(c.chunks)

	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.readMu.Lock()
			c.readErr = err
			c.readMu.Unlock()
			return
		}
	}
}

// readUntilPrompt accumulates output until the last line matches the prompt.
// It returns the output without the trailing prompt line.
func (c *Channel) readUntilPrompt() (string, error) {
	timer := time.NewTimer(c.cfg.EffectiveTimeout())
	defer timer.Stop()

	for {
		if out, ok := c.splitAtPrompt(); ok {
			return out, nil
		}

		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				c.readMu.Lock()
				err := c.readErr
				c.readMu.Unlock()
				if err == nil {
					err = io.EOF
				}
				return "", fmt.Errorf("reading from %s: %w", c.cfg.Host, err)
			}
			c.pending.Write(bytes.ReplaceAll(chunk, []byte("\r"), nil))
		case <-timer.C:
			return "", fmt.Errorf("timed out after %s waiting for prompt from %s", c.cfg.EffectiveTimeout(), c.cfg.Host)
		}
	}
}

// splitAtPrompt checks whether the pending buffer ends in a prompt. If so the
// text before the prompt is returned and the buffer is drained.
func (c *Channel) splitAtPrompt() (string, bool) {
	data := c.pending.String()
	if data == "" {
		return "", false
	}

	lastNL := strings.LastIndexByte(data, '\n')
	last := data[lastNL+1:]
	if !c.prompt.MatchString(last) {
		return "", false
	}

	c.pending.Reset()
	if lastNL < 0 {
		return "", true
	}
	return data[:lastNL], true
}

// SendCommand runs one command and returns its output. A write or read
// failure closes the channel.
func (c *Channel) SendCommand(ctx context.Context, cmd string) (string, error) {
	if c.stdin == nil {
		return "", channel.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := io.WriteString(c.stdin, cmd+"\n"); err != nil {
		c.Close()
		return "", fmt.Errorf("writing to %s: %w", c.cfg.Host, err)
	}

	// Late output from a timed-out command would be read as the reply to
	// the next one, so any read failure ends the session.
	out, err := c.readUntilPrompt()
	if err != nil {
		c.Close()
		return "", err
	}
	return stripEcho(out, cmd), nil
}

// stripEcho removes the echoed command line if the remote side echoed it
// despite the ECHO=0 terminal mode. The echo may follow a stale prompt.
func stripEcho(out, cmd string) string {
	first, rest, found := strings.Cut(out, "\n")
	first = strings.TrimSpace(first)
	cmd = strings.TrimSpace(cmd)

	echoed := cmd != "" && first == cmd
	for _, p := range []string{"$ ", "# ", "> "} {
		if cmd != "" && strings.HasSuffix(first, p+cmd) {
			echoed = true
		}
	}
	if !echoed {
		return strings.TrimRight(out, "\n")
	}
	if !found {
		return ""
	}
	return strings.TrimRight(rest, "\n")
}

// Write sends raw bytes down the shell without waiting for output.
func (c *Channel) Write(b []byte) error {
	if c.stdin == nil {
		return channel.ErrClosed
	}
	_, err := c.stdin.Write(b)
	return err
}

// IsActive sends an OpenSSH keepalive global request. A reply of either kind
// proves the transport is up.
func (c *Channel) IsActive() bool {
	if c.client == nil {
		return false
	}
	_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// Close stops the shell and the SSH connection, then waits for the reader.
func (c *Channel) Close() error {
	if c.client == nil {
		return nil
	}
	close(c.done)
	if c.session != nil {
		c.session.Close()
	}
	// Closing the client unblocks the reader goroutine.
	err := c.client.Close()
	c.wg.Wait()

	c.client = nil
	c.session = nil
	c.stdin = nil
	return err
}

// String returns a description of the connection.
func (c *Channel) String() string {
	return fmt.Sprintf("ssh://%s@%s", c.cfg.Username, c.cfg.Address())
}

// Ensure Channel implements the channel.Channel interface.
var _ channel.Channel = (*Channel)(nil)
