package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ogctl/pkg/cli"
	"github.com/newtron-network/ogctl/pkg/device"
	"github.com/newtron-network/ogctl/pkg/stage"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive configuration session on one device",
	Long: `Opens a persistent session to the device and stages changes interactively.

  load <line>...      stage directives
  load-file <path>    stage a candidate file
  compare             show the staged differences
  commit | discard    accept or drop the staged candidate
  rollback            undo the last commit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := connectWritable(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer dev.Close()
		return NewShell(cmd.Context(), dev, os.Stdin, os.Stdout).Run()
	},
}

// Shell is a REPL over one open device.
type Shell struct {
	ctx      context.Context
	dev      *device.Device
	reader   *bufio.Reader
	out      io.Writer
	commands map[string]func(args []string)
}

// NewShell creates a shell reading commands from in.
func NewShell(ctx context.Context, dev *device.Device, in io.Reader, out io.Writer) *Shell {
	s := &Shell{
		ctx:    ctx,
		dev:    dev,
		reader: bufio.NewReader(in),
		out:    out,
	}
	s.commands = map[string]func(args []string){
		"show":      s.cmdShow,
		"load":      s.cmdLoad,
		"load-file": s.cmdLoadFile,
		"compare":   func([]string) { s.cmdCompare() },
		"commit":    func([]string) { s.cmdCommit() },
		"discard":   func([]string) { s.cmdDiscard() },
		"rollback":  func([]string) { s.cmdRollback() },
		"state":     func([]string) { s.cmdState() },
		"alive":     func([]string) { s.cmdAlive() },
		"help":      func([]string) { s.cmdHelp() },
		"?":         func([]string) { s.cmdHelp() },
	}
	return s
}

// Run reads commands until quit or end of input.
func (s *Shell) Run() error {
	fmt.Fprintf(s.out, "Connected to %s.\n", bold(s.dev.Name))
	fmt.Fprintln(s.out, "Type 'help' for available commands.")

	for {
		fmt.Fprint(s.out, s.prompt())

		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			return s.handleQuit()
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name, rest, _ := strings.Cut(line, " ")
		switch name {
		case "quit", "exit", "q":
			return s.handleQuit()
		default:
			if fn, ok := s.commands[name]; ok {
				fn(splitArgs(name, rest))
			} else {
				fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", name)
			}
		}
	}
}

// splitArgs keeps the rest of a load line intact so a value may contain
// spaces; other commands get whitespace-separated fields.
func splitArgs(name, rest string) []string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}
	if name == "load" {
		return []string{rest}
	}
	return strings.Fields(rest)
}

func (s *Shell) prompt() string {
	if s.dev.State() == stage.Staged {
		return fmt.Sprintf("%s[staged]> ", s.dev.Name)
	}
	return fmt.Sprintf("%s> ", s.dev.Name)
}

func (s *Shell) errorf(err error) {
	fmt.Fprintf(s.out, "%s %v\n", red("Error:"), err)
}

func (s *Shell) cmdShow(args []string) {
	scope := stage.ScopeRunning
	if len(args) > 0 {
		scope = stage.Scope(args[0])
	}
	cfg, err := s.dev.ReadConfig(s.ctx, scope)
	if err != nil {
		s.errorf(err)
		return
	}
	for _, body := range []string{cfg.Running, cfg.Candidate} {
		if body != "" {
			fmt.Fprintln(s.out, strings.TrimRight(body, "\n"))
		}
	}
}

func (s *Shell) cmdLoad(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: load <key value | key=value | key>")
		return
	}
	s.load(stage.Source{Text: args})
}

func (s *Shell) cmdLoadFile(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: load-file <path>")
		return
	}
	s.load(stage.Source{File: args[0]})
}

// load refuses to stack a second candidate on an uncommitted one, since the
// new backup would capture the first candidate.
func (s *Shell) load(src stage.Source) {
	if s.dev.State() == stage.Staged {
		fmt.Fprintln(s.out, "A candidate is already staged. Use 'commit' or 'discard' first.")
		return
	}
	if err := s.dev.LoadMergeCandidate(s.ctx, src); err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintln(s.out, green("Candidate staged."))
}

func (s *Shell) cmdCompare() {
	diff, err := s.dev.CompareConfig(s.ctx)
	if err != nil {
		s.errorf(err)
		return
	}
	if diff == "" {
		fmt.Fprintln(s.out, dim("No differences."))
		return
	}
	fmt.Fprintln(s.out, cli.ColorDiff(diff))
}

func (s *Shell) cmdCommit() {
	if !s.dev.State().Loaded() {
		fmt.Fprintln(s.out, "Nothing staged.")
		return
	}
	if !s.confirm("Commit staged candidate?") {
		fmt.Fprintln(s.out, "Cancelled.")
		return
	}
	if err := s.dev.CommitConfig(s.ctx); err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintln(s.out, green("Committed."))
}

func (s *Shell) cmdDiscard() {
	if !s.dev.State().Loaded() {
		fmt.Fprintln(s.out, "Nothing staged.")
		return
	}
	if err := s.dev.DiscardConfig(s.ctx); err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintln(s.out, "Discarded.")
}

func (s *Shell) cmdRollback() {
	if !s.dev.State().Changed() {
		fmt.Fprintln(s.out, "No commit to roll back.")
		return
	}
	if !s.confirm("Restore the configuration from before the last commit?") {
		fmt.Fprintln(s.out, "Cancelled.")
		return
	}
	if err := s.dev.Rollback(s.ctx); err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintln(s.out, green("Rolled back."))
}

func (s *Shell) cmdState() {
	fmt.Fprintf(s.out, "State:   %s\n", s.dev.State())
	fmt.Fprintf(s.out, "Session: %s\n", s.dev.SessionID())
	fmt.Fprintf(s.out, "Locked:  %s\n", cli.Status(s.dev.IsLocked(), "yes", "no"))
}

func (s *Shell) cmdAlive() {
	fmt.Fprintln(s.out, cli.Status(s.dev.IsAlive(), "alive", "unreachable"))
}

func (s *Shell) cmdHelp() {
	fmt.Fprintln(s.out, "Commands:")
	t := cli.NewTableTo(s.out, "COMMAND", "DESCRIPTION").WithPrefix("  ")
	t.Row("show [running|candidate|all]", "Show configuration")
	t.Row("load <line>", "Stage one directive")
	t.Row("load-file <path>", "Stage a candidate file")
	t.Row("compare", "Show staged differences")
	t.Row("commit", "Commit the staged candidate")
	t.Row("discard", "Drop the staged candidate")
	t.Row("rollback", "Undo the last commit")
	t.Row("state", "Show session state")
	t.Row("alive", "Check the connection")
	t.Row("quit", "Disconnect")
	t.Flush()
}

// handleQuit offers to drop a staged candidate before disconnecting.
func (s *Shell) handleQuit() error {
	if s.dev.State() == stage.Staged {
		if s.confirm("A candidate is staged. Discard it before disconnecting?") {
			s.cmdDiscard()
		}
	}
	fmt.Fprintln(s.out, "Disconnecting...")
	return nil
}

func (s *Shell) confirm(question string) bool {
	fmt.Fprintf(s.out, "%s [y/N]: ", question)
	answer, _ := s.reader.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
