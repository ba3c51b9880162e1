package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ogctl/pkg/cli"
	"github.com/newtron-network/ogctl/pkg/device"
	"github.com/newtron-network/ogctl/pkg/stage"
	"github.com/newtron-network/ogctl/pkg/util"
)

var (
	candidateFile  string
	candidateLines []string
	executeMode    bool
)

var showConfigCmd = &cobra.Command{
	Use:       "show-config [running|candidate|all]",
	Short:     "Show the device configuration",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(stage.ScopeRunning), string(stage.ScopeCandidate), string(stage.ScopeAll)},
	Example: `  ogctl -d og-lon-1 show-config
  ogctl -d og-lon-1 show-config running --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := stage.ScopeAll
		if len(args) == 1 {
			scope = stage.Scope(args[0])
		}

		dev, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer dev.Close()

		cfg, err := dev.ReadConfig(cmd.Context(), scope)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		}

		printSection := func(title, body string) {
			if body == "" {
				return
			}
			fmt.Println(bold(title))
			fmt.Println(strings.TrimRight(body, "\n"))
			fmt.Println()
		}
		printSection("Running:", cfg.Running)
		printSection("Candidate:", cfg.Candidate)
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Stage a candidate, show the differences, then discard it",
	Example: `  ogctl -d og-lon-1 diff -f candidate.conf
  ogctl -d og-lon-1 diff -c "config.system.name og-lon-1"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := candidateSource(candidateFile, candidateLines)
		if err != nil {
			return err
		}

		dev, err := connectWritable(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer dev.Close()

		diff, err := stageAndCompare(cmd.Context(), dev, src)
		if err != nil {
			return err
		}
		printDiff(diff)
		return dev.DiscardConfig(cmd.Context())
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Stage a candidate and commit it (preview unless -x)",
	Example: `  ogctl -d og-lon-1 apply -f candidate.conf
  ogctl -d og-lon-1 apply -f candidate.conf -x`,
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := candidateSource(candidateFile, candidateLines)
		if err != nil {
			return err
		}

		dev, err := connectWritable(cmd.Context(), executeMode)
		if err != nil {
			return err
		}
		defer dev.Close()

		diff, err := stageAndCompare(cmd.Context(), dev, src)
		if err != nil {
			return err
		}
		printDiff(diff)

		if !executeMode {
			if err := dev.DiscardConfig(cmd.Context()); err != nil {
				return err
			}
			printDryRunNotice()
			return nil
		}

		if err := dev.CommitConfig(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(green("Changes committed to " + dev.Name + "."))
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{diffCmd, applyCmd} {
		cmd.Flags().StringVarP(&candidateFile, "file", "f", "", "Candidate file (one directive per line)")
		cmd.Flags().StringArrayVarP(&candidateLines, "config", "c", nil, "Candidate directive (repeatable)")
		cmd.MarkFlagsMutuallyExclusive("file", "config")
	}
	applyCmd.Flags().BoolVarP(&executeMode, "execute", "x", false, "Commit the change (default is preview)")
}

// stageAndCompare loads src and returns the diff. A failed load may leave
// some directives applied; the backup path is reported so an operator can
// restore it. A failed compare discards the staged candidate.
func stageAndCompare(ctx context.Context, dev *device.Device, src stage.Source) (string, error) {
	if err := dev.LoadMergeCandidate(ctx, src); err != nil {
		if errors.Is(err, util.ErrMergeConfig) {
			util.WithDevice(dev.Name).Warnf("candidate not staged; active config may hold partial changes, backup at %s",
				dev.Profile.Layout.BackupPath)
		}
		return "", err
	}
	diff, err := dev.CompareConfig(ctx)
	if err != nil {
		if derr := dev.DiscardConfig(ctx); derr != nil {
			util.WithDevice(dev.Name).Warnf("discarding candidate after failed compare: %v", derr)
		}
		return "", err
	}
	return diff, nil
}

func printDiff(diff string) {
	if jsonOutput {
		json.NewEncoder(os.Stdout).Encode(map[string]string{"diff": diff})
		return
	}
	if diff == "" {
		fmt.Println(dim("No differences."))
		return
	}
	fmt.Println(cli.ColorDiff(diff))
}
