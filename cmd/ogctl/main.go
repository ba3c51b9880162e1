// ogctl - staged configuration changes for console server appliances
//
// ogctl drives the configuration lifecycle of Linux-based console servers
// that are managed through an interactive shell and the `config` tool:
//
//	ogctl -d <device> show-config [running|candidate|all]
//	ogctl -d <device> diff  -f candidate.conf        # stage, show diff, discard
//	ogctl -d <device> apply -f candidate.conf        # preview only
//	ogctl -d <device> apply -f candidate.conf -x     # stage and commit
//	ogctl -d <device> shell                          # interactive lifecycle
//
// Candidate lines are "key value" or "key=value" assignments; a bare key
// deletes it. Write commands preview by default; use -x to commit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ogctl/pkg/audit"
	"github.com/newtron-network/ogctl/pkg/cli"
	"github.com/newtron-network/ogctl/pkg/inventory"
	"github.com/newtron-network/ogctl/pkg/metrics"
	"github.com/newtron-network/ogctl/pkg/settings"
	"github.com/newtron-network/ogctl/pkg/util"
	"github.com/newtron-network/ogctl/pkg/version"
)

var (
	// Global context flags
	deviceName    string // -d, --device
	inventoryPath string // -I, --inventory

	// Global option flags
	verbose     bool
	jsonOutput  bool
	metricsFile string
	redisAddr   string

	// Global state
	userSettings *settings.Settings
	collectors   = metrics.New()
)

var (
	green  = cli.Green
	yellow = cli.Yellow
	red    = cli.Red
	bold   = cli.Bold
	dim    = cli.Dim
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if metricsFile != "" {
		if werr := collectors.WriteTextfile(metricsFile); werr != nil {
			fmt.Fprintf(os.Stderr, "writing metrics: %v\n", werr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "ogctl",
	Short:             "Staged configuration changes for console server appliances",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `ogctl stages, previews, commits and rolls back configuration changes on
console server appliances over SSH.

Write commands preview changes by default; use -x to commit.

  ogctl -d <device> <command> [args] [-x]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		if isSettingsOrHelp(cmd) {
			return nil
		}

		if deviceName == "" {
			deviceName = userSettings.DefaultDevice
		}
		if inventoryPath == "" {
			inventoryPath = userSettings.GetInventory()
		}
		if redisAddr == "" {
			redisAddr = userSettings.RedisAddr
		}

		auditLogger, err := audit.NewFileLogger(userSettings.GetAuditLog(), audit.Rotation{
			MaxSize:    10 * 1024 * 1024,
			MaxBackups: 10,
		})
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name from the inventory")
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "I", "", "Inventory file (default ~/.ogctl/inventory.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address for device locking")

	rootCmd.AddGroup(
		&cobra.Group{ID: "config", Title: "Configuration:"},
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{showConfigCmd, diffCmd, applyCmd, shellCmd} {
		cmd.GroupID = "config"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{aliveCmd, probeCmd, arpCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("ogctl dev build (set version via -ldflags, see pkg/version)")
		} else {
			fmt.Printf("ogctl %s\n", version.Info())
		}
	},
}

func isSettingsOrHelp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "help", "version", "completion":
			return true
		}
	}
	return false
}

func loadInventory() (*inventory.Inventory, error) {
	inv, err := inventory.Load(inventoryPath)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}
	return inv, nil
}

// currentUser names the operator in audit events and lock holders.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

func lockHolder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return currentUser() + "@" + host
}
