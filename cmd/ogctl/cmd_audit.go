package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ogctl/pkg/audit"
	"github.com/newtron-network/ogctl/pkg/auth"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View audit logs of configuration lifecycle operations.

Every open, lock, load, commit, discard and rollback is logged with the
user, device, session, state reached and outcome.

Examples:
  ogctl audit list --device og-lon-1
  ogctl audit list --last 24h
  ogctl audit list --session 6f1c...`,
}

var (
	auditDevice   string
	auditUser     string
	auditSession  string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:    auditDevice,
			User:      auditUser,
			SessionID: auditSession,
			Limit:     auditLimit,
			Failures:  auditFailures,
		}

		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.Since = time.Now().Add(-duration)
		}

		// The access policy lives in the inventory; without one, anyone
		// who can read the log file may list it.
		if inv, err := loadInventory(); err == nil {
			if err := auth.NewChecker(inv.Policy()).Check(currentUser(), auth.PermAuditView, auditDevice); err != nil {
				return err
			}
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tUSER\tDEVICE\tOPERATION\tSTATE\tSTATUS")
		fmt.Fprintln(w, "---------\t----\t------\t---------\t-----\t------")

		for _, event := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				event.Timestamp.Local().Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				event.Operation,
				event.State,
				eventStatus(event),
			)
		}
		w.Flush()

		return nil
	},
}

func eventStatus(event *audit.Event) string {
	switch {
	case !event.Success:
		return red("failed")
	case event.Skipped:
		return dim("skipped")
	case event.DryRun:
		return yellow("dry-run")
	default:
		return green("ok")
	}
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditSession, "session", "", "Filter by session ID")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Show at most this many of the newest events")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}
