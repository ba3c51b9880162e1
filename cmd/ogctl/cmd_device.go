package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/ogctl/pkg/cli"
	"github.com/newtron-network/ogctl/pkg/inventory"
)

var aliveCmd = &cobra.Command{
	Use:   "alive",
	Short: "Check that the device session is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer dev.Close()

		alive := dev.IsAlive()
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"device": dev.Name, "alive": alive})
		}
		fmt.Printf("%s %s\n", cli.DotPad(dev.Name, 30), cli.Status(alive, "alive", "unreachable"))
		return nil
	},
}

// probeResult is one line of probe output.
type probeResult struct {
	Device string `json:"device"`
	Alive  bool   `json:"alive"`
	Error  string `json:"error,omitempty"`
}

var probeParallel int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check every inventory device concurrently",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		names := inv.Names()
		results := make([]probeResult, len(names))

		var g errgroup.Group
		g.SetLimit(probeParallel)
		for i, name := range names {
			i, name := i, name
			g.Go(func() error {
				results[i] = probe(cmd.Context(), inv, name)
				return nil
			})
		}
		g.Wait()

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for _, r := range results {
			line := fmt.Sprintf("%s %s", cli.DotPad(r.Device, 30), cli.Status(r.Alive, "alive", "unreachable"))
			if r.Error != "" {
				line += " " + dim(r.Error)
			}
			fmt.Println(line)
		}
		return nil
	},
}

// probe opens one device, checks it and closes it again. Devices without
// stored credentials are reported rather than prompted for.
func probe(ctx context.Context, inv *inventory.Inventory, name string) probeResult {
	res := probeResult{Device: name}

	profile, err := inv.Profile(name)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if profile.Channel.Password == "" && profile.Channel.KeyFile == "" {
		res.Error = "no stored credentials"
		return res
	}

	dev := newDeviceFromProfile(inv, profile, false)
	if err := dev.Open(ctx); err != nil {
		res.Error = err.Error()
		return res
	}
	defer dev.Close()

	res.Alive = dev.IsAlive()
	return res
}

var arpVRF string

var arpCmd = &cobra.Command{
	Use:   "arp",
	Short: "Show the device ARP table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := connect(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer dev.Close()

		entries, err := dev.ARPTable(cmd.Context(), arpVRF)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No ARP entries")
			return nil
		}
		t := cli.NewTable("INTERFACE", "IP", "MAC")
		for _, e := range entries {
			t.Row(e.Interface, e.IP, e.MAC)
		}
		t.Flush()
		return nil
	},
}

func init() {
	probeCmd.Flags().IntVarP(&probeParallel, "parallel", "p", 8, "Devices probed at once")
	arpCmd.Flags().StringVar(&arpVRF, "vrf", "", "VRF name (not supported on this platform)")
}
