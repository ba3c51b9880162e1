package device

import (
	"context"
	"fmt"

	"github.com/newtron-network/ogctl/pkg/auth"
	"github.com/newtron-network/ogctl/pkg/textfsm"
	"github.com/newtron-network/ogctl/pkg/util"
)

const (
	cmdARP      = "arp -van"
	arpTemplate = "show_arp"
)

// ARPEntry is one resolved neighbour. MAC is lower-case colon form.
type ARPEntry struct {
	Interface string `json:"interface"`
	IP        string `json:"ip"`
	MAC       string `json:"mac"`
}

// ARPTable returns the kernel ARP table. Per-VRF tables are not available
// on these appliances; a non-empty vrf fails with *util.UnsupportedError.
func (d *Device) ARPTable(ctx context.Context, vrf string) ([]ARPEntry, error) {
	if vrf != "" {
		return nil, util.NewUnsupportedError("get ARP table",
			"VRF support has not been added for this getter on this platform")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.requireOpen("get ARP table"); err != nil {
		return nil, err
	}
	if err := d.authorize(auth.PermARPView); err != nil {
		return nil, err
	}

	out, err := d.dispatcher.RunLine(ctx, cmdARP)
	if err != nil {
		return nil, fmt.Errorf("reading ARP table: %w", err)
	}
	return parseARP(out)
}

func parseARP(out string) ([]ARPEntry, error) {
	records, err := textfsm.Extract(arpTemplate, out)
	if err != nil {
		return nil, err
	}

	table := make([]ARPEntry, 0, len(records))
	for _, r := range records {
		ip, err := util.NormalizeIP(r["ip"])
		if err != nil {
			return nil, fmt.Errorf("ARP entry on %s: %w", r["interface"], err)
		}
		mac, err := util.NormalizeMAC(r["mac"])
		if err != nil {
			return nil, fmt.Errorf("ARP entry for %s: %w", ip, err)
		}
		table = append(table, ARPEntry{Interface: r["interface"], IP: ip, MAC: mac})
	}
	return table, nil
}
