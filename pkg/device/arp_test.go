package device

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/newtron-network/ogctl/internal/testutil"
	"github.com/newtron-network/ogctl/pkg/util"
)

const arpOutput = `? (10.0.0.1) at 00:11:22:AA:BB:CC [ether] on eth0
? (10.0.0.9) at <incomplete> on eth0
? (192.168.1.254) at 0:1b:2c:3d:4e:5f [ether] PERM on net1
Entries: 3	Skipped: 0	Found: 3`

func TestDevice_ARPTable(t *testing.T) {
	d, app := newTestDevice(t)
	app.Responses["arp -van"] = arpOutput

	got, err := d.ARPTable(context.Background(), "")
	testutil.AssertNoError(t, err, "ARPTable")
	want := []ARPEntry{
		{Interface: "eth0", IP: "10.0.0.1", MAC: "00:11:22:aa:bb:cc"},
		{Interface: "net1", IP: "192.168.1.254", MAC: "00:1b:2c:3d:4e:5f"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ARPTable() = %+v, want %+v", got, want)
	}
	testutil.AssertCommands(t, app.Sent(), []string{"arp -van"})
}

func TestDevice_ARPTable_Empty(t *testing.T) {
	d, app := newTestDevice(t)
	app.Responses["arp -van"] = "Entries: 0\tSkipped: 0\tFound: 0"

	got, err := d.ARPTable(context.Background(), "")
	testutil.AssertNoError(t, err, "ARPTable")
	if len(got) != 0 {
		t.Errorf("ARPTable() = %+v, want empty", got)
	}
}

func TestDevice_ARPTable_VRF(t *testing.T) {
	d, app := newTestDevice(t)

	_, err := d.ARPTable(context.Background(), "mgmt")
	var uerr *util.UnsupportedError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want UnsupportedError", err)
	}
	if !errors.Is(err, util.ErrNotSupported) {
		t.Error("UnsupportedError should unwrap to ErrNotSupported")
	}
	if uerr.Reason != "VRF support has not been added for this getter on this platform" {
		t.Errorf("Reason = %q", uerr.Reason)
	}
	testutil.AssertCommands(t, app.Sent(), nil)
}

func TestDevice_ARPTable_TransportFailure(t *testing.T) {
	d, app := newTestDevice(t)
	app.FailOn["arp -van"] = errors.New("EOF")

	_, err := d.ARPTable(context.Background(), "")
	if !errors.Is(err, util.ErrConnectivity) {
		t.Errorf("err = %v, want connectivity error", err)
	}
}
