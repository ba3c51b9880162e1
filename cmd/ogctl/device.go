package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/newtron-network/ogctl/pkg/auth"
	"github.com/newtron-network/ogctl/pkg/device"
	"github.com/newtron-network/ogctl/pkg/inventory"
	"github.com/newtron-network/ogctl/pkg/lock"
	"github.com/newtron-network/ogctl/pkg/stage"
)

// requireDevice returns the selected device name or an error naming the flag.
func requireDevice() (string, error) {
	if deviceName == "" {
		return "", fmt.Errorf("no device specified (use -d <device> or 'ogctl settings set device <name>')")
	}
	return deviceName, nil
}

// newDevice builds an unopened device from the inventory entry for name.
func newDevice(name string, execute bool) (*device.Device, error) {
	inv, err := loadInventory()
	if err != nil {
		return nil, err
	}
	profile, err := inv.Profile(name)
	if err != nil {
		return nil, err
	}
	if profile.Channel.Password == "" && profile.Channel.KeyFile == "" {
		pw, err := readPassword(fmt.Sprintf("Password for %s@%s: ", profile.Channel.Username, profile.Channel.Host))
		if err != nil {
			return nil, err
		}
		profile.Channel.Password = pw
	}
	return newDeviceFromProfile(inv, profile, execute), nil
}

// newDeviceFromProfile wires metrics, the inventory access policy, audit
// user and the optional Redis locker into a device.
func newDeviceFromProfile(inv *inventory.Inventory, profile device.Profile, execute bool) *device.Device {
	opts := []device.Option{
		device.WithMetrics(collectors),
		device.WithAuthorizer(auth.NewChecker(inv.Policy())),
		device.WithUser(currentUser()),
		device.WithExecuteMode(execute),
	}
	if redisAddr != "" {
		opts = append(opts, device.WithLocker(lock.NewRedisLocker(redisAddr)))
	}
	return device.New(profile, opts...)
}

// connect opens the selected device. Callers must Close it.
func connect(ctx context.Context, execute bool) (*device.Device, error) {
	name, err := requireDevice()
	if err != nil {
		return nil, err
	}
	dev, err := newDevice(name, execute)
	if err != nil {
		return nil, err
	}
	if err := dev.Open(ctx); err != nil {
		return nil, err
	}
	return dev, nil
}

// connectWritable opens the selected device and takes its lock.
func connectWritable(ctx context.Context, execute bool) (*device.Device, error) {
	dev, err := connect(ctx, execute)
	if err != nil {
		return nil, err
	}
	if err := dev.Lock(ctx, lockHolder(), lock.DefaultTTL); err != nil {
		dev.Close()
		return nil, fmt.Errorf("locking %s: %w", dev.Name, err)
	}
	return dev, nil
}

// readPassword prompts on the terminal without echo.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password or key file configured and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

// candidateSource builds a load source from the -f / -c flags.
func candidateSource(file string, lines []string) (stage.Source, error) {
	switch {
	case file != "" && len(lines) > 0:
		return stage.Source{}, fmt.Errorf("use either -f or -c, not both")
	case file == "" && len(lines) == 0:
		return stage.Source{}, fmt.Errorf("a candidate is required: -f <file> or -c <line>")
	case file != "":
		return stage.Source{File: file}, nil
	default:
		return stage.Source{Text: lines}, nil
	}
}

func printDryRunNotice() {
	fmt.Println("\n" + yellow("DRY-RUN: No changes applied. Use -x to execute."))
}
