// Package inventory loads the YAML file describing managed appliances.
//
//	defaults:
//	  username: root
//	  transport: ssh
//	devices:
//	  og-lon-1:
//	    host: 10.1.1.1
//	    password: secret
//	  og-par-1:
//	    host: og-par-1.example.net
//	    key_file: ~/.ssh/id_ed25519
//	    layout:
//	      backup_path: /etc/config/config.xml.bak
//	    permissions:
//	      config.commit: [netops]
//	access:
//	  super_users: [root]
//	  user_groups:
//	    netops: [alice, bob]
//	  permissions:
//	    config.view: [netops]
package inventory

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/ogctl/pkg/auth"
	"github.com/newtron-network/ogctl/pkg/channel"
	"github.com/newtron-network/ogctl/pkg/device"
	"github.com/newtron-network/ogctl/pkg/stage"
	"github.com/newtron-network/ogctl/pkg/util"
)

// DeviceSpec describes how to reach one device. In defaults, set fields
// apply to every device that leaves them empty.
type DeviceSpec struct {
	Host      string        `yaml:"host,omitempty"`
	Port      int           `yaml:"port,omitempty"`
	Username  string        `yaml:"username,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	KeyFile   string        `yaml:"key_file,omitempty"`
	Transport string        `yaml:"transport,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	Prompt    string        `yaml:"prompt,omitempty"`
	Layout    stage.Layout  `yaml:"layout,omitempty"`

	// Permissions are checked before the global access permissions.
	// Not inherited from defaults.
	Permissions map[string][]string `yaml:"permissions,omitempty"`
}

// Inventory is the parsed inventory file.
type Inventory struct {
	Defaults DeviceSpec             `yaml:"defaults"`
	Devices  map[string]*DeviceSpec `yaml:"devices"`
	Access   auth.Policy            `yaml:"access,omitempty"`
}

// Load reads and validates the inventory at path. A leading ~ is expanded.
func Load(path string) (*Inventory, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", expanded, err)
	}
	return inv, nil
}

// Parse decodes and validates inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory YAML: %w", err)
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Validate checks every device after defaults are applied.
func (inv *Inventory) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(len(inv.Devices) > 0, "at least one device is required")

	for _, name := range inv.Names() {
		spec := inv.resolve(name)
		v.Add(spec.Host != "", fmt.Sprintf("device %s: host is required", name))
		v.Add(spec.Username != "", fmt.Sprintf("device %s: username is required", name))
		if spec.Port < 0 || spec.Port > 65535 {
			v.AddErrorf("device %s: port %d out of range", name, spec.Port)
		}
		switch {
		case spec.Timeout < 0:
			v.AddErrorf("device %s: timeout must not be negative", name)
		case spec.Timeout > 0 && spec.Timeout < time.Second:
			// A bare number decodes as nanoseconds.
			v.AddErrorf("device %s: timeout %s is below one second (give a unit, e.g. 30s)", name, spec.Timeout)
		}
		switch spec.Transport {
		case "", channel.TransportSSH, channel.TransportScrapli:
		default:
			v.AddErrorf("device %s: unknown transport %q", name, spec.Transport)
		}
		for perm, grantees := range spec.Permissions {
			v.Add(len(grantees) > 0, fmt.Sprintf("device %s: permission %s grants nobody", name, perm))
		}
	}
	for perm, grantees := range inv.Access.Permissions {
		v.Add(len(grantees) > 0, fmt.Sprintf("access: permission %s grants nobody", perm))
	}
	return v.Build()
}

// Names returns the device names in sorted order.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.Devices))
	for name := range inv.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Policy returns the access policy with per-device permissions folded in.
// Without any access section or device permissions it allows everything.
func (inv *Inventory) Policy() *auth.Policy {
	p := inv.Access
	p.Devices = make(map[string]map[string][]string)
	for name, spec := range inv.Devices {
		if spec != nil && len(spec.Permissions) > 0 {
			p.Devices[name] = spec.Permissions
		}
	}
	return &p
}

// Profile returns the resolved profile of the named device.
func (inv *Inventory) Profile(name string) (device.Profile, error) {
	if _, ok := inv.Devices[name]; !ok {
		return device.Profile{}, fmt.Errorf("device %q: %w", name, util.ErrNotFound)
	}
	spec := inv.resolve(name)

	keyFile := spec.KeyFile
	if keyFile != "" {
		expanded, err := homedir.Expand(keyFile)
		if err != nil {
			return device.Profile{}, fmt.Errorf("device %s: expanding key_file: %w", name, err)
		}
		keyFile = expanded
	}

	return device.Profile{
		Name:      name,
		Transport: spec.Transport,
		Channel: channel.Config{
			Host:          spec.Host,
			Port:          spec.Port,
			Username:      spec.Username,
			Password:      spec.Password,
			KeyFile:       keyFile,
			Timeout:       spec.Timeout,
			PromptPattern: spec.Prompt,
		},
		Layout: spec.Layout.WithDefaults(),
	}, nil
}

// resolve merges the device entry over the defaults.
func (inv *Inventory) resolve(name string) DeviceSpec {
	d := inv.Defaults
	s := inv.Devices[name]
	if s == nil {
		return d
	}

	out := *s
	if out.Port == 0 {
		out.Port = d.Port
	}
	if out.Username == "" {
		out.Username = d.Username
	}
	if out.Password == "" {
		out.Password = d.Password
	}
	if out.KeyFile == "" {
		out.KeyFile = d.KeyFile
	}
	if out.Transport == "" {
		out.Transport = d.Transport
	}
	if out.Timeout == 0 {
		out.Timeout = d.Timeout
	}
	if out.Prompt == "" {
		out.Prompt = d.Prompt
	}
	out.Layout = mergeLayout(out.Layout, d.Layout)
	return out
}

func mergeLayout(l, d stage.Layout) stage.Layout {
	if l.ActivePath == "" {
		l.ActivePath = d.ActivePath
	}
	if l.BackupPath == "" {
		l.BackupPath = d.BackupPath
	}
	if l.BackupDumpPath == "" {
		l.BackupDumpPath = d.BackupDumpPath
	}
	if l.ActiveDumpPath == "" {
		l.ActiveDumpPath = d.ActiveDumpPath
	}
	if l.DumpFileFormat == "" {
		l.DumpFileFormat = d.DumpFileFormat
	}
	return l
}
