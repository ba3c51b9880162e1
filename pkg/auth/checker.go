package auth

import (
	"fmt"
	"sort"

	"github.com/newtron-network/ogctl/pkg/util"
)

// Policy is the access section of an inventory. Permissions map a
// permission name (or "all") to the groups and users granted it. Devices
// holds per-device maps that are checked before the global one.
type Policy struct {
	SuperUsers  []string                       `yaml:"super_users,omitempty"`
	UserGroups  map[string][]string            `yaml:"user_groups,omitempty"`
	Permissions map[string][]string            `yaml:"permissions,omitempty"`
	Devices     map[string]map[string][]string `yaml:"-"`
}

// Enabled reports whether the policy restricts anything. An empty policy
// allows every user every permission.
func (p *Policy) Enabled() bool {
	return p != nil && (len(p.SuperUsers) > 0 || len(p.Permissions) > 0 || len(p.Devices) > 0)
}

// Checker validates user permissions against a policy.
type Checker struct {
	policy *Policy
}

// NewChecker creates a permission checker. A nil policy allows everything.
func NewChecker(policy *Policy) *Checker {
	return &Checker{policy: policy}
}

// Check verifies that username holds permission on device.
func (c *Checker) Check(username string, permission Permission, device string) error {
	if !c.policy.Enabled() {
		return nil
	}

	// Superusers can do anything
	if c.IsSuperUser(username) {
		return nil
	}

	// Device-specific permissions first
	if perms, ok := c.policy.Devices[device]; ok && device != "" {
		if c.checkPermissionMap(username, permission, perms) {
			return nil
		}
	}

	if c.checkPermissionMap(username, permission, c.policy.Permissions) {
		return nil
	}

	return &PermissionError{
		User:       username,
		Permission: permission,
		Device:     device,
	}
}

// IsSuperUser returns true if username is listed as a superuser
func (c *Checker) IsSuperUser(username string) bool {
	if c.policy == nil {
		return false
	}
	for _, su := range c.policy.SuperUsers {
		if su == username {
			return true
		}
	}
	return false
}

// checkPermissionMap checks whether username has the given permission in permMap.
// It first checks the "all" wildcard key, then the specific permission key.
func (c *Checker) checkPermissionMap(username string, permission Permission, permMap map[string][]string) bool {
	if groups, ok := permMap[string(PermAll)]; ok {
		if c.userInGroups(username, groups) {
			return true
		}
	}

	groups, ok := permMap[string(permission)]
	if !ok {
		return false
	}
	return c.userInGroups(username, groups)
}

func (c *Checker) userInGroups(username string, allowedGroups []string) bool {
	for _, group := range allowedGroups {
		if group == username {
			return true
		}
		for _, member := range c.policy.UserGroups[group] {
			if member == username {
				return true
			}
		}
	}
	return false
}

// ListPermissions returns the global permissions a user has, sorted.
func (c *Checker) ListPermissions(username string) []Permission {
	if !c.policy.Enabled() || c.IsSuperUser(username) {
		return []Permission{PermAll}
	}

	var perms []Permission
	for permStr, groups := range c.policy.Permissions {
		if c.userInGroups(username, groups) {
			perms = append(perms, Permission(permStr))
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// GetUserGroups returns the groups a user belongs to, sorted.
func (c *Checker) GetUserGroups(username string) []string {
	if c.policy == nil {
		return nil
	}
	var groups []string
	for groupName, members := range c.policy.UserGroups {
		for _, member := range members {
			if member == username {
				groups = append(groups, groupName)
				break
			}
		}
	}
	sort.Strings(groups)
	return groups
}

// PermissionError represents a permission denial
type PermissionError struct {
	User       string
	Permission Permission
	Device     string
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: user '%s' does not have '%s' permission", e.User, e.Permission)
	if e.Device != "" {
		msg += fmt.Sprintf(" on device '%s'", e.Device)
	}
	return msg
}

func (e *PermissionError) Unwrap() error {
	return util.ErrPermissionDenied
}
