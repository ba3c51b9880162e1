// Package auth provides permission-based access control for lifecycle
// operations.
package auth

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermConfigView     Permission = "config.view"
	PermConfigLoad     Permission = "config.load"
	PermConfigCommit   Permission = "config.commit"
	PermConfigDiscard  Permission = "config.discard"
	PermConfigRollback Permission = "config.rollback"

	PermDeviceLock Permission = "device.lock"
	PermARPView    Permission = "arp.view"
	PermAuditView  Permission = "audit.view"

	PermAll Permission = "all" // Superuser - allows everything
)

// PermissionCategory groups related permissions
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories
var StandardCategories = []PermissionCategory{
	{
		Name:        "config",
		Description: "Configuration lifecycle",
		Permissions: []Permission{PermConfigView, PermConfigLoad, PermConfigCommit, PermConfigDiscard, PermConfigRollback},
	},
	{
		Name:        "device",
		Description: "Device locking",
		Permissions: []Permission{PermDeviceLock},
	},
	{
		Name:        "arp",
		Description: "Neighbor tables",
		Permissions: []Permission{PermARPView},
	},
	{
		Name:        "audit",
		Description: "Audit log access",
		Permissions: []Permission{PermAuditView},
	},
}

// IsReadOnly returns true if the permission is read-only
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermConfigView, PermARPView, PermAuditView:
		return true
	}
	return false
}

// IsWriteOperation returns true if the permission involves modification
func (p Permission) IsWriteOperation() bool {
	return !p.IsReadOnly()
}

// RequiresLock returns true if the permission requires device lock
func (p Permission) RequiresLock() bool {
	return p.IsWriteOperation() && p != PermDeviceLock
}
