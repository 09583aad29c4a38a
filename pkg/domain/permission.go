package domain

import dErrors "healthcommons/pkg/domain-errors"

// Permission is the action a requester wants to perform on a patient's data.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionShare  Permission = "share"
	PermissionExport Permission = "export"
	PermissionDelete Permission = "delete"
	PermissionAmend  Permission = "amend"
	// PermissionAggregate covers inclusion in differentially private aggregates.
	PermissionAggregate Permission = "aggregate"
)

var validPermissions = map[Permission]bool{
	PermissionRead:      true,
	PermissionWrite:     true,
	PermissionShare:     true,
	PermissionExport:    true,
	PermissionDelete:    true,
	PermissionAmend:     true,
	PermissionAggregate: true,
}

// ParsePermission constructs a Permission from external input.
func ParsePermission(s string) (Permission, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "permission cannot be empty")
	}
	p := Permission(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid permission: "+s)
	}
	return p, nil
}

func (p Permission) IsValid() bool  { return validPermissions[p] }
func (p Permission) String() string { return string(p) }

// AllPermissions lists every permission in a stable order.
func AllPermissions() []Permission {
	return []Permission{
		PermissionRead, PermissionWrite, PermissionShare, PermissionExport,
		PermissionDelete, PermissionAmend, PermissionAggregate,
	}
}
