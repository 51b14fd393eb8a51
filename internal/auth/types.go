package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer may open floor plan sessions.
	RoleViewer Role = "viewer"

	// RoleEditor may additionally change widget and building configuration.
	RoleEditor Role = "editor"

	// RoleAdmin may additionally read system status.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleEditor, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Auth errors.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
