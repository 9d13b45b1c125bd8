package models

// PlaceRoleKind tags the role a user holds on a specific place.
type PlaceRoleKind string

const (
	PlaceRoleOwner    PlaceRoleKind = "OWNER"
	PlaceRoleEmployee PlaceRoleKind = "EMPLOYEE"
	PlaceRoleFollower PlaceRoleKind = "FOLLOWER"
	PlaceRoleNone     PlaceRoleKind = "NONE"
)

// PlaceRole is the resolved role of a (user, place) pair. It is computed once
// per pair and threaded through conversation derivation and permission checks
// instead of repeated inline owner/employee lookups.
type PlaceRole struct {
	Kind PlaceRoleKind `json:"kind"`

	// EmployeeID and the permission flags are set only for EMPLOYEE roles.
	EmployeeID       string `json:"employeeId,omitempty"`
	CanMessage       bool   `json:"canMessage,omitempty"`
	CanPost          bool   `json:"canPost,omitempty"`
	CanManageProduct bool   `json:"canManageProducts,omitempty"`
}

// ActsForPlace reports whether this role replies on behalf of the place
// (owner or messaging-enabled employee).
func (r PlaceRole) ActsForPlace() bool {
	switch r.Kind {
	case PlaceRoleOwner:
		return true
	case PlaceRoleEmployee:
		return r.CanMessage
	}
	return false
}
