package domain

import "time"

// Role is the access level granted to a principal. Roles are assigned at
// invite time and carried onto the created user.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// CanInvite reports whether a principal with this role may issue or revoke
// invites.
func (r Role) CanInvite() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

type User struct {
	ID           string
	Email        string // stored lowercase; unique
	DisplayName  string
	Role         Role
	PasswordHash string // argon2id PHC encoded
	// MFAEnabled mirrors the enrollment state so login can branch without a
	// second lookup. It is only flipped in the same transaction as the
	// enrollment transition.
	MFAEnabled      bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
