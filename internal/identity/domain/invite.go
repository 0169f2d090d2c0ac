package domain

import "time"

// InviteStatus is the lifecycle state of an invite. PENDING is the only
// non-terminal state; transitions never leave a terminal state.
type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteExpired  InviteStatus = "EXPIRED"
	InviteRevoked  InviteStatus = "REVOKED"
)

// Terminal reports whether no further transition is permitted from s.
func (s InviteStatus) Terminal() bool {
	return s != InvitePending
}

// Invite is a single-use, time-boxed offer to register with a pre-assigned
// role. Invites are never deleted; terminal rows remain as audit records.
type Invite struct {
	ID        string
	TokenHash string
	Email     string // invited address, stored lowercase
	Role      Role
	InvitedBy string // inviter user id
	Message   string // optional personal message, included in the email
	Status    InviteStatus
	CreatedAt time.Time
	// ExpiresAt is persisted at issue time rather than derived from
	// CreatedAt, so TTL configuration changes never affect tokens already
	// in flight.
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    string // user created by accepting, empty until accepted
}
