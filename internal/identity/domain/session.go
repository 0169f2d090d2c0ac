package domain

import "time"

// Session is the ephemeral authentication state of one login. It is a value
// threaded through calls, not a persisted record: the two booleans form the
// authorization state machine.
//
//	Authenticated=false                  -> UNAUTHENTICATED
//	Authenticated=true,  MFAVerified=false -> MFA_PENDING
//	Authenticated=true,  MFAVerified=true  -> fully verified
//
// A principal without MFA enabled is issued MFAVerified=true directly from
// login.
type Session struct {
	ID            string
	UserID        string
	Authenticated bool
	MFAVerified   bool
	IssuedAt      time.Time
}

// FullyVerified reports whether every protected action may proceed.
func (s Session) FullyVerified() bool {
	return s.Authenticated && s.MFAVerified
}

// ElevationPending reports whether the session awaits a second factor.
func (s Session) ElevationPending() bool {
	return s.Authenticated && !s.MFAVerified
}
