package domain

import "time"

// EnrollmentState is the TOTP enrollment state machine:
// DISABLED -> PENDING_VERIFICATION -> ENABLED -> DISABLED. DISABLED is
// represented by the absence of an enrollment row.
type EnrollmentState string

const (
	EnrollmentPending EnrollmentState = "PENDING_VERIFICATION"
	EnrollmentEnabled EnrollmentState = "ENABLED"
)

// Enrollment holds a principal's TOTP material. The shared secret is sealed
// with AES-GCM before it reaches storage and never leaves the service after
// setup completes.
type Enrollment struct {
	UserID       string
	SecretSealed []byte
	State        EnrollmentState
	EnabledAt    *time.Time
	// TOTPLastStep is the highest TOTP time step already consumed by a
	// successful verification. A code from a step at or below this value is
	// a replay and must be rejected.
	TOTPLastStep int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EnrollmentSetup is returned from setup initiation. The secret and
// provisioning URI are shown to the user exactly once.
type EnrollmentSetup struct {
	Secret          string // base32, for manual entry
	ProvisioningURI string // otpauth:// URL for QR rendering
}

// BackupCode is a single-use recovery credential. Only the hash is stored;
// UsedAt, once set, never reverts.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}
