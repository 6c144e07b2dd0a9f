package store

import "time"

// JobStatus is the closed enumeration of DiscoveryJob lifecycle states
// (spec §3, §4.8). Kept as a distinct type rather than a bare string; the
// state machine itself is the set of conditional updates in JobStore.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// DeviceStatus is the closed enumeration of Device health states.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceUnknown DeviceStatus = "unknown"
	DeviceError   DeviceStatus = "error"
)

// CredentialProfile is an owner-scoped SSH credential bundle (spec §3).
// Secret and PrivateKey are always ciphertext; the API surface must never
// emit either field back to a caller.
type CredentialProfile struct {
	ID         string `gorm:"primaryKey"`
	Name       string
	Username   string
	Secret     string // ciphertext, base64
	PrivateKey string // ciphertext, base64, optional
	Port       int
	OwnerID    string `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DiscoveryJob is one scan request (spec §3).
type DiscoveryJob struct {
	ID                  string `gorm:"primaryKey"`
	Name                string
	Status              JobStatus `gorm:"index"`
	TargetRange         string
	CredentialProfileID string `gorm:"index"`
	Summary             JSONMap `gorm:"type:text"`
	CreatedAt           time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
	CreatedBy           string `gorm:"index"`
}

// Device is a host known to the system (spec §3). DiscoveryJobID records
// which job most recently (re)discovered it — the resolution of the
// results-scoping Open Question in spec §9 / SPEC_FULL.md §9.
type Device struct {
	ID                  string `gorm:"primaryKey"`
	Hostname            string
	IPv4Address         string       `gorm:"uniqueIndex:idx_profile_ip"`
	DeviceType          string
	OSFacts             JSONMap      `gorm:"type:text"`
	CredentialProfileID string       `gorm:"uniqueIndex:idx_profile_ip;index"`
	DiscoveryJobID      string       `gorm:"index"`
	Status              DeviceStatus `gorm:"index"`
	LastSeen            time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
