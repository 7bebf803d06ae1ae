package store

import "errors"

// ErrNotFound is returned when no matching instance row exists.
var ErrNotFound = errors.New("instance not found")

// InstanceFields is a partial update applied to an existing instance row.
// Nil pointers leave the column untouched.
type InstanceFields struct {
	Status      *InstanceStatus
	PairingCode *string // empty string clears the code
}

// InstanceStore is the persistence gateway for channel instances.
//
// Update returns the number of rows matched so callers can detect a lost
// race (zero rows) and fall back to Upsert. Upsert is keyed on
// (owner_id, instance_name).
type InstanceStore interface {
	// FindActive returns the newest non-deleted instance for the owner,
	// or ErrNotFound.
	FindActive(ownerID string) (*ChannelInstance, error)

	Insert(inst *ChannelInstance) error
	Update(ownerID, instanceName string, fields InstanceFields) (int64, error)
	Upsert(inst *ChannelInstance) error

	// SoftDelete marks the row deleted and sets its final status.
	SoftDelete(id string, status InstanceStatus) error

	// HardDelete removes the row entirely. Used when a stale pending row
	// is abandoned during reconciliation.
	HardDelete(id string) error
}
