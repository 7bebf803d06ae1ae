package store

import (
	"time"

	"github.com/google/uuid"
)

// InstanceStatus is the lifecycle state of a channel instance.
type InstanceStatus string

const (
	// StatusDisconnected means no remote instance is linked.
	StatusDisconnected InstanceStatus = "disconnected"
	// StatusPending means an instance was provisioned and is waiting for
	// the pairing code to be scanned.
	StatusPending InstanceStatus = "pending"
	// StatusAuthorized means the remote account approved the pairing.
	StatusAuthorized InstanceStatus = "authorized"
	// StatusExpired means the pairing window elapsed before authorization.
	StatusExpired InstanceStatus = "expired"
)

// ChannelInstance is the durable record of one provisioned messaging-channel
// instance. At most one non-deleted row exists per owner.
type ChannelInstance struct {
	ID               uuid.UUID      `json:"id"`
	OwnerID          string         `json:"owner_id"`
	InstanceName     string         `json:"instance_name"`
	PairingToken     string         `json:"pairing_token"`
	RemoteInstanceID string         `json:"remote_instance_id,omitempty"`
	Status           InstanceStatus `json:"status"`
	PairingCode      string         `json:"pairing_code,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
}

// Active reports whether the row is not soft-deleted.
func (ci *ChannelInstance) Active() bool {
	return ci.DeletedAt == nil
}

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
