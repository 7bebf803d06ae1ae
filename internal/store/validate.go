package store

import "fmt"

// MaxOwnerIDLength is the maximum allowed length for owner identifier
// strings. Matches the VARCHAR(255) constraint in the database schema.
const MaxOwnerIDLength = 255

// MaxInstanceNameLength bounds generated instance names. The provisioning
// API rejects names longer than this.
const MaxInstanceNameLength = 100

// ValidateOwnerID checks that an owner identifier is usable as a key.
func ValidateOwnerID(id string) error {
	if id == "" {
		return fmt.Errorf("owner identifier is empty")
	}
	if len(id) > MaxOwnerIDLength {
		return fmt.Errorf("owner identifier too long: %d chars (max %d)", len(id), MaxOwnerIDLength)
	}
	return nil
}

// ValidateInstanceName checks that a generated instance name fits the
// remote provider's constraints.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name is empty")
	}
	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d chars (max %d)", len(name), MaxInstanceNameLength)
	}
	return nil
}
