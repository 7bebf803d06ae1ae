package wapi

import "errors"

var (
	// ErrNameInUse means the provider already has an instance with the
	// requested name. Callers recover by deleting the stale instance and
	// retrying once.
	ErrNameInUse = errors.New("instance name already in use")

	// ErrNotFound means the instance does not exist remotely. Teardown
	// calls treat this as success.
	ErrNotFound = errors.New("instance not found")
)
