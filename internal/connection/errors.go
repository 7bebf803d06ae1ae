package connection

import "errors"

// User-actionable errors surfaced verbatim to the caller. Everything the
// poller and timers hit internally is absorbed and logged instead.
var (
	// ErrAlreadyConnected means an authorized instance already exists for
	// the owner. No remote call was made.
	ErrAlreadyConnected = errors.New("channel already connected")

	// ErrCreationInProgress means another Create call is still in flight
	// for this owner.
	ErrCreationInProgress = errors.New("instance creation already in progress")

	// ErrQRCodeMissing means provisioning succeeded but the response
	// carried neither an inline pairing image nor a raw code.
	ErrQRCodeMissing = errors.New("provider returned no pairing code")

	// ErrProvisioningFailed means remote creation failed after the
	// name-conflict recovery retry was exhausted.
	ErrProvisioningFailed = errors.New("remote provisioning failed")

	// ErrNoInstance means Delete was called with nothing to delete.
	ErrNoInstance = errors.New("no channel instance to disconnect")
)
