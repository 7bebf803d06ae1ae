package connection

import "strings"

// Classification is the closed set the poller works with. The provider
// reports free-form state tokens and is not consistent across versions,
// so every raw spelling is funneled through Classify before any decision
// is made.
type Classification int

const (
	// ClassOther covers every token that is neither an in-progress
	// handshake nor a completed authorization.
	ClassOther Classification = iota
	// ClassConnecting is an in-progress handshake.
	ClassConnecting
	// ClassAuthorized means the pairing completed.
	ClassAuthorized
)

func (c Classification) String() string {
	switch c {
	case ClassConnecting:
		return "connecting"
	case ClassAuthorized:
		return "authorized"
	}
	return "other"
}

// Classify maps a provider state token onto the closed classification set.
func Classify(raw string) Classification {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "connecting", "pairing", "syncing":
		return ClassConnecting
	case "open", "connected", "authorized", "online":
		return ClassAuthorized
	}
	return ClassOther
}
