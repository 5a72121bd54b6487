package channel

import "errors"

// Sentinel errors for the adapter registry and inbound parsing.
var (
	ErrDuplicateChannel = errors.New("channel: duplicate channel name")
	ErrEmptyChannelName = errors.New("channel: empty channel name")

	// ErrBadPayload marks an inbound body the adapter could not parse at
	// all; the gateway maps it to a 400 instead of a 500.
	ErrBadPayload = errors.New("channel: malformed inbound payload")
)
