package groups

import "errors"

var (
	// ErrPlayerUnavailable is returned when a referenced player does not resolve
	ErrPlayerUnavailable = errors.New("player is not available")

	// ErrProviderUnavailable is returned when a referenced provider does not resolve
	ErrProviderUnavailable = errors.New("provider is not available")

	// ErrUnsupportedOperation is returned when a command is invoked against the
	// wrong group flavor (e.g. play/pause on a universal group)
	ErrUnsupportedOperation = errors.New("operation is not supported for this group type")

	// ErrNoGroupMembers signals a data-integrity bug: a registered group must
	// never have zero members
	ErrNoGroupMembers = errors.New("group has no members to select a sync leader from")

	// ErrStreamNotFound is returned when no live broadcast stream exists for a group
	ErrStreamNotFound = errors.New("no active stream for group")
)
