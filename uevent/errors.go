package uevent

import "errors"

var (
	// ErrAgain means no device is available right now: the socket is dry, or
	// a datagram arrived but was dropped by policy (untrusted sender, missing
	// credentials, corrupt header). The caller may retry after the monitor's
	// file descriptor signals readable again.
	ErrAgain = errors.New("no device available")

	ErrInvalidGroup    = errors.New("unknown event source")
	ErrFilterTooLarge  = errors.New("filter does not fit into a socket filter program")
	ErrEmptyMatch      = errors.New("empty match string")
	ErrShortProperties = errors.New("property buffer too small to describe a device")
)
