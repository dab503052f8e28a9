package uevent

// Stats counts what happened on a monitor's socket. Counters follow the
// monitor's single-goroutine discipline; read them from the receive
// goroutine or after it has stopped.
type Stats struct {
	// Received counts datagrams read from the socket.
	Received uint64
	// Dropped counts datagrams rejected by policy: bad length, untrusted
	// sender, missing or non-root credentials, corrupt header.
	Dropped uint64
	// Filtered counts devices rejected by the user-space match filter after
	// passing the kernel filter.
	Filtered uint64
	// Delivered counts devices handed to the caller.
	Delivered uint64
	// Sent counts devices transmitted by SendDevice.
	Sent uint64
}
