// Package uevent connects to the kernel's device event broadcast channel
// (NETLINK_KOBJECT_UEVENT) and to the udev daemon's multicast channel,
// filters events in the kernel with a synthesized classic BPF program, and
// hands structured device records up to the caller.
//
// The primary type is Monitor: create one with NewMonitor, install subsystem
// and tag matches, call EnableReceiving, and then drive ReceiveDevice from a
// poll loop on the monitor's file descriptor. The socket is non-blocking;
// ReceiveDevice returns ErrAgain when no matching event is queued.
//
// This package is intended as an interface to the uevent transport, without
// containing device management logic.
package uevent
