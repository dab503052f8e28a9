package uevent

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// receiveBufferSize bounds a single datagram; anything larger is truncated
// by the kernel and dropped here as corrupt.
const receiveBufferSize = 8192

// A datagram shorter than this cannot contain a device in either format.
const minMessageSize = 32

// minKernelHeader is the shortest possible kernel uevent header line,
// "a@/d" plus its terminating NUL.
const minKernelHeader = len("a@/d") + 1

// ReceiveDevice reads from the monitor socket until a device passes all
// filters, a hard error occurs, or the socket is dry, in which case it
// returns ErrAgain. Only devices rejected by the user-space filter keep the
// loop going; a datagram dropped by policy (length, sender, credentials,
// malformed content) ends the call with ErrAgain. The socket is
// non-blocking; wait for readability on Fd before calling.
func (m *Monitor) ReceiveDevice() (Device, error) {
	pfd := []unix.PollFd{{Fd: int32(m.sock), Events: unix.POLLIN}}

	for {
		dev, err := m.receiveOne()
		if dev != nil || err != nil {
			return dev, err
		}

		// A device arrived but did not pass the filter; drain the socket
		// without blocking the caller.
		for {
			n, err := unix.Poll(pfd, 0)
			if err != nil {
				if err == unix.EINTR || err == unix.EAGAIN {
					continue
				}
				return nil, fmt.Errorf("failed to poll uevent socket: %w", err)
			}
			if n == 0 {
				return nil, ErrAgain
			}
			break
		}
	}
}

// receiveOne performs a single datagram read. It returns (nil, nil) when a
// device was received but rejected by the user-space filter, so the caller
// can decide whether to keep draining.
func (m *Monitor) receiveOne() (Device, error) {
	buf := make([]byte, receiveBufferSize)
	oob := make([]byte, unix.CmsgSpace(unix.SizeofUcred))

	n, oobn, recvflags, from, err := unix.Recvmsg(m.sock, buf, oob, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil, ErrAgain
		}
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	m.stats.Received++

	if n < minMessageSize || recvflags&unix.MSG_TRUNC != 0 {
		m.stats.Dropped++
		m.logger.Debugw("invalid message length, ignored", "len", n)
		return nil, ErrAgain
	}

	nl, ok := from.(*unix.SockaddrNetlink)
	if !ok {
		m.stats.Dropped++
		return nil, ErrAgain
	}

	switch Group(nl.Groups) {
	case GroupNone:
		// unicast: check whether we trust the sender
		if m.trustedSender == 0 || nl.Pid != m.trustedSender {
			m.stats.Dropped++
			m.logger.Debugw("unicast uevent message ignored", "sender", nl.Pid)
			return nil, ErrAgain
		}
	case GroupKernel:
		if nl.Pid > 0 {
			m.stats.Dropped++
			m.logger.Debugw("multicast kernel message from user space ignored", "sender", nl.Pid)
			return nil, ErrAgain
		}
	}

	cred, err := parseCredentials(oob[:oobn])
	if err != nil || cred == nil {
		m.stats.Dropped++
		m.logger.Debugw("no sender credentials received, message ignored")
		return nil, ErrAgain
	}
	if cred.Uid != 0 {
		m.stats.Dropped++
		m.logger.Debugw("message from unprivileged sender ignored", "uid", cred.Uid)
		return nil, ErrAgain
	}

	var (
		propOff     int
		initialized bool
	)

	if isUdevMessage(buf[:n]) {
		hdr, ok := decodeHeader(buf[:n])
		if !ok || hdr.Magic != Magic {
			m.stats.Dropped++
			m.logger.Debugw("invalid message signature, ignored")
			return nil, ErrAgain
		}
		if int(hdr.PropertiesOff)+minMessageSize > n {
			m.stats.Dropped++
			m.logger.Debugw("invalid message property offset, ignored", "off", hdr.PropertiesOff, "len", n)
			return nil, ErrAgain
		}

		propOff = int(hdr.PropertiesOff)

		// devices received from udev have been through rule processing
		initialized = true
	} else {
		// kernel message: "action@devpath" line, then properties
		i := bytes.IndexByte(buf[:n], 0)
		if i < 0 || i+1 < minKernelHeader || i+1 >= n {
			m.stats.Dropped++
			m.logger.Debugw("invalid kernel message length, ignored", "len", n)
			return nil, ErrAgain
		}
		if !bytes.Contains(buf[:i], []byte("@/")) {
			m.stats.Dropped++
			m.logger.Debugw("invalid kernel message header, ignored")
			return nil, ErrAgain
		}

		propOff = i + 1
	}

	dev, err := m.newDevice(buf[propOff:n])
	if err != nil {
		m.stats.Dropped++
		m.logger.Debugw("failed to create device from message, ignored", "err", err)
		return nil, ErrAgain
	}

	if initialized {
		dev.SetInitialized()
	}

	// The kernel filter compares hashes and blooms and may let collisions
	// through; re-check against the device's actual strings.
	if !m.passesFilter(dev) {
		m.stats.Filtered++
		return nil, nil
	}

	m.stats.Delivered++
	return dev, nil
}

func parseCredentials(oob []byte) (*unix.Ucred, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	if len(scms) == 0 {
		return nil, nil
	}

	return unix.ParseUnixCredentials(&scms[0])
}

// passesFilter re-applies the monitor's matches by exact string comparison.
func (m *Monitor) passesFilter(dev Device) bool {
	if len(m.subsystemFilter) > 0 {
		subsystem := dev.Subsystem()
		devtype := dev.Devtype()

		matched := false
		for s, d := range m.subsystemFilter {
			if subsystem != s {
				continue
			}
			if d == "" || (devtype != "" && devtype == d) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(m.tagFilter) > 0 {
		for tag := range m.tagFilter {
			if dev.HasTag(tag) {
				return true
			}
		}
		return false
	}

	return true
}
