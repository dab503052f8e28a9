package uevent

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SendDevice serializes the device and transmits it in udev wire format. A
// nil dest sends to the udev multicast group; with a dest monitor the
// message is unicast to its address. Multicast with nobody listening is not
// an error.
func (m *Monitor) SendDevice(dest *Monitor, dev Device) error {
	sa := unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if dest != nil {
		sa.Pid = dest.pid
	} else {
		sa.Groups = uint32(GroupUdev)
	}

	return m.sendDevice(&sa, dest != nil, dev)
}

// SendDeviceToPid unicasts the device to an explicit netlink port, for
// peers that are not monitors in this process.
func (m *Monitor) SendDeviceToPid(pid uint32, dev Device) error {
	sa := unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: pid}

	return m.sendDevice(&sa, true, dev)
}

func (m *Monitor) sendDevice(sa *unix.SockaddrNetlink, explicit bool, dev Device) error {
	props, err := dev.Nulstr()
	if err != nil {
		return fmt.Errorf("failed to get device properties: %w", err)
	}
	if len(props) < minMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrShortProperties, len(props))
	}

	hdr := wireHeader{
		Prefix:        udevPrefix,
		Magic:         Magic,
		HeaderSize:    headerSize,
		PropertiesOff: headerSize,
		PropertiesLen: uint32(len(props)),
		SubsystemHash: Hash32(dev.Subsystem()),
	}

	if devtype := dev.Devtype(); devtype != "" {
		hdr.DevtypeHash = Hash32(devtype)
	}

	var bloom uint64
	for _, tag := range dev.Tags() {
		bloom |= Bloom64(tag)
	}
	if bloom > 0 {
		hdr.TagBloomHi = uint32(bloom >> 32)
		hdr.TagBloomLo = uint32(bloom)
	}

	n, err := unix.SendmsgBuffers(m.sock, [][]byte{hdr.encode(), props}, nil, sa, 0)
	if err != nil {
		// multicast into the void is expected when nobody subscribed
		if !explicit && err == unix.ECONNREFUSED {
			m.logger.Debugw("no multicast listeners, device not delivered")
			return nil
		}
		return fmt.Errorf("failed to send device: %w", err)
	}

	m.stats.Sent++
	m.logger.Debugw("passed device to netlink monitor", "bytes", n)

	return nil
}
