package uevent

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/uevmon/uevmon/device"
)

// Group is a multicast group on the uevent netlink family.
type Group uint32

const (
	// GroupNone joins no multicast group; only trusted unicast senders are
	// heard.
	GroupNone Group = 0
	// GroupKernel carries raw kernel uevents.
	GroupKernel Group = 1
	// GroupUdev carries events rebroadcast by the udev daemon after rule
	// processing.
	GroupUdev Group = 2
)

// Event source names accepted by NewMonitor.
const (
	SourceKernel = "kernel"
	SourceUdev   = "udev"
)

// Device is the view of a device record the monitor needs: identity strings
// for filtering, tags for the bloom filter, and a serialized property
// buffer for the wire.
type Device interface {
	Subsystem() string
	Devtype() string
	Tags() []string
	HasTag(tag string) bool
	Nulstr() ([]byte, error)
	SetInitialized()
}

// DeviceFactory constructs a device from a NUL-delimited property buffer.
type DeviceFactory func(nulstr []byte) (Device, error)

func defaultDeviceFactory(nulstr []byte) (Device, error) {
	dev, err := device.FromNulstr(nulstr)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Monitor owns one datagram socket on the kernel's uevent netlink family
// and delivers device records that pass its filters.
//
// A Monitor is not safe for concurrent use: exactly one goroutine must be
// the receiver, and filter mutation concurrent with receiving is undefined.
type Monitor struct {
	logger *zap.SugaredLogger
	sock   int
	group  Group

	// pid is the port the kernel assigned to the socket; well-defined after
	// construction from an existing fd, or after the first successful bind.
	pid           uint32
	trustedSender uint32
	bound         bool

	subsystemFilter map[string]string
	tagFilter       map[string]struct{}

	newDevice DeviceFactory
	stats     Stats
}

// NewMonitor creates a monitor connected to the named event source, one of
// "kernel", "udev", or "" for no source (send-only, or trusted unicast
// receive). Subscribing to "udev" when the udev daemon is not running is
// silently downgraded to no source, so host processing data is never
// broadcast into containers.
func NewMonitor(logger *zap.SugaredLogger, source string) (*Monitor, error) {
	return newMonitor(logger, source, -1)
}

// NewMonitorFromFd adopts an existing, already bound uevent socket. The
// kernel-assigned address is read back from the socket; on failure the fd is
// closed, as the monitor owns it from the moment it is passed in.
func NewMonitorFromFd(logger *zap.SugaredLogger, source string, fd int) (*Monitor, error) {
	if fd < 0 {
		return nil, fmt.Errorf("invalid file descriptor %d", fd)
	}
	return newMonitor(logger, source, fd)
}

func newMonitor(logger *zap.SugaredLogger, source string, fd int) (*Monitor, error) {
	var group Group

	switch source {
	case "":
		group = GroupNone
	case SourceKernel:
		group = GroupKernel
	case SourceUdev:
		if udevIsRunning() {
			group = GroupUdev
		} else {
			logger.Debugw("udev service seems not to be active, disabling the monitor")
			group = GroupNone
		}
	default:
		if fd >= 0 {
			unix.Close(fd)
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidGroup, source)
	}

	sock := fd
	if sock < 0 {
		var err error
		sock, err = unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.NETLINK_KOBJECT_UEVENT)
		if err != nil {
			return nil, fmt.Errorf("failed to create uevent socket: %w", err)
		}
	}

	m := &Monitor{
		logger:          logger,
		sock:            sock,
		group:           group,
		bound:           fd >= 0,
		subsystemFilter: make(map[string]string),
		tagFilter:       make(map[string]struct{}),
		newDevice:       defaultDeviceFactory,
	}

	if fd >= 0 {
		if err := m.readBackAddress(); err != nil {
			unix.Close(sock)
			return nil, err
		}
	}

	return m, nil
}

// readBackAddress records the port the kernel assigned to the socket. It is
// usually, but not necessarily, the process ID.
func (m *Monitor) readBackAddress() error {
	sa, err := unix.Getsockname(m.sock)
	if err != nil {
		return fmt.Errorf("failed to get socket address: %w", err)
	}

	nl, ok := sa.(*unix.SockaddrNetlink)
	if !ok {
		return fmt.Errorf("fd is not a netlink socket")
	}

	m.pid = nl.Pid
	return nil
}

// Fd returns the socket file descriptor, for integration with an external
// readiness loop.
func (m *Monitor) Fd() int {
	return m.sock
}

// Group returns the multicast group the monitor is (or will be) joined to.
func (m *Monitor) Group() Group {
	return m.group
}

// SetDeviceFactory replaces the constructor used to build devices from
// received property buffers.
func (m *Monitor) SetDeviceFactory(f DeviceFactory) {
	m.newDevice = f
}

// SetReceiveBufferSize sets the kernel receive buffer of the socket with
// SO_RCVBUFFORCE, which ignores the system maximum and requires
// CAP_NET_ADMIN for any size.
func (m *Monitor) SetReceiveBufferSize(size int) error {
	if err := unix.SetsockoptInt(m.sock, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, size); err != nil {
		return fmt.Errorf("failed to set receive buffer size: %w", err)
	}
	return nil
}

// AllowUnicastSender accepts unicast messages from the sender monitor's
// address. Without this, all unicast traffic is dropped.
func (m *Monitor) AllowUnicastSender(sender *Monitor) error {
	if sender == nil {
		return fmt.Errorf("nil sender monitor")
	}

	m.trustedSender = sender.pid
	return nil
}

// EnableReceiving installs the current filter, binds the socket to the
// monitor's group, records the kernel-assigned address, and enables receipt
// of sender credentials. Re-enabling an already bound monitor repeats only
// the filter install and the address readback.
func (m *Monitor) EnableReceiving() error {
	if err := m.FilterUpdate(); err != nil {
		return fmt.Errorf("failed to update filter: %w", err)
	}

	if !m.bound {
		sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: uint32(m.group)}
		if err := unix.Bind(m.sock, sa); err != nil {
			return fmt.Errorf("failed to bind uevent socket: %w", err)
		}
		m.bound = true
	}

	if err := m.readBackAddress(); err != nil {
		return err
	}

	if err := unix.SetsockoptInt(m.sock, unix.SOL_SOCKET, unix.SO_PASSCRED, 1); err != nil {
		return fmt.Errorf("failed to enable credential passing: %w", err)
	}

	return nil
}

// AddMatchSubsystemDevtype filters received devices by subsystem and,
// when devtype is not empty, by devtype. Adding the same subsystem again
// replaces its devtype match.
//
// Matches should be installed before EnableReceiving; a match added after
// binding takes effect in the kernel only on the next FilterUpdate, and is
// applied in user space until then.
func (m *Monitor) AddMatchSubsystemDevtype(subsystem, devtype string) error {
	if subsystem == "" {
		return fmt.Errorf("%w: subsystem", ErrEmptyMatch)
	}

	m.subsystemFilter[subsystem] = devtype
	return nil
}

// AddMatchTag filters received devices by tag. Adding a tag twice is a
// no-op.
func (m *Monitor) AddMatchTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: tag", ErrEmptyMatch)
	}

	m.tagFilter[tag] = struct{}{}
	return nil
}

// FilterUpdate compiles the current matches and installs the program on the
// socket, replacing the previous one. It is a no-op while both match
// collections are empty.
func (m *Monitor) FilterUpdate() error {
	ins, err := compileFilter(m.subsystemFilter, m.tagFilter)
	if err != nil {
		return err
	}
	if ins == nil {
		return nil
	}

	return attachFilter(m.sock, ins)
}

// FilterRemove clears all matches and removes the kernel filter, so the
// monitor accepts everything its group delivers.
func (m *Monitor) FilterRemove() error {
	clear(m.subsystemFilter)
	clear(m.tagFilter)

	return detachFilter(m.sock)
}

// Stats returns the monitor's receive and send counters.
func (m *Monitor) Stats() Stats {
	return m.stats
}

// Disconnect closes the socket. Any concurrent read fails once the fd is
// gone; callers needing teardown coordination must provide it themselves.
func (m *Monitor) Disconnect() error {
	if m.sock < 0 {
		return nil
	}

	err := unix.Close(m.sock)
	m.sock = -1
	if err != nil {
		return fmt.Errorf("failed to close uevent socket: %w", err)
	}

	return nil
}

// Close releases the monitor: the socket is closed and the filter
// collections are dropped. Close is idempotent.
func (m *Monitor) Close() error {
	m.subsystemFilter = nil
	m.tagFilter = nil

	return m.Disconnect()
}
