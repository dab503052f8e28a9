package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/uevmon/uevmon/device"
	"github.com/uevmon/uevmon/matchfile"
	"github.com/uevmon/uevmon/uevent"
)

var (
	sourceFlag    string
	subsystemFlag []string
	tagFlag       []string
	matchFileFlag string
	propertyFlag  bool
	linksFlag     bool
	rcvbufFlag    int
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print device events as they arrive",
	Long: `Monitor subscribes to a device event source and prints one line per
event until interrupted.

USAGE
	uevmon monitor [flags]

The kernel source delivers raw uevents; the udev source delivers events
after the daemon has finished rule processing. Matches given on the command
line or in a match file are compiled into a kernel socket filter before the
subscription starts.`,
	Run: func(cmd *cobra.Command, args []string) {
		l, err := zap.NewProduction()
		if err != nil {
			log.Fatalf("failed to get zap production logger: %v", err)
		}

		logger := l.Sugar()
		defer l.Sync()

		mon, err := newMonitor(logger)
		if err != nil {
			logger.Fatalw("failed to set up monitor", "err", err)
		}
		defer mon.Close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := run(ctx, mon); err != nil {
			logger.Fatalw("error while monitoring", "err", err)
		}

		stats := mon.Stats()
		logger.Infow("monitor stats",
			"received", stats.Received,
			"dropped", stats.Dropped,
			"filtered", stats.Filtered,
			"delivered", stats.Delivered,
		)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&sourceFlag, "source", uevent.SourceUdev,
		"event source to subscribe to (kernel or udev)")
	monitorCmd.Flags().StringArrayVar(&subsystemFlag, "subsystem-match", nil,
		"filter by SUBSYSTEM or SUBSYSTEM/DEVTYPE; may be given multiple times")
	monitorCmd.Flags().StringArrayVar(&tagFlag, "tag-match", nil,
		"filter by tag; may be given multiple times")
	monitorCmd.Flags().StringVar(&matchFileFlag, "match-file", "",
		"load matches from a TOML match file")
	monitorCmd.Flags().BoolVar(&propertyFlag, "property", false,
		"print the properties of each event")
	monitorCmd.Flags().BoolVar(&linksFlag, "links", false,
		"annotate net events with link details (MTU, state)")
	monitorCmd.Flags().IntVar(&rcvbufFlag, "rcvbuf", 0,
		"kernel receive buffer size in bytes (0 keeps the default)")
}

func newMonitor(logger *zap.SugaredLogger) (*uevent.Monitor, error) {
	mon, err := uevent.NewMonitor(logger, sourceFlag)
	if err != nil {
		return nil, err
	}

	for _, s := range subsystemFlag {
		subsystem, devtype, _ := strings.Cut(s, "/")
		if err := mon.AddMatchSubsystemDevtype(subsystem, devtype); err != nil {
			mon.Close()
			return nil, err
		}
	}

	for _, tag := range tagFlag {
		if err := mon.AddMatchTag(tag); err != nil {
			mon.Close()
			return nil, err
		}
	}

	if matchFileFlag != "" {
		mf, err := matchfile.Parse(matchFileFlag)
		if err != nil {
			mon.Close()
			return nil, err
		}
		if err := mf.Apply(mon); err != nil {
			mon.Close()
			return nil, err
		}
	}

	if rcvbufFlag > 0 {
		if err := mon.SetReceiveBufferSize(rcvbufFlag); err != nil {
			mon.Close()
			return nil, err
		}
	}

	if err := mon.EnableReceiving(); err != nil {
		mon.Close()
		return nil, err
	}

	return mon, nil
}

// run splits receiving and printing across two goroutines so slow output
// (terminal, link lookups) never backs up into the socket.
func run(ctx context.Context, mon *uevent.Monitor) error {
	// buffered so a burst of events doesn't stall the receiver
	events := make(chan *device.Device, 64)

	var eg errgroup.Group

	eg.Go(func() error {
		defer close(events)
		return receiveLoop(ctx, mon, events)
	})

	eg.Go(func() error {
		start := time.Now()
		for dev := range events {
			printDevice(time.Since(start), dev)
		}
		return nil
	})

	return eg.Wait()
}

func receiveLoop(ctx context.Context, mon *uevent.Monitor, events chan<- *device.Device) error {
	pfd := []unix.PollFd{{Fd: int32(mon.Fd()), Events: unix.POLLIN}}

	for ctx.Err() == nil {
		n, err := unix.Poll(pfd, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("failed to poll monitor fd: %w", err)
		}
		if n == 0 {
			continue
		}

		for {
			dev, err := mon.ReceiveDevice()
			if errors.Is(err, uevent.ErrAgain) {
				break
			}
			if err != nil {
				return err
			}

			if d, ok := dev.(*device.Device); ok {
				events <- d
			}
		}
	}

	return nil
}

func printDevice(elapsed time.Duration, d *device.Device) {
	fmt.Printf("%s[%10.6f] %-8s %s (%s)\n",
		strings.ToUpper(sourceFlag), elapsed.Seconds(), d.Action(), d.Devpath(), d.Subsystem())

	if linksFlag && d.Subsystem() == "net" {
		printLinkDetails(d)
	}

	if propertyFlag {
		for _, key := range d.Properties() {
			fmt.Printf("%s=%s\n", key, d.Property(key))
		}
		fmt.Println()
	}
}

// printLinkDetails asks rtnetlink about the interface the event refers to.
// The link may already be gone by the time we look; that is not an error.
func printLinkDetails(d *device.Device) {
	name := d.Property("INTERFACE")
	if name == "" {
		return
	}

	link, err := netlink.LinkByName(name)
	if err != nil {
		return
	}

	attrs := link.Attrs()
	fmt.Printf("  link %s: type=%s mtu=%d state=%s\n",
		name, link.Type(), attrs.MTU, attrs.OperState)
}
