package uevent

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// stubDevice is just enough of a device to drive the user-space filter.
type stubDevice struct {
	subsystem string
	devtype   string
	tags      []string
}

func (d *stubDevice) Subsystem() string { return d.subsystem }
func (d *stubDevice) Devtype() string   { return d.devtype }
func (d *stubDevice) Tags() []string    { return d.tags }
func (d *stubDevice) HasTag(tag string) bool {
	for _, t := range d.tags {
		if t == tag {
			return true
		}
	}
	return false
}
func (d *stubDevice) Nulstr() ([]byte, error) { return nil, nil }
func (d *stubDevice) SetInitialized()         {}

// The kernel filter compares hashes and may let collisions through; the
// user-space filter re-checks exact strings and must agree with the kernel
// program's intent on every case.
func TestPassesFilter(t *testing.T) {
	tests := []struct {
		name       string
		subsystems map[string]string
		tags       map[string]struct{}
		dev        stubDevice
		want       bool
	}{
		{
			name: "no filters pass everything",
			dev:  stubDevice{subsystem: "net"},
			want: true,
		},
		{
			name:       "subsystem match",
			subsystems: map[string]string{"net": ""},
			dev:        stubDevice{subsystem: "net"},
			want:       true,
		},
		{
			name:       "subsystem mismatch",
			subsystems: map[string]string{"block": ""},
			dev:        stubDevice{subsystem: "net"},
			want:       false,
		},
		{
			name:       "devtype match",
			subsystems: map[string]string{"usb": "usb_device"},
			dev:        stubDevice{subsystem: "usb", devtype: "usb_device"},
			want:       true,
		},
		{
			name:       "devtype mismatch",
			subsystems: map[string]string{"usb": "usb_device"},
			dev:        stubDevice{subsystem: "usb", devtype: "usb_interface"},
			want:       false,
		},
		{
			name:       "entry without devtype matches device with devtype",
			subsystems: map[string]string{"usb": ""},
			dev:        stubDevice{subsystem: "usb", devtype: "usb_device"},
			want:       true,
		},
		{
			name:       "device without devtype fails devtype entry",
			subsystems: map[string]string{"usb": "usb_device"},
			dev:        stubDevice{subsystem: "usb"},
			want:       false,
		},
		{
			name: "tag match",
			tags: tagSet("systemd"),
			dev:  stubDevice{subsystem: "net", tags: []string{"systemd", "seat"}},
			want: true,
		},
		{
			name: "tag mismatch",
			tags: tagSet("systemd"),
			dev:  stubDevice{subsystem: "net", tags: []string{"seat"}},
			want: false,
		},
		{
			name:       "subsystem passes but tag fails",
			subsystems: map[string]string{"net": ""},
			tags:       tagSet("systemd"),
			dev:        stubDevice{subsystem: "net", tags: []string{"seat"}},
			want:       false,
		},
		{
			name:       "subsystem and tag both pass",
			subsystems: map[string]string{"net": ""},
			tags:       tagSet("systemd"),
			dev:        stubDevice{subsystem: "net", tags: []string{"systemd"}},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Monitor{subsystemFilter: tt.subsystems, tagFilter: tt.tags}
			require.Equal(t, tt.want, m.passesFilter(&tt.dev))
		})
	}
}
