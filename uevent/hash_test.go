package uevent_test

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uevmon/uevmon/uevent"
)

// The hash is shared with the udev daemon on the other side of the socket;
// these vectors pin the function so a refactor cannot silently change it.
func TestHash32(t *testing.T) {
	tests := []struct {
		s    string
		want uint32
	}{
		{"", 0x00000000},
		{"block", 0xf0031db7},
		{"net", 0xa74d3cc8},
		{"usb", 0x0577c5e5},
		{"disk", 0x7bcbc5ee},
		{"usb_device", 0x27f8f50c},
		{"systemd", 0xa75f972a},
		{"qJ3mX7vR2pL9sK4wT8nB1cF6hD0gY5uZaQ7eW2rM9oP4iU8xV3kN6jH1bS5tC0dA", 0xdfa65ad4},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			got := uevent.Hash32(tt.s)
			if got != tt.want {
				t.Errorf("Hash32(%q) = %#08x, expected %#08x", tt.s, got, tt.want)
			}
		})
	}
}

func TestBloom64(t *testing.T) {
	tests := []struct {
		s    string
		want uint64
	}{
		{"", 0x0000000000000001},
		{"block", 0x00c2000000000000},
		{"systemd", 0x0200040010000000},
		{"seat", 0x0208000000000001},
		{"uaccess", 0x0000200000001008},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			got := uevent.Bloom64(tt.s)
			if got != tt.want {
				t.Errorf("Bloom64(%q) = %#016x, expected %#016x", tt.s, got, tt.want)
			}
		})
	}
}

func TestBloom64BitCount(t *testing.T) {
	for _, s := range []string{"", "block", "net", "usb", "systemd", "seat", "uaccess", "disk"} {
		n := bits.OnesCount64(uevent.Bloom64(s))
		require.LessOrEqual(t, n, 3, "tag %q", s)
		require.GreaterOrEqual(t, n, 1, "tag %q", s)
	}
}

// A device carrying a set of tags must never test negative for any tag in
// the set, no matter which other tags are OR-ed in.
func TestBloomMatchesNoFalseNegatives(t *testing.T) {
	tags := []string{"systemd", "seat", "uaccess", "block", "mytag-42"}

	var combined uint64
	for _, tag := range tags {
		combined |= uevent.Bloom64(tag)
	}

	for _, tag := range tags {
		require.True(t, uevent.BloomMatches(combined, uevent.Bloom64(tag)), "tag %q", tag)
	}
}

func TestBloomMatchesMiss(t *testing.T) {
	// not a false-positive pair; pinned by the vectors above
	require.False(t, uevent.BloomMatches(uevent.Bloom64("systemd"), uevent.Bloom64("uaccess")))
}
