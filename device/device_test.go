package device_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uevmon/uevmon/device"
)

func TestFromNulstr(t *testing.T) {
	buf := []byte("INTERFACE=lo\x00SUBSYSTEM=net\x00ACTION=add\x00DEVPATH=/devices/virtual/net/lo\x00")

	d, err := device.FromNulstr(buf)
	require.NoError(t, err)

	require.Equal(t, "net", d.Subsystem())
	require.Equal(t, "", d.Devtype())
	require.Equal(t, "add", d.Action())
	require.Equal(t, "/devices/virtual/net/lo", d.Devpath())
	require.Equal(t, "lo", d.Property("INTERFACE"))
	require.Empty(t, d.Tags())
	require.False(t, d.IsInitialized())
}

func TestFromNulstrTrailingTerminator(t *testing.T) {
	// kernel uevents end with an empty string
	d, err := device.FromNulstr([]byte("SUBSYSTEM=net\x00ACTION=add\x00\x00"))
	require.NoError(t, err)
	require.Equal(t, "net", d.Subsystem())
}

func TestFromNulstrErrors(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		err  error
	}{
		{"empty", nil, device.ErrEmptyProperties},
		{"only terminators", []byte("\x00\x00"), device.ErrEmptyProperties},
		{"no equals sign", []byte("SUBSYSTEM\x00"), device.ErrInvalidProperty},
		{"empty key", []byte("=net\x00"), device.ErrInvalidProperty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := device.FromNulstr(tt.buf)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

// Serialization must preserve insertion order so a parsed record round-trips
// to the same bytes.
func TestNulstrRoundTrip(t *testing.T) {
	buf := []byte("ACTION=add\x00DEVPATH=/devices/pci0000:00/usb1\x00SUBSYSTEM=usb\x00DEVTYPE=usb_device\x00SEQNUM=991\x00TAGS=:systemd:seat:\x00")

	d, err := device.FromNulstr(buf)
	require.NoError(t, err)

	out, err := d.Nulstr()
	require.NoError(t, err)
	require.Equal(t, buf, out)
}

func TestNulstrEmptyDevice(t *testing.T) {
	_, err := device.New().Nulstr()
	require.ErrorIs(t, err, device.ErrEmptyProperties)
}

func TestTagsFromProperty(t *testing.T) {
	d, err := device.FromNulstr([]byte("SUBSYSTEM=block\x00TAGS=:systemd:seat:\x00"))
	require.NoError(t, err)

	require.Equal(t, []string{"systemd", "seat"}, d.Tags())
	require.True(t, d.HasTag("systemd"))
	require.True(t, d.HasTag("seat"))
	require.False(t, d.HasTag("uaccess"))
}

func TestAddTag(t *testing.T) {
	d := device.New()
	d.SetProperty("SUBSYSTEM", "block")

	d.AddTag("systemd")
	d.AddTag("seat")
	d.AddTag("systemd") // duplicate is a no-op
	d.AddTag("")        // so is the empty tag

	require.Equal(t, []string{"systemd", "seat"}, d.Tags())
	require.Equal(t, ":systemd:seat:", d.Property("TAGS"))
}

func TestSetPropertyTagsReparses(t *testing.T) {
	d := device.New()
	d.AddTag("systemd")

	d.SetProperty("TAGS", ":uaccess:")
	require.Equal(t, []string{"uaccess"}, d.Tags())
	require.False(t, d.HasTag("systemd"))
}

func TestSetPropertyReplaces(t *testing.T) {
	d := device.New()
	d.SetProperty("ACTION", "add")
	d.SetProperty("ACTION", "remove")

	require.Equal(t, "remove", d.Action())
	require.Equal(t, []string{"ACTION"}, d.Properties())
}

func TestSetInitialized(t *testing.T) {
	d := device.New()
	require.False(t, d.IsInitialized())

	d.SetInitialized()
	require.True(t, d.IsInitialized())
}
