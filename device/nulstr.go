package device

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrEmptyProperties = errors.New("empty property buffer")
	ErrInvalidProperty = errors.New("invalid property entry")
)

// FromNulstr parses a NUL-delimited KEY=VALUE property buffer, the format
// carried by both kernel uevents and udev messages. A trailing empty
// string terminator is accepted.
func FromNulstr(b []byte) (*Device, error) {
	d := New()

	seen := false
	for len(b) > 0 {
		i := bytes.IndexByte(b, 0)
		var entry []byte
		if i < 0 {
			entry, b = b, nil
		} else {
			entry, b = b[:i], b[i+1:]
		}

		if len(entry) == 0 {
			continue
		}

		eq := bytes.IndexByte(entry, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProperty, entry)
		}

		d.SetProperty(string(entry[:eq]), string(entry[eq+1:]))
		seen = true
	}

	if !seen {
		return nil, ErrEmptyProperties
	}

	return d, nil
}

// Nulstr serializes the properties as KEY=VALUE runs, each terminated by a
// NUL, in insertion order.
func (d *Device) Nulstr() ([]byte, error) {
	if len(d.keys) == 0 {
		return nil, ErrEmptyProperties
	}

	var buf bytes.Buffer
	for _, k := range d.keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(d.properties[k])
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}
