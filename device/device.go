// Package device holds the property-set device record exchanged over the
// uevent transport: an ordered set of KEY=VALUE properties, the tag list
// encoded in the TAGS property, and the initialized flag udev sets once a
// device has been through rule processing.
package device

import (
	"strings"
)

// Well-known property keys.
const (
	keyAction    = "ACTION"
	keyDevpath   = "DEVPATH"
	keySubsystem = "SUBSYSTEM"
	keyDevtype   = "DEVTYPE"
	keySeqnum    = "SEQNUM"
	keyTags      = "TAGS"
)

// Device is a mutable device record. Property insertion order is preserved
// so a record serializes back to the byte buffer it was parsed from.
type Device struct {
	keys        []string
	properties  map[string]string
	tags        []string
	initialized bool
}

// New returns an empty device record.
func New() *Device {
	return &Device{properties: make(map[string]string)}
}

// SetProperty adds or replaces a property. Setting TAGS rewrites the tag
// list as a side effect.
func (d *Device) SetProperty(key, value string) {
	if _, ok := d.properties[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.properties[key] = value

	if key == keyTags {
		d.tags = parseTags(value)
	}
}

// Property returns a property value, or "" when absent.
func (d *Device) Property(key string) string {
	return d.properties[key]
}

// Properties returns the property keys in insertion order.
func (d *Device) Properties() []string {
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

func (d *Device) Action() string  { return d.properties[keyAction] }
func (d *Device) Devpath() string { return d.properties[keyDevpath] }
func (d *Device) Seqnum() string  { return d.properties[keySeqnum] }

// Subsystem returns the device's subsystem, e.g. "block" or "net".
func (d *Device) Subsystem() string {
	return d.properties[keySubsystem]
}

// Devtype returns the device type within the subsystem, or "" when the
// device has none.
func (d *Device) Devtype() string {
	return d.properties[keyDevtype]
}

// Tags returns the device's tags in the order they were added.
func (d *Device) Tags() []string {
	tags := make([]string, len(d.tags))
	copy(tags, d.tags)
	return tags
}

// HasTag reports whether the device carries the tag.
func (d *Device) HasTag(tag string) bool {
	for _, t := range d.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag and rewrites the TAGS property. Adding a tag twice
// is a no-op.
func (d *Device) AddTag(tag string) {
	if tag == "" || d.HasTag(tag) {
		return
	}

	d.tags = append(d.tags, tag)

	var sb strings.Builder
	sb.WriteByte(':')
	for _, t := range d.tags {
		sb.WriteString(t)
		sb.WriteByte(':')
	}

	// bypass SetProperty's reparse; the list is already current
	if _, ok := d.properties[keyTags]; !ok {
		d.keys = append(d.keys, keyTags)
	}
	d.properties[keyTags] = sb.String()
}

// SetInitialized marks the device as processed by udev. Devices built from
// raw kernel uevents stay uninitialized.
func (d *Device) SetInitialized() {
	d.initialized = true
}

// IsInitialized reports whether the device came out of udev rule
// processing rather than straight from the kernel.
func (d *Device) IsInitialized() bool {
	return d.initialized
}

// parseTags splits the udev ":a:b:c:" tag list encoding.
func parseTags(v string) []string {
	var tags []string
	for _, t := range strings.Split(v, ":") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
