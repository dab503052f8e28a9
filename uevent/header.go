package uevent

import (
	"bytes"
	"encoding/binary"
)

// Magic identifies udev-format messages. It is stored big-endian on the wire
// so the kernel socket filter can compare it with a single word load.
const Magic = 0xfeedcafe

// udevPrefix distinguishes udev messages from kernel uevents, which start
// with an ASCII "action@devpath" line instead.
var udevPrefix = [8]byte{'l', 'i', 'b', 'u', 'd', 'e', 'v', 0}

const headerSize = 40

// Byte offsets of the header fields the socket filter program reads. The
// filter compiler uses these literally, so they must match the layout
// written by encode.
const (
	hdrOffMagic         = 8
	hdrOffSubsystemHash = 24
	hdrOffDevtypeHash   = 28
	hdrOffTagBloomHi    = 32
	hdrOffTagBloomLo    = 36
)

// wireHeader is the fixed-size header preceding the property buffer in
// udev-format messages. Fields marked big-endian are stored in network order
// on the wire; the remaining fields are native, as both ends live on the
// same host.
type wireHeader struct {
	Prefix        [8]byte
	Magic         uint32 // big-endian
	HeaderSize    uint32
	PropertiesOff uint32
	PropertiesLen uint32
	SubsystemHash uint32 // big-endian
	DevtypeHash   uint32 // big-endian
	TagBloomHi    uint32 // big-endian
	TagBloomLo    uint32 // big-endian
}

func (h *wireHeader) encode() []byte {
	buf := make([]byte, headerSize)

	copy(buf[0:8], h.Prefix[:])
	binary.BigEndian.PutUint32(buf[hdrOffMagic:], h.Magic)
	binary.NativeEndian.PutUint32(buf[12:], h.HeaderSize)
	binary.NativeEndian.PutUint32(buf[16:], h.PropertiesOff)
	binary.NativeEndian.PutUint32(buf[20:], h.PropertiesLen)
	binary.BigEndian.PutUint32(buf[hdrOffSubsystemHash:], h.SubsystemHash)
	binary.BigEndian.PutUint32(buf[hdrOffDevtypeHash:], h.DevtypeHash)
	binary.BigEndian.PutUint32(buf[hdrOffTagBloomHi:], h.TagBloomHi)
	binary.BigEndian.PutUint32(buf[hdrOffTagBloomLo:], h.TagBloomLo)

	return buf
}

// decodeHeader reads a wire header from the start of a datagram. It reports
// false when the buffer is too short to hold one.
func decodeHeader(b []byte) (wireHeader, bool) {
	if len(b) < headerSize {
		return wireHeader{}, false
	}

	var h wireHeader
	copy(h.Prefix[:], b[0:8])
	h.Magic = binary.BigEndian.Uint32(b[hdrOffMagic:])
	h.HeaderSize = binary.NativeEndian.Uint32(b[12:])
	h.PropertiesOff = binary.NativeEndian.Uint32(b[16:])
	h.PropertiesLen = binary.NativeEndian.Uint32(b[20:])
	h.SubsystemHash = binary.BigEndian.Uint32(b[hdrOffSubsystemHash:])
	h.DevtypeHash = binary.BigEndian.Uint32(b[hdrOffDevtypeHash:])
	h.TagBloomHi = binary.BigEndian.Uint32(b[hdrOffTagBloomHi:])
	h.TagBloomLo = binary.BigEndian.Uint32(b[hdrOffTagBloomLo:])

	return h, true
}

// isUdevMessage reports whether the datagram carries the udev prefix rather
// than a kernel "action@devpath" line.
func isUdevMessage(b []byte) bool {
	return len(b) >= len(udevPrefix) && bytes.Equal(b[:len(udevPrefix)], udevPrefix[:])
}
