package uevent

import (
	"fmt"
	"sort"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// The kernel rejects socket filter programs longer than this.
const maxFilterInstructions = 512

// Classic BPF opcodes used by the filter program.
const (
	opLdAbsW = unix.BPF_LD | unix.BPF_W | unix.BPF_ABS
	opJeqK   = unix.BPF_JMP | unix.BPF_JEQ | unix.BPF_K
	opAndK   = unix.BPF_ALU | unix.BPF_AND | unix.BPF_K
	opRetK   = unix.BPF_RET | unix.BPF_K
)

const (
	retPass = 0xffffffff
	retDrop = 0
)

// progBuilder assembles a classic BPF program in two passes: jumps may name
// a label that is resolved to a relative offset once all instructions have
// been emitted. Offsets inside a fixed-size match block are written as
// literals; only jumps across blocks use labels.
type progBuilder struct {
	ins     []bpf.RawInstruction
	labels  map[string]int
	patches []patch
	err     error
}

type patch struct {
	idx   int
	label string
}

func newProgBuilder() *progBuilder {
	return &progBuilder{labels: make(map[string]int)}
}

func (b *progBuilder) emit(in bpf.RawInstruction) {
	if b.err != nil {
		return
	}
	if len(b.ins) >= maxFilterInstructions {
		b.err = ErrFilterTooLarge
		return
	}
	b.ins = append(b.ins, in)
}

func (b *progBuilder) stmt(code uint16, k uint32) {
	b.emit(bpf.RawInstruction{Op: code, K: k})
}

func (b *progBuilder) jump(code uint16, k uint32, jt, jf uint8) {
	b.emit(bpf.RawInstruction{Op: code, Jt: jt, Jf: jf, K: k})
}

// jumpTo emits a jump whose true branch targets the named label; the false
// branch falls through.
func (b *progBuilder) jumpTo(code uint16, k uint32, label string) {
	b.emit(bpf.RawInstruction{Op: code, K: k})
	if b.err == nil {
		b.patches = append(b.patches, patch{idx: len(b.ins) - 1, label: label})
	}
}

func (b *progBuilder) label(name string) {
	if b.err != nil {
		return
	}
	b.labels[name] = len(b.ins)
}

func (b *progBuilder) program() ([]bpf.RawInstruction, error) {
	if b.err != nil {
		return nil, b.err
	}

	for _, p := range b.patches {
		target, ok := b.labels[p.label]
		if !ok {
			return nil, fmt.Errorf("unresolved filter label %q", p.label)
		}
		off := target - p.idx - 1
		if off < 0 || off > 255 {
			return nil, ErrFilterTooLarge
		}
		b.ins[p.idx].Jt = uint8(off)
	}

	return b.ins, nil
}

// compileFilter translates the monitor's subsystem and tag matches into a
// socket filter program over the wire header hashes. It returns a nil
// program when both collections are empty, leaving any installed filter in
// place.
//
// Kernel uevents do not carry the header magic and must always reach user
// space, where the receive path dispatches them separately; the program
// therefore starts by passing every datagram whose magic does not match.
func compileFilter(subsystems map[string]string, tags map[string]struct{}) ([]bpf.RawInstruction, error) {
	if len(subsystems) == 0 && len(tags) == 0 {
		return nil, nil
	}

	b := newProgBuilder()

	// load magic in A, pass the whole packet unless it matches
	b.stmt(opLdAbsW, hdrOffMagic)
	b.jump(opJeqK, Magic, 1, 0)
	b.stmt(opRetK, retPass)

	if len(tags) > 0 {
		// Iteration order determines the program bytes; keep it stable so
		// recompiling an unchanged filter installs an identical program.
		names := make([]string, 0, len(tags))
		for tag := range tags {
			names = append(names, tag)
		}
		sort.Strings(names)

		for _, tag := range names {
			bits := Bloom64(tag)
			hi := uint32(bits >> 32)
			lo := uint32(bits)

			// mask the device's bloom word against the tag's bits; both
			// halves must survive the mask intact for a match
			b.stmt(opLdAbsW, hdrOffTagBloomHi)
			b.stmt(opAndK, hi)
			b.jump(opJeqK, hi, 0, 3)
			b.stmt(opLdAbsW, hdrOffTagBloomLo)
			b.stmt(opAndK, lo)
			b.jumpTo(opJeqK, lo, "tag-matched")
		}

		// no tag matched
		b.stmt(opRetK, retDrop)
		b.label("tag-matched")
	}

	if len(subsystems) > 0 {
		names := make([]string, 0, len(subsystems))
		for subsystem := range subsystems {
			names = append(names, subsystem)
		}
		sort.Strings(names)

		for _, subsystem := range names {
			devtype := subsystems[subsystem]

			b.stmt(opLdAbsW, hdrOffSubsystemHash)
			if devtype == "" {
				b.jump(opJeqK, Hash32(subsystem), 0, 1)
			} else {
				b.jump(opJeqK, Hash32(subsystem), 0, 3)
				b.stmt(opLdAbsW, hdrOffDevtypeHash)
				b.jump(opJeqK, Hash32(devtype), 0, 1)
			}
			b.stmt(opRetK, retPass)
		}

		// no subsystem matched
		b.stmt(opRetK, retDrop)
	}

	b.stmt(opRetK, retPass)

	return b.program()
}

// attachFilter installs a program with a single setsockopt call, atomically
// replacing any previous filter.
func attachFilter(fd int, ins []bpf.RawInstruction) error {
	raw := make([]unix.SockFilter, len(ins))
	for i, in := range ins {
		raw[i] = unix.SockFilter{Code: in.Op, Jt: in.Jt, Jf: in.Jf, K: in.K}
	}

	fprog := unix.SockFprog{Len: uint16(len(raw)), Filter: &raw[0]}

	if err := unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &fprog); err != nil {
		return fmt.Errorf("failed to install socket filter: %w", err)
	}

	return nil
}

// detachFilter removes any installed program, so everything the group
// delivers reaches the socket again. A socket with no filter installed is
// already in the desired state.
func detachFilter(fd int) error {
	err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DETACH_FILTER, 0)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("failed to remove socket filter: %w", err)
	}

	return nil
}
