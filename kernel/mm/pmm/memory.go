// Package pmm emulates the machine's physical memory. Frames are backed
// lazily so that the sparse layout used by the kernel (kernel image, user
// windows at 8 MiB and up, video memory) does not require allocating the
// whole address space up front.
package pmm

import (
	"encoding/binary"

	"codeos/kernel"
	"codeos/kernel/mm"
)

var (
	errOutOfRange = &kernel.Error{Module: "pmm", Message: "physical address out of range", Kind: kernel.InvalidArgument}
)

// Memory is the emulated physical RAM.
type Memory struct {
	size   uint32
	frames map[mm.Frame]*[mm.PageSize]byte
}

// New returns a zero-filled physical memory of the requested size, rounded
// down to a whole number of frames.
func New(size uint32) *Memory {
	return &Memory{
		size:   size &^ (mm.PageSize - 1),
		frames: make(map[mm.Frame]*[mm.PageSize]byte),
	}
}

// Size returns the amount of installed memory in bytes.
func (m *Memory) Size() uint32 {
	return m.size
}

// Contains reports whether [addr, addr+n) is backed by installed memory.
func (m *Memory) Contains(addr, n uint32) bool {
	return mm.Range(addr, n, 0, m.size)
}

// Frame returns the backing storage for f. The returned slice aliases
// physical memory.
func (m *Memory) Frame(f mm.Frame) ([]byte, *kernel.Error) {
	if !m.Contains(f.Address(), mm.PageSize) {
		return nil, errOutOfRange
	}

	data, ok := m.frames[f]
	if !ok {
		data = new([mm.PageSize]byte)
		m.frames[f] = data
	}
	return data[:], nil
}

// Read copies len(buf) bytes starting at physical address addr into buf.
func (m *Memory) Read(addr uint32, buf []byte) *kernel.Error {
	if !m.Contains(addr, uint32(len(buf))) {
		return errOutOfRange
	}

	for len(buf) != 0 {
		offset := mm.PageOffset(addr)
		n := uint32(len(buf))
		if rem := mm.PageSize - offset; n > rem {
			n = rem
		}

		if data, ok := m.frames[mm.FrameFromAddress(addr)]; ok {
			copy(buf[:n], data[offset:])
		} else {
			for i := range buf[:n] {
				buf[i] = 0
			}
		}

		buf = buf[n:]
		addr += n
	}

	return nil
}

// Write copies buf to physical memory starting at addr.
func (m *Memory) Write(addr uint32, buf []byte) *kernel.Error {
	if !m.Contains(addr, uint32(len(buf))) {
		return errOutOfRange
	}

	for len(buf) != 0 {
		data, _ := m.Frame(mm.FrameFromAddress(addr))
		n := copy(data[mm.PageOffset(addr):], buf)
		buf = buf[n:]
		addr += uint32(n)
	}

	return nil
}

// Copy copies n bytes between two physical addresses.
func (m *Memory) Copy(dst, src, n uint32) *kernel.Error {
	buf := make([]byte, n)
	if err := m.Read(src, buf); err != nil {
		return err
	}
	return m.Write(dst, buf)
}

// ReadUint32 reads a little-endian 32-bit word.
func (m *Memory) ReadUint32(addr uint32) (uint32, *kernel.Error) {
	var buf [4]byte
	if err := m.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes a little-endian 32-bit word.
func (m *Memory) WriteUint32(addr, v uint32) *kernel.Error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return m.Write(addr, buf[:])
}

// Resident returns the number of frames that have been touched.
func (m *Memory) Resident() int {
	return len(m.frames)
}
