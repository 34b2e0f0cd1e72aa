package vmm

import (
	"codeos/kernel"
	"codeos/kernel/mm"
)

var (
	errStringTooLong = &kernel.Error{Module: "vmm", Message: "string is not terminated", Kind: kernel.InvalidArgument}
)

// CheckRange verifies that every page in [virtAddr, virtAddr+n) can be
// accessed with the requested access without touching memory contents.
func (as *AddressSpace) CheckRange(virtAddr, n uint32, access Access) *kernel.Error {
	if uint64(virtAddr)+uint64(n) > 1<<32 {
		return ErrInvalidMapping
	}

	for n != 0 {
		if _, err := as.Translate(virtAddr, access); err != nil {
			return err
		}

		step := mm.PageSize - mm.PageOffset(virtAddr)
		if step > n {
			step = n
		}
		virtAddr += step
		n -= step
	}

	return nil
}

// ReadVirtual copies len(buf) bytes from virtual memory into buf.
func (as *AddressSpace) ReadVirtual(virtAddr uint32, buf []byte, access Access) *kernel.Error {
	return as.copyVirtual(virtAddr, buf, access&^AccessWrite, false)
}

// WriteVirtual copies buf into virtual memory.
func (as *AddressSpace) WriteVirtual(virtAddr uint32, buf []byte, access Access) *kernel.Error {
	return as.copyVirtual(virtAddr, buf, access|AccessWrite, true)
}

// copyVirtual validates the whole range first so that a failed copy never
// leaves a partial write behind.
func (as *AddressSpace) copyVirtual(virtAddr uint32, buf []byte, access Access, write bool) *kernel.Error {
	if err := as.CheckRange(virtAddr, uint32(len(buf)), access); err != nil {
		return err
	}

	for len(buf) != 0 {
		physAddr, err := as.Translate(virtAddr, access)
		if err != nil {
			return err
		}

		n := mm.PageSize - mm.PageOffset(virtAddr)
		if n > uint32(len(buf)) {
			n = uint32(len(buf))
		}

		if write {
			err = as.mem.Write(physAddr, buf[:n])
		} else {
			err = as.mem.Read(physAddr, buf[:n])
		}
		if err != nil {
			return err
		}

		buf = buf[n:]
		virtAddr += n
	}

	return nil
}

// ReadString reads a NUL-terminated string of at most maxLen bytes
// (excluding the terminator) from virtual memory.
func (as *AddressSpace) ReadString(virtAddr uint32, maxLen int, access Access) (string, *kernel.Error) {
	var (
		out []byte
		b   [1]byte
	)

	for len(out) <= maxLen {
		if err := as.ReadVirtual(virtAddr, b[:], access); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
		virtAddr++
	}

	return "", errStringTooLong
}

// ReadUint32 reads a little-endian word from virtual memory.
func (as *AddressSpace) ReadUint32(virtAddr uint32, access Access) (uint32, *kernel.Error) {
	var b [4]byte
	if err := as.ReadVirtual(virtAddr, b[:], access); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// WriteUint32 writes a little-endian word to virtual memory.
func (as *AddressSpace) WriteUint32(virtAddr, v uint32, access Access) *kernel.Error {
	b := [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return as.WriteVirtual(virtAddr, b[:], access)
}
