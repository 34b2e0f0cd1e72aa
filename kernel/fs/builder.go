package fs

import (
	"encoding/binary"

	"codeos/kernel"
)

var (
	errTooManyEntries = &kernel.Error{Module: "fs", Message: "too many directory entries", Kind: kernel.ResourceExhausted}
	errNameTooLong    = &kernel.Error{Module: "fs", Message: "file name too long", Kind: kernel.InvalidArgument}
	errFileTooLarge   = &kernel.Error{Module: "fs", Message: "file exceeds the maximum inode size", Kind: kernel.InvalidArgument}
	errDuplicateName  = &kernel.Error{Module: "fs", Message: "duplicate file name", Kind: kernel.InvalidArgument}
)

type builderEntry struct {
	name string
	typ  FileType
	data []byte
}

// Builder assembles file system images. Directory and RTC entries get inode
// 0 and no data; every regular file gets its own inode.
type Builder struct {
	entries []builderEntry
}

// NewBuilder returns a builder whose first entry is the "." directory.
func NewBuilder() *Builder {
	b := &Builder{}
	b.entries = append(b.entries, builderEntry{name: ".", typ: TypeDirectory})
	return b
}

// AddFile adds a regular file.
func (b *Builder) AddFile(name string, data []byte) *kernel.Error {
	if len(data) > maxBlocksPerInode*BlockSize {
		return errFileTooLarge
	}
	return b.add(builderEntry{name: name, typ: TypeRegular, data: data})
}

// AddDevice adds an entry of type t without data, such as the "rtc" entry.
func (b *Builder) AddDevice(name string, t FileType) *kernel.Error {
	return b.add(builderEntry{name: name, typ: t})
}

func (b *Builder) add(entry builderEntry) *kernel.Error {
	if len(entry.name) == 0 || len(entry.name) > NameLen {
		return errNameTooLong
	}

	if len(b.entries) >= MaxEntries {
		return errTooManyEntries
	}

	for _, existing := range b.entries {
		if existing.name == entry.name {
			return errDuplicateName
		}
	}

	b.entries = append(b.entries, entry)
	return nil
}

// Bytes serializes the image.
func (b *Builder) Bytes() []byte {
	var inodeCount, blockCount uint32
	for _, entry := range b.entries {
		if entry.typ == TypeRegular {
			inodeCount++
			blockCount += uint32((len(entry.data) + BlockSize - 1) / BlockSize)
		}
	}

	// Reserve inode 0 for non-regular entries.
	inodeCount++

	out := make([]byte, (1+inodeCount+blockCount)*BlockSize)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(b.entries)))
	binary.LittleEndian.PutUint32(out[4:], inodeCount)
	binary.LittleEndian.PutUint32(out[8:], blockCount)

	var (
		nextInode = uint32(1)
		nextBlock = uint32(0)
		dataStart = (1 + inodeCount) * BlockSize
	)

	for i, entry := range b.entries {
		off := bootHeaderSize + i*dentrySize
		copy(out[off:off+NameLen], entry.name)
		binary.LittleEndian.PutUint32(out[off+NameLen:], uint32(entry.typ))

		if entry.typ != TypeRegular {
			continue
		}

		inode := nextInode
		nextInode++
		binary.LittleEndian.PutUint32(out[off+NameLen+4:], inode)

		inodeOff := (1 + inode) * BlockSize
		binary.LittleEndian.PutUint32(out[inodeOff:], uint32(len(entry.data)))
		for blk, data := 0, entry.data; len(data) != 0; blk++ {
			binary.LittleEndian.PutUint32(out[inodeOff+4+uint32(blk)*4:], nextBlock)
			n := copy(out[dataStart+nextBlock*BlockSize:dataStart+(nextBlock+1)*BlockSize], data)
			data = data[n:]
			nextBlock++
		}
	}

	return out
}
