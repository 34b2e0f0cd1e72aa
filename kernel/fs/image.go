// Package fs implements the read-only file system image loaded as a boot
// module.
//
// The image is a sequence of 4 KiB blocks. Block 0 is the boot block: three
// little-endian u32 counters (directory entries, inodes, data blocks), 52
// reserved bytes and up to 63 directory entries of 64 bytes each (a 32 byte
// name, a u32 file type, a u32 inode number and 24 reserved bytes). It is
// followed by one block per inode (a u32 length and up to 1023 u32 data
// block indices) and finally by the data blocks.
package fs

import (
	"encoding/binary"

	"codeos/kernel"
)

const (
	// BlockSize is the size of every block in the image.
	BlockSize = 4096

	// NameLen is the maximum length of a file name. Names of exactly
	// NameLen bytes are not NUL-terminated.
	NameLen = 32

	// MaxEntries is the number of directory entries in the boot block.
	MaxEntries = 63

	dentrySize        = 64
	bootHeaderSize    = 64
	maxBlocksPerInode = BlockSize/4 - 1
)

// FileType is the type tag stored in a directory entry.
type FileType uint32

// Supported file types.
const (
	TypeRTC       FileType = 0
	TypeDirectory FileType = 1
	TypeRegular   FileType = 2
)

// String returns the file type name.
func (t FileType) String() string {
	switch t {
	case TypeRTC:
		return "rtc"
	case TypeDirectory:
		return "dir"
	case TypeRegular:
		return "file"
	default:
		return "unknown"
	}
}

var (
	errImageTooSmall = &kernel.Error{Module: "fs", Message: "image is smaller than its header describes", Kind: kernel.InvalidArgument}
	errBadEntryCount = &kernel.Error{Module: "fs", Message: "directory entry count exceeds boot block capacity", Kind: kernel.InvalidArgument}
	errNoSuchEntry   = &kernel.Error{Module: "fs", Message: "no such directory entry", Kind: kernel.NotFound}
	errBadInode      = &kernel.Error{Module: "fs", Message: "inode number out of range", Kind: kernel.InvalidArgument}
	errBadDataBlock  = &kernel.Error{Module: "fs", Message: "inode references a data block out of range", Kind: kernel.InvalidArgument}
	errBadOffset     = &kernel.Error{Module: "fs", Message: "negative offset", Kind: kernel.InvalidArgument}
)

// Dentry is a directory entry.
type Dentry struct {
	Name  string
	Type  FileType
	Inode uint32
}

// Image is a parsed read-only file system image.
type Image struct {
	data       []byte
	entryCount uint32
	inodeCount uint32
	blockCount uint32
}

// NewImage validates data and returns an image backed by it. The image does
// not copy data.
func NewImage(data []byte) (*Image, *kernel.Error) {
	if len(data) < BlockSize {
		return nil, errImageTooSmall
	}

	img := &Image{
		data:       data,
		entryCount: binary.LittleEndian.Uint32(data[0:]),
		inodeCount: binary.LittleEndian.Uint32(data[4:]),
		blockCount: binary.LittleEndian.Uint32(data[8:]),
	}

	if img.entryCount > MaxEntries {
		return nil, errBadEntryCount
	}

	if need := (1 + uint64(img.inodeCount) + uint64(img.blockCount)) * BlockSize; uint64(len(data)) < need {
		return nil, errImageTooSmall
	}

	return img, nil
}

// EntryCount returns the number of directory entries.
func (img *Image) EntryCount() int {
	return int(img.entryCount)
}

// LookupByName returns the entry called name. Names longer than NameLen never
// match.
func (img *Image) LookupByName(name string) (Dentry, *kernel.Error) {
	if len(name) == 0 || len(name) > NameLen {
		return Dentry{}, errNoSuchEntry
	}

	for i := 0; i < int(img.entryCount); i++ {
		if img.entryName(i) == name {
			return img.dentry(i), nil
		}
	}

	return Dentry{}, errNoSuchEntry
}

// LookupByIndex returns the entry at index.
func (img *Image) LookupByIndex(index int) (Dentry, *kernel.Error) {
	if index < 0 || index >= int(img.entryCount) {
		return Dentry{}, errNoSuchEntry
	}
	return img.dentry(index), nil
}

// FileLength returns the length in bytes of the file stored at inode.
func (img *Image) FileLength(inode uint32) (uint32, *kernel.Error) {
	if inode >= img.inodeCount {
		return 0, errBadInode
	}
	return binary.LittleEndian.Uint32(img.data[img.inodeOffset(inode):]), nil
}

// ReadData copies up to len(buf) bytes of the file stored at inode, starting
// at offset, into buf. It returns 0 when offset is at or past the end of the
// file.
func (img *Image) ReadData(inode uint32, offset int64, buf []byte) (int, *kernel.Error) {
	length, err := img.FileLength(inode)
	if err != nil {
		return 0, err
	}

	if offset < 0 {
		return 0, errBadOffset
	}

	if offset >= int64(length) {
		return 0, nil
	}

	if remaining := int64(length) - offset; int64(len(buf)) > remaining {
		buf = buf[:remaining]
	}

	var (
		inodeOffset = img.inodeOffset(inode)
		dataStart   = (1 + uint64(img.inodeCount)) * BlockSize
		read        int
	)

	for read < len(buf) {
		blockIndex := offset / BlockSize
		if blockIndex >= maxBlocksPerInode {
			return read, errBadDataBlock
		}

		block := binary.LittleEndian.Uint32(img.data[inodeOffset+4+uint64(blockIndex)*4:])
		if block >= img.blockCount {
			return read, errBadDataBlock
		}

		start := dataStart + uint64(block)*BlockSize + uint64(offset%BlockSize)
		end := dataStart + uint64(block+1)*BlockSize
		n := copy(buf[read:], img.data[start:end])

		read += n
		offset += int64(n)
	}

	return read, nil
}

func (img *Image) inodeOffset(inode uint32) uint64 {
	return (1 + uint64(inode)) * BlockSize
}

func (img *Image) entryName(index int) string {
	off := bootHeaderSize + index*dentrySize
	raw := img.data[off : off+NameLen]
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i])
		}
	}
	return string(raw)
}

func (img *Image) dentry(index int) Dentry {
	off := bootHeaderSize + index*dentrySize
	return Dentry{
		Name:  img.entryName(index),
		Type:  FileType(binary.LittleEndian.Uint32(img.data[off+NameLen:])),
		Inode: binary.LittleEndian.Uint32(img.data[off+NameLen+4:]),
	}
}
