// Package multiboot parses the multiboot2 information block that the boot
// loader hands to the kernel.
package multiboot

import (
	"encoding/binary"
	"strings"
)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
)

const (
	// infoHeaderSize is the size of the total_size/reserved header.
	infoHeaderSize = 8

	// tagHeaderSize is the size of the type/size header of each tag.
	tagHeaderSize = 8

	// tagAlign is the alignment of every tag start.
	tagAlign = 8
)

var (
	infoData  []byte
	cmdLineKV map[string]string
)

// Module describes a boot module that the loader placed in physical memory.
type Module struct {
	// Start and End delimit the module contents; End is exclusive.
	Start, End uint32

	// Name is the module command line, typically its file name.
	Name string
}

// ModuleVisitor is invoked for each boot module. Returning false stops the
// visit.
type ModuleVisitor func(*Module) bool

// SetInfo updates the information block used by the other functions of this
// package.
func SetInfo(data []byte) {
	infoData = data
	cmdLineKV = nil
}

// GetBootCmdLine returns the command line key-value pairs passed to the
// kernel. Flags without a value map to themselves.
func GetBootCmdLine() map[string]string {
	if cmdLineKV != nil {
		return cmdLineKV
	}

	cmdLineKV = make(map[string]string)

	if payload := findTagByType(tagBootCmdLine); len(payload) != 0 {
		for _, pair := range strings.Fields(cString(payload)) {
			kv := strings.Split(pair, "=")
			switch len(kv) {
			case 2: // foo=bar
				cmdLineKV[kv[0]] = kv[1]
			case 1: // nofoo
				cmdLineKV[kv[0]] = kv[0]
			}
		}
	}

	return cmdLineKV
}

// GetBootLoaderName returns the name of the loader that booted the kernel.
func GetBootLoaderName() string {
	return cString(findTagByType(tagBootLoaderName))
}

// GetMemoryInfo returns the amount of lower and upper memory in KiB. Upper
// memory starts at 1 MiB.
func GetMemoryInfo() (lowerKb, upperKb uint32) {
	payload := findTagByType(tagBasicMemoryInfo)
	if len(payload) < 8 {
		return 0, 0
	}

	return binary.LittleEndian.Uint32(payload), binary.LittleEndian.Uint32(payload[4:])
}

// VisitModules invokes visitor for each boot module in load order.
func VisitModules(visitor ModuleVisitor) {
	visitTags(func(tag tagType, payload []byte) bool {
		if tag != tagModules || len(payload) < 8 {
			return true
		}

		return visitor(&Module{
			Start: binary.LittleEndian.Uint32(payload),
			End:   binary.LittleEndian.Uint32(payload[4:]),
			Name:  cString(payload[8:]),
		})
	})
}

// findTagByType returns the payload of the first tag of the specified type
// or nil if the tag is not present.
func findTagByType(want tagType) []byte {
	var found []byte
	visitTags(func(tag tagType, payload []byte) bool {
		if tag == want {
			found = payload
			return false
		}
		return true
	})

	return found
}

// visitTags walks the tag list until the end tag, a malformed tag or until
// visitor returns false.
func visitTags(visitor func(tagType, []byte) bool) {
	if len(infoData) < infoHeaderSize {
		return
	}

	end := len(infoData)
	if total := int(binary.LittleEndian.Uint32(infoData)); total < end {
		end = total
	}

	for offset := infoHeaderSize; offset+tagHeaderSize <= end; {
		tag := tagType(binary.LittleEndian.Uint32(infoData[offset:]))
		size := int(binary.LittleEndian.Uint32(infoData[offset+4:]))
		if tag == tagMbSectionEnd || size < tagHeaderSize || offset+size > end {
			return
		}

		if !visitor(tag, infoData[offset+tagHeaderSize:offset+size]) {
			return
		}

		// Tags are aligned at 8-byte aligned offsets
		offset += (size + tagAlign - 1) &^ (tagAlign - 1)
	}
}

// cString returns the contents of a NUL-terminated string.
func cString(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
