package multiboot

import "encoding/binary"

// Builder assembles an information block the way a boot loader does.
type Builder struct {
	tags []byte
}

// SetCmdLine appends a command line tag.
func (b *Builder) SetCmdLine(cmdLine string) *Builder {
	return b.addTag(tagBootCmdLine, append([]byte(cmdLine), 0))
}

// SetBootLoaderName appends a boot loader name tag.
func (b *Builder) SetBootLoaderName(name string) *Builder {
	return b.addTag(tagBootLoaderName, append([]byte(name), 0))
}

// SetMemoryInfo appends a basic memory information tag.
func (b *Builder) SetMemoryInfo(lowerKb, upperKb uint32) *Builder {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload, lowerKb)
	binary.LittleEndian.PutUint32(payload[4:], upperKb)
	return b.addTag(tagBasicMemoryInfo, payload)
}

// AddModule appends a module tag.
func (b *Builder) AddModule(mod Module) *Builder {
	payload := make([]byte, 8, 8+len(mod.Name)+1)
	binary.LittleEndian.PutUint32(payload, mod.Start)
	binary.LittleEndian.PutUint32(payload[4:], mod.End)
	payload = append(append(payload, mod.Name...), 0)
	return b.addTag(tagModules, payload)
}

// Bytes returns the information block terminated by an end tag.
func (b *Builder) Bytes() []byte {
	out := make([]byte, infoHeaderSize, infoHeaderSize+len(b.tags)+tagHeaderSize)
	out = append(out, b.tags...)
	out = append(out, make([]byte, tagHeaderSize)...)
	binary.LittleEndian.PutUint32(out[infoHeaderSize+len(b.tags)+4:], tagHeaderSize)
	binary.LittleEndian.PutUint32(out, uint32(len(out)))
	return out
}

func (b *Builder) addTag(tag tagType, payload []byte) *Builder {
	var hdr [tagHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(tag))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(tagHeaderSize+len(payload)))

	b.tags = append(b.tags, hdr[:]...)
	b.tags = append(b.tags, payload...)
	for len(b.tags)%tagAlign != 0 {
		b.tags = append(b.tags, 0)
	}
	return b
}
