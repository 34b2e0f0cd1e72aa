// Package bin contains the programs bundled with the system image. Each
// program registers itself with userland when the package is imported.
package bin

import (
	"embed"
	"encoding/binary"
	"io/fs"
	"path"
	"sort"
	"strconv"

	"codeos/kernel"
	kfs "codeos/kernel/fs"
	"codeos/userland"
)

//go:embed files
var files embed.FS

// Files returns the text files bundled with the system image keyed by name.
func Files() map[string][]byte {
	out := make(map[string][]byte)
	entries, _ := fs.ReadDir(files, "files")
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if data, err := fs.ReadFile(files, path.Join("files", entry.Name())); err == nil {
			out[entry.Name()] = data
		}
	}
	return out
}

// setRate programs the clock behind fd to hz interrupts per second.
func setRate(p *userland.Proc, fd int32, hz uint32) int32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], hz)
	return p.Write(fd, b[:])
}

// intArg returns the numeric argument of p or def if there is none.
func intArg(p *userland.Proc, def int) int {
	arg, res := p.GetArgs(32)
	if res != 0 {
		return def
	}

	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Populate adds the rtc device, every registered program and the bundled
// text files to b.
func Populate(b *kfs.Builder) *kernel.Error {
	if err := b.AddDevice("rtc", kfs.TypeRTC); err != nil {
		return err
	}

	for _, name := range userland.Programs() {
		if err := b.AddFile(name, userland.Image(name)); err != nil {
			return err
		}
	}

	bundled := Files()
	names := make([]string, 0, len(bundled))
	for name := range bundled {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := b.AddFile(name, bundled[name]); err != nil {
			return err
		}
	}
	return nil
}
