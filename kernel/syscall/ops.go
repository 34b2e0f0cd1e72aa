package syscall

import (
	"encoding/binary"

	"codeos/device/rtc"
	"codeos/kernel"
	"codeos/kernel/fs"
	"codeos/kernel/proc"
	"codeos/kernel/terminal"
)

var (
	errReadOnly     = &kernel.Error{Module: "syscall", Message: "file system is read-only", Kind: kernel.NotSupported}
	errWriteOnly    = &kernel.Error{Module: "syscall", Message: "descriptor is output only", Kind: kernel.NotSupported}
	errInputOnly    = &kernel.Error{Module: "syscall", Message: "descriptor is input only", Kind: kernel.NotSupported}
	errNotClosable  = &kernel.Error{Module: "syscall", Message: "terminal descriptors cannot be closed", Kind: kernel.InvalidArgument}
	errBadFreqWrite = &kernel.Error{Module: "syscall", Message: "rtc frequency must be a 4 byte integer", Kind: kernel.InvalidArgument}
)

// rtcOps binds a descriptor to the real-time clock.
type rtcOps struct {
	clock   *rtc.RTC
	suspend func(*proc.PCB, <-chan struct{})
}

// Open resets the clock to its default rate.
func (o *rtcOps) Open(_ *proc.PCB, _ int) *kernel.Error {
	return o.clock.SetFrequency(rtc.DefaultFrequency)
}

func (o *rtcOps) Close(_ *proc.PCB, _ int) *kernel.Error { return nil }

// Read blocks until the next periodic interrupt.
func (o *rtcOps) Read(p *proc.PCB, _ int, _ []byte) (int, *kernel.Error) {
	o.suspend(p, o.clock.NextTick())
	return 0, nil
}

// Write sets the interrupt rate from a little-endian 32-bit frequency.
func (o *rtcOps) Write(_ *proc.PCB, _ int, buf []byte) (int, *kernel.Error) {
	if len(buf) != 4 {
		return 0, errBadFreqWrite
	}

	if err := o.clock.SetFrequency(int32(binary.LittleEndian.Uint32(buf))); err != nil {
		return 0, err
	}
	return 0, nil
}

// directoryOps binds a descriptor to the file system directory. Each read
// returns the name of the next directory entry.
type directoryOps struct {
	files *fs.Image
}

func (o *directoryOps) Open(_ *proc.PCB, _ int) *kernel.Error  { return nil }
func (o *directoryOps) Close(_ *proc.PCB, _ int) *kernel.Error { return nil }

func (o *directoryOps) Read(p *proc.PCB, fd int, buf []byte) (int, *kernel.Error) {
	desc := &p.Files[fd]
	if desc.Position >= int64(o.files.EntryCount()) {
		return 0, nil
	}

	dentry, err := o.files.LookupByIndex(int(desc.Position))
	if err != nil {
		return 0, err
	}

	desc.Position++
	return copy(buf, dentry.Name), nil
}

func (o *directoryOps) Write(_ *proc.PCB, _ int, _ []byte) (int, *kernel.Error) {
	return 0, errReadOnly
}

// regularFileOps binds a descriptor to a regular file.
type regularFileOps struct {
	files *fs.Image
}

func (o *regularFileOps) Open(_ *proc.PCB, _ int) *kernel.Error  { return nil }
func (o *regularFileOps) Close(_ *proc.PCB, _ int) *kernel.Error { return nil }

func (o *regularFileOps) Read(p *proc.PCB, fd int, buf []byte) (int, *kernel.Error) {
	desc := &p.Files[fd]
	n, err := o.files.ReadData(desc.Inode, desc.Position, buf)
	if err != nil {
		return 0, err
	}

	desc.Position += int64(n)
	return n, nil
}

func (o *regularFileOps) Write(_ *proc.PCB, _ int, _ []byte) (int, *kernel.Error) {
	return 0, errReadOnly
}

// stdinOps binds descriptor 0 to the input line of the process's terminal.
type stdinOps struct {
	terms *terminal.Manager
}

func (o *stdinOps) Open(_ *proc.PCB, _ int) *kernel.Error  { return nil }
func (o *stdinOps) Close(_ *proc.PCB, _ int) *kernel.Error { return errNotClosable }

func (o *stdinOps) Read(p *proc.PCB, _ int, buf []byte) (int, *kernel.Error) {
	return o.terms.Read(p, buf)
}

func (o *stdinOps) Write(_ *proc.PCB, _ int, _ []byte) (int, *kernel.Error) {
	return 0, errInputOnly
}

// stdoutOps binds descriptor 1 to the display of the process's terminal.
type stdoutOps struct {
	terms *terminal.Manager
}

func (o *stdoutOps) Open(_ *proc.PCB, _ int) *kernel.Error  { return nil }
func (o *stdoutOps) Close(_ *proc.PCB, _ int) *kernel.Error { return errNotClosable }

func (o *stdoutOps) Read(_ *proc.PCB, _ int, _ []byte) (int, *kernel.Error) {
	return 0, errWriteOnly
}

func (o *stdoutOps) Write(p *proc.PCB, _ int, buf []byte) (int, *kernel.Error) {
	return o.terms.Write(p, buf)
}
