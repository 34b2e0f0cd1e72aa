// Package syscall implements the system call dispatcher reached through the
// 0x80 trap gate.
package syscall

import (
	"codeos/device/rtc"
	"codeos/kernel"
	"codeos/kernel/fs"
	"codeos/kernel/gate"
	"codeos/kernel/mm"
	"codeos/kernel/mm/vmm"
	"codeos/kernel/proc"
	"codeos/kernel/terminal"
)

// Number identifies a system call. It is passed in EAX.
type Number uint32

// The system call numbers.
const (
	Halt Number = iota + 1
	Execute
	Read
	Write
	Open
	Close
	GetArgs
	Vidmap
	SetHandler
	SigReturn
)

var numberNames = [...]string{
	Halt:       "halt",
	Execute:    "execute",
	Read:       "read",
	Write:      "write",
	Open:       "open",
	Close:      "close",
	GetArgs:    "getargs",
	Vidmap:     "vidmap",
	SetHandler: "set_handler",
	SigReturn:  "sigreturn",
}

// String implements fmt.Stringer for Number.
func (n Number) String() string {
	if n == 0 || int(n) >= len(numberNames) {
		return "unknown"
	}
	return numberNames[n]
}

// Failure is the value returned in EAX by a failed system call.
const Failure = ^uint32(0)

// MaxCommandLen is the longest command line accepted by execute.
const MaxCommandLen = terminal.LineBufferSize

var (
	errUnknownSyscall   = &kernel.Error{Module: "syscall", Message: "unknown system call", Kind: kernel.InvalidArgument}
	errNotImplemented   = &kernel.Error{Module: "syscall", Message: "signals are not implemented", Kind: kernel.NotSupported}
	errBadDescriptor    = &kernel.Error{Module: "syscall", Message: "bad file descriptor", Kind: kernel.InvalidArgument}
	errNullPointer      = &kernel.Error{Module: "syscall", Message: "null pointer", Kind: kernel.InvalidArgument}
	errNegativeLength   = &kernel.Error{Module: "syscall", Message: "negative length", Kind: kernel.InvalidArgument}
	errEmptyName        = &kernel.Error{Module: "syscall", Message: "empty file name", Kind: kernel.InvalidArgument}
	errNoFreeDescriptor = &kernel.Error{Module: "syscall", Message: "no free file descriptor", Kind: kernel.ResourceExhausted}
	errNoArgument       = &kernel.Error{Module: "syscall", Message: "process has no argument", Kind: kernel.InvalidArgument}
	errArgumentTooLong  = &kernel.Error{Module: "syscall", Message: "argument does not fit in buffer", Kind: kernel.InvalidArgument}
)

// Loader creates and destroys processes on behalf of the execute and halt
// calls.
type Loader interface {
	// Execute runs command as a child of p and returns the child's exit
	// status once it halts.
	Execute(p *proc.PCB, command string) (int32, *kernel.Error)

	// Halt terminates p. It never returns.
	Halt(p *proc.PCB, status int32)
}

// Dispatcher decodes trap frames and runs the corresponding system call for
// the calling process.
type Dispatcher struct {
	as     *vmm.AddressSpace
	files  *fs.Image
	terms  *terminal.Manager
	loader Loader

	rtc       *rtcOps
	directory *directoryOps
	regular   *regularFileOps
	stdin     *stdinOps
	stdout    *stdoutOps
}

// NewDispatcher creates a dispatcher. The suspend function parks a process
// until wake becomes ready; it backs blocking RTC reads.
func NewDispatcher(as *vmm.AddressSpace, files *fs.Image, terms *terminal.Manager, clock *rtc.RTC, loader Loader, suspend func(*proc.PCB, <-chan struct{})) *Dispatcher {
	return &Dispatcher{
		as:        as,
		files:     files,
		terms:     terms,
		loader:    loader,
		rtc:       &rtcOps{clock: clock, suspend: suspend},
		directory: &directoryOps{files: files},
		regular:   &regularFileOps{files: files},
		stdin:     &stdinOps{terms: terms},
		stdout:    &stdoutOps{terms: terms},
	}
}

// BindTerminal installs the terminal input and output tables in descriptors
// 0 and 1 of p and clears every other slot.
func (d *Dispatcher) BindTerminal(p *proc.PCB) {
	p.Files = [proc.MaxDescriptors]proc.Descriptor{}
	p.Files[proc.Stdin] = proc.Descriptor{Ops: d.stdin, Used: true}
	p.Files[proc.Stdout] = proc.Descriptor{Ops: d.stdout, Used: true}
}

// CloseAll closes every open descriptor in the user range of p through its
// table and then clears all descriptor slots.
func (d *Dispatcher) CloseAll(p *proc.PCB) {
	for fd := proc.FirstUserDescriptor; fd < proc.MaxDescriptors; fd++ {
		if p.Files[fd].Used {
			p.Files[fd].Ops.Close(p, fd)
		}
	}
	p.Files = [proc.MaxDescriptors]proc.Descriptor{}
}

// Dispatch runs the system call described by regs on behalf of p. The call
// number is taken from EAX and the arguments from EBX, ECX and EDX. The
// result is stored in EAX; every error collapses to Failure.
func (d *Dispatcher) Dispatch(p *proc.PCB, regs *gate.Registers) {
	res, err := d.call(p, Number(regs.EAX), regs.EBX, regs.ECX, regs.EDX)
	if err != nil {
		regs.EAX = Failure
		return
	}
	regs.EAX = uint32(res)
}

func (d *Dispatcher) call(p *proc.PCB, num Number, arg1, arg2, arg3 uint32) (int32, *kernel.Error) {
	switch num {
	case Halt:
		d.loader.Halt(p, int32(uint8(arg1)))
		return 0, nil
	case Execute:
		return d.execute(p, arg1)
	case Read:
		return d.read(p, int32(arg1), arg2, int32(arg3))
	case Write:
		return d.write(p, int32(arg1), arg2, int32(arg3))
	case Open:
		return d.open(p, arg1)
	case Close:
		return 0, d.close(p, int32(arg1))
	case GetArgs:
		return 0, d.getArgs(p, arg1, int32(arg2))
	case Vidmap:
		return 0, d.vidmap(p, arg1)
	case SetHandler, SigReturn:
		return 0, errNotImplemented
	default:
		return 0, errUnknownSyscall
	}
}

func (d *Dispatcher) execute(p *proc.PCB, cmdPtr uint32) (int32, *kernel.Error) {
	if cmdPtr == 0 {
		return 0, errNullPointer
	}

	command, err := d.as.ReadString(cmdPtr, MaxCommandLen, vmm.AccessUser)
	if err != nil {
		return 0, err
	}

	return d.loader.Execute(p, command)
}

// descriptor validates fd and returns its slot.
func descriptor(p *proc.PCB, fd int32) (*proc.Descriptor, *kernel.Error) {
	if fd < 0 || fd >= proc.MaxDescriptors || !p.Files[fd].Used {
		return nil, errBadDescriptor
	}
	return &p.Files[fd], nil
}

// userBuffer validates the fd/buf/n triple shared by read and write and
// checks that the buffer is accessible from user mode.
func (d *Dispatcher) userBuffer(p *proc.PCB, fd int32, buf uint32, n int32, access vmm.Access) (*proc.Descriptor, *kernel.Error) {
	desc, err := descriptor(p, fd)
	if err != nil {
		return nil, err
	}

	switch {
	case buf == 0:
		return nil, errNullPointer
	case n < 0:
		return nil, errNegativeLength
	}

	if err = d.as.CheckRange(buf, uint32(n), access|vmm.AccessUser); err != nil {
		return nil, err
	}
	return desc, nil
}

func (d *Dispatcher) read(p *proc.PCB, fd int32, buf uint32, n int32) (int32, *kernel.Error) {
	desc, err := d.userBuffer(p, fd, buf, n, vmm.AccessWrite)
	if err != nil {
		return 0, err
	}

	kbuf := make([]byte, n)
	count, err := desc.Ops.Read(p, int(fd), kbuf)
	if err != nil {
		return 0, err
	}

	if err = d.as.WriteVirtual(buf, kbuf[:count], vmm.AccessUser); err != nil {
		return 0, err
	}
	return int32(count), nil
}

func (d *Dispatcher) write(p *proc.PCB, fd int32, buf uint32, n int32) (int32, *kernel.Error) {
	desc, err := d.userBuffer(p, fd, buf, n, vmm.AccessRead)
	if err != nil {
		return 0, err
	}

	kbuf := make([]byte, n)
	if err = d.as.ReadVirtual(buf, kbuf, vmm.AccessUser); err != nil {
		return 0, err
	}

	count, err := desc.Ops.Write(p, int(fd), kbuf)
	if err != nil {
		return 0, err
	}
	return int32(count), nil
}

func (d *Dispatcher) open(p *proc.PCB, namePtr uint32) (int32, *kernel.Error) {
	if namePtr == 0 {
		return 0, errNullPointer
	}

	name, err := d.as.ReadString(namePtr, fs.NameLen, vmm.AccessUser)
	if err != nil {
		return 0, err
	} else if name == "" {
		return 0, errEmptyName
	}

	dentry, err := d.files.LookupByName(name)
	if err != nil {
		return 0, err
	}

	fd := p.FreeDescriptor()
	if fd < 0 {
		return 0, errNoFreeDescriptor
	}

	var ops proc.FileOperations
	switch dentry.Type {
	case fs.TypeRTC:
		ops = d.rtc
	case fs.TypeDirectory:
		ops = d.directory
	default:
		ops = d.regular
	}

	p.Files[fd] = proc.Descriptor{Ops: ops, Inode: dentry.Inode, Used: true}
	if err = ops.Open(p, fd); err != nil {
		p.Files[fd] = proc.Descriptor{}
		return 0, err
	}

	return int32(fd), nil
}

func (d *Dispatcher) close(p *proc.PCB, fd int32) *kernel.Error {
	if fd < proc.FirstUserDescriptor {
		return errBadDescriptor
	}

	desc, err := descriptor(p, fd)
	if err != nil {
		return err
	}

	err = desc.Ops.Close(p, int(fd))
	*desc = proc.Descriptor{}
	return err
}

func (d *Dispatcher) getArgs(p *proc.PCB, buf uint32, n int32) *kernel.Error {
	switch {
	case buf == 0:
		return errNullPointer
	case p.Arg == "":
		return errNoArgument
	case int64(len(p.Arg))+1 > int64(n):
		return errArgumentTooLong
	}

	return d.as.WriteVirtual(buf, append([]byte(p.Arg), 0), vmm.AccessUser)
}

func (d *Dispatcher) vidmap(p *proc.PCB, outPtr uint32) *kernel.Error {
	if outPtr == 0 {
		return errNullPointer
	}

	frame, err := VideoFrameFor(d.terms, p)
	if err != nil {
		return err
	}

	addr, err := d.as.MapUserVideoPage(outPtr, frame)
	if err != nil {
		return err
	}

	if err = d.as.WriteUint32(outPtr, addr, vmm.AccessUser); err != nil {
		return err
	}

	p.Vidmapped = true
	return nil
}

// VideoFrameFor returns the frame a vidmapped process of p's terminal must
// see: hardware video memory while the terminal is in the foreground and
// the terminal's shadow buffer otherwise.
func VideoFrameFor(terms *terminal.Manager, p *proc.PCB) (mm.Frame, *kernel.Error) {
	if terms.IsForeground(p.TerminalID) {
		return vmm.VideoFrame(), nil
	}
	return vmm.ShadowFrame(p.TerminalID)
}
