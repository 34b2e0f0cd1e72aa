package userland

import (
	"bytes"
	"fmt"

	"codeos/kernel/gate"
	"codeos/kernel/mm"
	"codeos/kernel/mm/vmm"
	"codeos/kernel/syscall"
)

// The descriptors every process starts with.
const (
	Stdin  = 0
	Stdout = 1
)

// stackLimit is the lowest address the user stack may grow to.
const stackLimit = mm.ProgramLoadAddr + mm.PageSize

// Proc is the view a running program has of itself: system call wrappers
// and access to its user memory. Buffers passed to system calls are placed
// on the user stack for the duration of the call.
type Proc struct {
	m   *Machine
	ctx gate.UserContext

	// sp is the user stack pointer.
	sp uint32
}

// Syscall traps into the kernel with the raw system call ABI and returns
// the value left in EAX.
func (p *Proc) Syscall(num syscall.Number, arg1, arg2, arg3 uint32) int32 {
	regs := p.frame()
	regs.EAX, regs.EBX, regs.ECX, regs.EDX = uint32(num), arg1, arg2, arg3

	p.m.handler.Trap(gate.SyscallVector, regs)
	p.m.yield(&p.ctx)
	return int32(regs.EAX)
}

// Alloc reserves n bytes on the user stack and returns their address.
func (p *Proc) Alloc(n int) uint32 {
	size := (uint32(n) + 3) &^ 3
	if n < 0 || size > p.sp-stackLimit {
		p.fault(gate.PageFaultException)
	}
	p.sp -= size
	return p.sp
}

// AllocString copies s, NUL-terminated, onto the user stack.
func (p *Proc) AllocString(s string) uint32 {
	addr := p.Alloc(len(s) + 1)
	p.Store(addr, append([]byte(s), 0))
	return addr
}

// Mark returns the current stack pointer for a later call to Reset.
func (p *Proc) Mark() uint32 {
	return p.sp
}

// Reset releases every allocation made since mark was taken.
func (p *Proc) Reset(mark uint32) {
	p.sp = mark
}

// Load copies user memory at addr into buf. An inaccessible address raises
// a page fault.
func (p *Proc) Load(addr uint32, buf []byte) {
	if err := p.m.mmu.ReadVirtual(addr, buf, vmm.AccessUser); err != nil {
		p.fault(gate.PageFaultException)
	}
}

// Store copies data into user memory at addr. An inaccessible address
// raises a page fault.
func (p *Proc) Store(addr uint32, data []byte) {
	if err := p.m.mmu.WriteVirtual(addr, data, vmm.AccessUser); err != nil {
		p.fault(gate.PageFaultException)
	}
}

// Halt terminates the program with status.
func (p *Proc) Halt(status uint8) {
	p.Syscall(syscall.Halt, uint32(status), 0, 0)

	// halt only returns if the kernel failed to tear the process down
	gate.Abandon()
}

// Execute runs command and returns its exit status or -1.
func (p *Proc) Execute(command string) int32 {
	defer p.Reset(p.Mark())
	return p.Syscall(syscall.Execute, p.AllocString(command), 0, 0)
}

// Read reads up to len(buf) bytes from fd into buf.
func (p *Proc) Read(fd int32, buf []byte) int32 {
	defer p.Reset(p.Mark())

	addr := p.Alloc(len(buf))
	n := p.Syscall(syscall.Read, uint32(fd), addr, uint32(len(buf)))
	if n > 0 {
		p.Load(addr, buf[:n])
	}
	return n
}

// Write writes data to fd.
func (p *Proc) Write(fd int32, data []byte) int32 {
	defer p.Reset(p.Mark())

	addr := p.Alloc(len(data))
	p.Store(addr, data)
	return p.Syscall(syscall.Write, uint32(fd), addr, uint32(len(data)))
}

// Open opens the file called name.
func (p *Proc) Open(name string) int32 {
	defer p.Reset(p.Mark())
	return p.Syscall(syscall.Open, p.AllocString(name), 0, 0)
}

// Close closes fd.
func (p *Proc) Close(fd int32) int32 {
	return p.Syscall(syscall.Close, uint32(fd), 0, 0)
}

// GetArgs returns the argument of the program using a buffer of n bytes.
func (p *Proc) GetArgs(n int) (string, int32) {
	defer p.Reset(p.Mark())

	addr := p.Alloc(n)
	if res := p.Syscall(syscall.GetArgs, addr, uint32(n), 0); res != 0 {
		return "", res
	}

	buf := make([]byte, n)
	p.Load(addr, buf)
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), 0
}

// Vidmap maps video memory into the user address space and returns its
// address.
func (p *Proc) Vidmap() (uint32, int32) {
	defer p.Reset(p.Mark())

	addr := p.Alloc(4)
	if res := p.Syscall(syscall.Vidmap, addr, 0, 0); res != 0 {
		return 0, res
	}

	var b [4]byte
	p.Load(addr, b[:])
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, 0
}

// SetHandler installs a signal handler.
func (p *Proc) SetHandler(signum int32, handler uint32) int32 {
	return p.Syscall(syscall.SetHandler, uint32(signum), handler, 0)
}

// SigReturn returns from a signal handler.
func (p *Proc) SigReturn() int32 {
	return p.Syscall(syscall.SigReturn, 0, 0, 0)
}

// Print writes s to the terminal.
func (p *Proc) Print(s string) {
	p.Write(Stdout, []byte(s))
}

// Printf formats according to a format specifier and writes the result to
// the terminal.
func (p *Proc) Printf(format string, args ...interface{}) {
	p.Print(fmt.Sprintf(format, args...))
}
