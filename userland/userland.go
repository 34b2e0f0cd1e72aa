// Package userland runs user programs on the emulated machine. A program is
// a Go function registered under a name; its executable image carries the
// name as a tag at the entry point, so entering user mode at an entry point
// resolves the program through the MMU, exactly where a CPU would fetch its
// first instruction.
package userland

import (
	"encoding/binary"
	"sort"
	"sync"

	"codeos/kernel/cpu"
	"codeos/kernel/fs"
	"codeos/kernel/gate"
	"codeos/kernel/mm"
	"codeos/kernel/mm/vmm"
)

const (
	// HeaderSize is the size of the executable header. The program tag
	// follows it.
	HeaderSize = 64

	// EntryPoint is the entry point of every image.
	EntryPoint = mm.ProgramLoadAddr + HeaderSize

	// eflagsIF is the interrupt enable flag of EFLAGS.
	eflagsIF = 1 << 9
)

// ELF identification and header values.
const (
	elfClass32    = 1
	elfDataLSB    = 1
	elfVersion    = 1
	elfTypeExec   = 2
	elfMachine386 = 3
)

// Main is the entry point of a user program. Returning from it halts the
// process with the returned status.
type Main func(p *Proc) uint8

var (
	registryLock sync.Mutex
	programs     = map[string]Main{}
)

// Register makes main available under name. Registering a name twice
// replaces the previous program.
func Register(name string, main Main) {
	registryLock.Lock()
	defer registryLock.Unlock()

	programs[name] = main
}

// Lookup returns the program registered under name.
func Lookup(name string) (Main, bool) {
	registryLock.Lock()
	defer registryLock.Unlock()

	main, ok := programs[name]
	return main, ok
}

// Programs returns the names of the registered programs in sorted order.
func Programs() []string {
	registryLock.Lock()
	defer registryLock.Unlock()

	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Image returns the executable image of the program called name: a 32-bit
// ELF header whose entry point addresses the NUL-terminated program tag.
func Image(name string) []byte {
	img := make([]byte, HeaderSize, HeaderSize+len(name)+1)
	copy(img, []byte{0x7F, 'E', 'L', 'F', elfClass32, elfDataLSB, elfVersion})
	binary.LittleEndian.PutUint16(img[16:], elfTypeExec)
	binary.LittleEndian.PutUint16(img[18:], elfMachine386)
	binary.LittleEndian.PutUint32(img[20:], elfVersion)
	binary.LittleEndian.PutUint32(img[24:], EntryPoint)

	img = append(img, name...)
	return append(img, 0)
}

// Machine implements gate.UserMode: every program runs as its own
// instruction stream that contends for the CPU.
type Machine struct {
	cpu     *cpu.CPU
	mmu     *vmm.AddressSpace
	handler gate.TrapHandler

	streams sync.WaitGroup
}

// NewMachine returns a user mode emulator for the given CPU and MMU. Attach
// must be called before the first program is started.
func NewMachine(c *cpu.CPU, mmu *vmm.AddressSpace) *Machine {
	return &Machine{cpu: c, mmu: mmu}
}

// Attach sets the kernel that receives the traps raised by user programs.
func (m *Machine) Attach(handler gate.TrapHandler) {
	m.handler = handler
}

// EnterUserMode implements gate.UserMode.
func (m *Machine) EnterUserMode(ctx gate.UserContext) {
	m.streams.Add(1)
	go m.run(ctx)
}

// Wait blocks until every stream started by the machine has terminated.
func (m *Machine) Wait() {
	m.streams.Wait()
}

func (m *Machine) run(ctx gate.UserContext) {
	defer m.streams.Done()

	m.cpu.Acquire()
	defer m.cpu.Release()

	m.handler.Return(ctx.KernelStack)

	p := &Proc{m: m, ctx: ctx, sp: ctx.Stack}
	name, err := m.mmu.ReadString(ctx.Entry, fs.NameLen, vmm.AccessUser)
	if err != nil {
		p.fault(gate.PageFaultException)
	}

	main, ok := Lookup(name)
	if !ok {
		p.fault(gate.InvalidOpcode)
	}

	p.Halt(main(p))
}

// yield opens the interrupt window after a trap and reinstalls the
// process's context once the stream owns the CPU again.
func (m *Machine) yield(ctx *gate.UserContext) {
	m.cpu.Release()
	m.cpu.Acquire()
	m.handler.Return(ctx.KernelStack)
}

// frame returns a trap frame for the current state of p.
func (p *Proc) frame() *gate.Registers {
	return &gate.Registers{
		EIP:       p.ctx.Entry,
		CS:        uint32(p.ctx.CodeSegment),
		SS:        uint32(p.ctx.DataSegment),
		ESP:       p.sp,
		EFlags:    eflagsIF,
		KernelESP: p.ctx.KernelStack,
	}
}

// fault raises exception num. Faults are not restartable, so the stream is
// abandoned if the kernel returns from the handler.
func (p *Proc) fault(num gate.InterruptNumber) {
	p.m.handler.Trap(num, p.frame())
	gate.Abandon()
}
