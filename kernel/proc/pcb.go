// Package proc implements the process control block store and the pid
// allocator.
package proc

import (
	"codeos/kernel"
	"codeos/kernel/gate"
	"codeos/kernel/mm"
)

const (
	// MaxProcesses is the number of pid slots.
	MaxProcesses = 8

	// MaxDescriptors is the number of descriptor slots per process.
	MaxDescriptors = 8

	// FirstUserDescriptor is the lowest descriptor a process can open or
	// close. Slots 0 and 1 are bound to the terminal.
	FirstUserDescriptor = 2

	// Stdin and Stdout are the terminal descriptor slots.
	Stdin  = 0
	Stdout = 1

	// ArgLen is the size of the argument buffer including the terminator.
	ArgLen = 32

	// NoParent is the parent pid of a terminal's root process.
	NoParent = -1
)

// FileOperations is the capability set bound to a descriptor when it is
// opened. Implementations are stateless singletons; all per-file state lives
// in the Descriptor. Read and Write operate on kernel buffers and return the
// number of bytes transferred.
type FileOperations interface {
	Open(p *PCB, fd int) *kernel.Error
	Close(p *PCB, fd int) *kernel.Error
	Read(p *PCB, fd int, buf []byte) (int, *kernel.Error)
	Write(p *PCB, fd int, buf []byte) (int, *kernel.Error)
}

// Descriptor is one slot of a process's descriptor table.
type Descriptor struct {
	Ops      FileOperations
	Inode    uint32
	Position int64
	Used     bool
}

// PCB is a process control block.
type PCB struct {
	PID       int
	ParentPID int

	// TerminalID is the terminal owning the process chain.
	TerminalID int

	// Resume is the continuation captured by the execute call that
	// created this process. Halting the process resumes it.
	Resume *gate.Continuation

	// UserEntry and UserStack are the initial user instruction and stack
	// pointers.
	UserEntry uint32
	UserStack uint32

	// KernelStackTop is the TSS.ESP0 value for this process.
	KernelStackTop uint32

	// Arg is the single argument token captured by execute.
	Arg string

	// Vidmapped is set once the process maps video memory.
	Vidmapped bool

	Files [MaxDescriptors]Descriptor
}

// IsRoot reports whether p is the root of its terminal's process chain.
func (p *PCB) IsRoot() bool {
	return p.ParentPID == NoParent
}

// Address returns the modelled location of the PCB at the base of the
// process's kernel stack region. The PCB itself lives in the Table.
func (p *PCB) Address() uint32 {
	return PCBAddress(p.PID)
}

// FreeDescriptor returns the lowest unused slot in the user range or -1 if
// every slot is taken.
func (p *PCB) FreeDescriptor() int {
	for fd := FirstUserDescriptor; fd < MaxDescriptors; fd++ {
		if !p.Files[fd].Used {
			return fd
		}
	}
	return -1
}

// PCBAddress returns the modelled address of the PCB for pid: the base of its
// 8 KiB kernel stack region below mm.KernelStackBase. No memory is stored
// there; the address bounds the region PIDFromKernelStack decodes.
func PCBAddress(pid int) uint32 {
	return mm.KernelStackBase - mm.KernelStackSize*uint32(pid+1)
}

// KernelStackTop returns the initial kernel stack pointer of pid.
func KernelStackTop(pid int) uint32 {
	return mm.KernelStackBase - mm.KernelStackSize*uint32(pid) - 4
}

// PIDFromKernelStack maps any address inside a process's kernel stack region
// back to its pid, or returns -1 if esp lies outside every region.
func PIDFromKernelStack(esp uint32) int {
	if esp >= mm.KernelStackBase || esp < PCBAddress(MaxProcesses-1) {
		return -1
	}
	return int((mm.KernelStackBase - 1 - esp) / mm.KernelStackSize)
}
