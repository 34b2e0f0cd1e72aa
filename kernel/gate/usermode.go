package gate

// UserContext describes the initial register state of a user program.
type UserContext struct {
	// Entry is the first user instruction.
	Entry uint32

	// Stack is the initial user stack pointer.
	Stack uint32

	// CodeSegment and DataSegment are the ring 3 selectors loaded by the
	// transition.
	CodeSegment uint16
	DataSegment uint16

	// KernelStack is the TSS.ESP0 value in effect for this program. Every
	// trap raised by the program lands on this stack.
	KernelStack uint32
}

// UserMode is the one-way privilege transition primitive. EnterUserMode
// starts executing a user program at ctx.Entry. The program runs as a new
// instruction stream that contends for the CPU; the call itself returns to
// the kernel as soon as the stream has been created, and the kernel caller
// must give up the CPU (by parking on a continuation or by returning to an
// abandoned stream) for the program to run.
type UserMode interface {
	EnterUserMode(ctx UserContext)
}

// TrapHandler is implemented by the kernel. User streams call Trap for every
// software interrupt or exception they raise while owning the CPU, and
// Return right before resuming user code after a trap or after reacquiring
// the CPU.
type TrapHandler interface {
	Trap(intNumber InterruptNumber, regs *Registers)
	Return(kernelStack uint32)
}
