// Package gate implements the interrupt descriptor table, the task state
// segment and the privilege transition primitives used to enter and leave
// user mode.
package gate

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug is raised by the debug facilities of the CPU.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = InterruptNumber(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// Overflow occurs when the INTO instruction is executed with the
	// overflow flag set.
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an FPU
	// instruction while no FPU is available.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// CoprocessorSegmentOverrun is reserved on modern CPUs.
	CoprocessorSegmentOverrun = InterruptNumber(9)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when the CPU attempts to invoke a present
	// gate with an invalid stack segment selector.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when the stack base/limit checks fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory or page table entry
	// is not present or when a privilege and/or RW protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs on unmasked x87 errors.
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs on unmasked SSE exceptions.
	SIMDFloatingPointException = InterruptNumber(19)

	// IRQBase is the vector of IRQ line 0; line n uses IRQBase+n.
	IRQBase = InterruptNumber(0x20)

	// SyscallVector is the trap gate used for system calls.
	SyscallVector = InterruptNumber(0x80)
)

var exceptionNames = map[InterruptNumber]string{
	DivideByZero:               "divide error",
	Debug:                      "debug",
	NMI:                        "non-maskable interrupt",
	Breakpoint:                 "breakpoint",
	Overflow:                   "overflow",
	BoundRangeExceeded:         "bound range exceeded",
	InvalidOpcode:              "invalid opcode",
	DeviceNotAvailable:         "device not available",
	DoubleFault:                "double fault",
	CoprocessorSegmentOverrun:  "coprocessor segment overrun",
	InvalidTSS:                 "invalid TSS",
	SegmentNotPresent:          "segment not present",
	StackSegmentFault:          "stack-segment fault",
	GPFException:               "general protection fault",
	PageFaultException:         "page fault",
	FloatingPointException:     "x87 floating-point exception",
	AlignmentCheck:             "alignment check",
	MachineCheck:               "machine check",
	SIMDFloatingPointException: "SIMD floating-point exception",
}

// Exceptions returns the CPU exception vectors in ascending order.
func Exceptions() []InterruptNumber {
	list := make([]InterruptNumber, 0, len(exceptionNames))
	for num := InterruptNumber(0); num < 32; num++ {
		if _, ok := exceptionNames[num]; ok {
			list = append(list, num)
		}
	}
	return list
}

// String returns the name of the exception, or a generic name for other
// vectors.
func (n InterruptNumber) String() string {
	if name, ok := exceptionNames[n]; ok {
		return name
	}

	switch {
	case n == SyscallVector:
		return "syscall"
	case n >= IRQBase && n < IRQBase+16:
		return "irq"
	default:
		return "interrupt"
	}
}

// IDT routes interrupt vectors to handlers.
type IDT struct {
	handlers [256]func(*Registers)
}

// HandleInterrupt ensures that handler will be invoked when intNumber
// occurs. A nil handler marks the gate as not present.
func (idt *IDT) HandleInterrupt(intNumber InterruptNumber, handler func(*Registers)) {
	idt.handlers[intNumber] = handler
}

// Present reports whether a handler is installed for intNumber.
func (idt *IDT) Present(intNumber InterruptNumber) bool {
	return idt.handlers[intNumber] != nil
}

// Dispatch routes an incoming interrupt to its handler. Vectors without a
// handler raise a general protection fault, like a not-present gate. It
// returns false if neither handler exists.
func (idt *IDT) Dispatch(intNumber InterruptNumber, regs *Registers) bool {
	regs.Info = uint32(intNumber)

	if handler := idt.handlers[intNumber]; handler != nil {
		handler(regs)
		return true
	}

	if handler := idt.handlers[GPFException]; handler != nil && intNumber != GPFException {
		regs.Info = uint32(intNumber)<<3 | 2
		handler(regs)
		return true
	}

	return false
}
