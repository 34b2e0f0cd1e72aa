// Package hal models the PC the kernel runs on and probes the device drivers
// that manage it.
package hal

import (
	"bytes"
	"sort"

	"codeos/device"
	"codeos/kernel/cpu"
	"codeos/kernel/gate"
	"codeos/kernel/irq"
	"codeos/kernel/kfmt"
	"codeos/kernel/mm/pmm"
	"codeos/kernel/mm/vmm"
)

// KeyboardDataPort is the 8042 data port.
const KeyboardDataPort = 0x60

// eflagsIF is the interrupt enable flag of EFLAGS.
const eflagsIF = 1 << 9

// Machine is a single-core PC: a CPU, physical memory behind an MMU, the
// interrupt controller pair with its descriptor table and the TSS.
type Machine struct {
	CPU    *cpu.CPU
	Memory *pmm.Memory
	MMU    *vmm.AddressSpace
	PIC    *irq.PIC
	IDT    *gate.IDT
	TSS    *gate.TSS

	// kbdData is the last scancode latched by the keyboard controller.
	kbdData uint8
}

// NewMachine returns a machine with memSize bytes of physical memory and
// every interrupt line masked.
func NewMachine(memSize uint32) *Machine {
	mem := pmm.New(memSize)
	return &Machine{
		CPU:    cpu.New(),
		Memory: mem,
		MMU:    vmm.New(mem),
		PIC:    irq.NewPIC(),
		IDT:    &gate.IDT{},
		TSS:    &gate.TSS{},
	}
}

// RaiseIRQ asserts line. The interrupt is delivered once no stream owns the
// CPU; it is dropped if the line is masked or already in service. Handlers
// are responsible for acknowledging the interrupt. RaiseIRQ returns false
// if the CPU has halted.
func (m *Machine) RaiseIRQ(line irq.Line) bool {
	return m.CPU.Interrupt(func() { m.deliver(line) })
}

// KeyPress latches code in the keyboard controller and raises the keyboard
// interrupt.
func (m *Machine) KeyPress(code uint8) bool {
	return m.CPU.Interrupt(func() {
		m.kbdData = code
		m.deliver(irq.Keyboard)
	})
}

func (m *Machine) deliver(line irq.Line) {
	if !m.PIC.Raise(line) {
		return
	}

	regs := gate.Registers{
		CS:        uint32(gate.KernelCS),
		SS:        uint32(gate.KernelDS),
		EFlags:    eflagsIF,
		ESP:       m.TSS.ESP0,
		KernelESP: m.TSS.ESP0,
	}
	m.IDT.Dispatch(gate.IRQBase+gate.InterruptNumber(line), &regs)
}

// Inb reads a byte from an I/O port. Unknown ports float high.
func (m *Machine) Inb(port uint16) uint8 {
	switch port {
	case KeyboardDataPort:
		return m.kbdData
	default:
		return 0xFF
	}
}

// Inspect runs fn while no stream owns the CPU, giving it a consistent view
// of memory. It returns false if the CPU has halted.
func (m *Machine) Inspect(fn func()) bool {
	return m.CPU.Interrupt(fn)
}

// Probe executes the probe function for each driver in detection order and
// initializes the detected ones, logging through a "[hal] name(version): "
// prefixed writer. It returns the successfully initialized drivers.
func Probe(driverInfoList device.DriverInfoList) []device.Driver {
	sort.Stable(driverInfoList)

	var (
		strBuf bytes.Buffer
		w      = kfmt.PrefixWriter{Sink: kfmt.Writer()}
		active []device.Driver
	)

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = append([]byte(nil), strBuf.Bytes()...)

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		active = append(active, drv)
	}

	return active
}
