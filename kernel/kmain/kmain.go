// Package kmain wires the kernel subsystems together and implements process
// creation and teardown.
package kmain

import (
	"codeos/device"
	"codeos/device/keyboard"
	"codeos/device/rtc"
	"codeos/kernel"
	"codeos/kernel/fs"
	"codeos/kernel/gate"
	"codeos/kernel/hal"
	"codeos/kernel/irq"
	"codeos/kernel/kfmt"
	"codeos/kernel/proc"
	"codeos/kernel/syscall"
	"codeos/kernel/terminal"
	"codeos/multiboot"
)

var (
	errNotEnoughMemory  = &kernel.Error{Module: "kmain", Message: "not enough physical memory", Kind: kernel.Fatal}
	errMemoryOverstated = &kernel.Error{Module: "kmain", Message: "mem= exceeds installed physical memory", Kind: kernel.Fatal}
	errNoFileSystem     = &kernel.Error{Module: "kmain", Message: "no file system boot module", Kind: kernel.Fatal}
	errBadModule        = &kernel.Error{Module: "kmain", Message: "boot module lies outside physical memory", Kind: kernel.Fatal}
	errNoCurrentProcess = &kernel.Error{Module: "kmain", Message: "trap frame does not belong to a process", Kind: kernel.Fatal}
	errUnhandledTrap    = &kernel.Error{Module: "kmain", Message: "unhandled exception", Kind: kernel.Fatal}
)

// Kernel is the kernel context: every table the kernel owns hangs off it and
// it is built once by Boot.
type Kernel struct {
	machine *hal.Machine
	user    gate.UserMode
	cfg     Config

	pids  proc.Table
	terms *terminal.Manager
	files *fs.Image
	clock *rtc.RTC
	kbd   *keyboard.Decoder
	sys   *syscall.Dispatcher

	drivers []device.Driver
}

// New returns a kernel for machine that starts user programs through user.
func New(machine *hal.Machine, user gate.UserMode) *Kernel {
	return &Kernel{
		machine: machine,
		user:    user,
		clock:   rtc.New(),
		kbd:     keyboard.New(),
	}
}

// Boot initializes the kernel from the multiboot information block and
// starts a shell on terminal 0. It runs with the CPU held, so the first
// user stream starts once Boot returns.
func (k *Kernel) Boot() *kernel.Error {
	cpu := k.machine.CPU
	cpu.Acquire()
	defer cpu.Release()

	var err *kernel.Error
	if k.cfg, err = ParseConfig(multiboot.GetBootCmdLine()); err != nil {
		return err
	}

	usable := k.machine.Memory.Size()
	switch {
	case k.cfg.MemorySize > usable:
		return errMemoryOverstated
	case k.cfg.MemorySize != 0:
		usable = k.cfg.MemorySize
	}
	if usable < MinMemorySize {
		return errNotEnoughMemory
	}

	if err = k.machine.MMU.Init(); err != nil {
		return err
	}

	k.terms = terminal.NewManager(k.machine.MMU)
	k.terms.Spawn = k.spawnShell
	k.terms.Suspend = k.suspend
	if err = k.terms.Init(); err != nil {
		return err
	}

	k.probe()
	kfmt.SetOutputSink(k.terms.Writer())

	if k.cfg.RTCFrequency != 0 {
		if err = k.clock.SetFrequency(k.cfg.RTCFrequency); err != nil {
			return err
		}
	}

	if err = k.mountRoot(); err != nil {
		return err
	}

	k.sys = syscall.NewDispatcher(k.machine.MMU, k.files, k.terms, k.clock, k, k.suspend)
	k.installTraps()

	for _, line := range []irq.Line{irq.Timer, irq.Keyboard, irq.RTC} {
		k.machine.PIC.Enable(line)
	}

	if k.cfg.BootID != "" {
		kfmt.Printf("[kmain] boot %s by %s\n", k.cfg.BootID, multiboot.GetBootLoaderName())
	}
	lowerKb, upperKb := multiboot.GetMemoryInfo()
	kfmt.Printf("[kmain] %d KiB lower, %d KiB upper memory; %d files\n", lowerKb, upperKb, k.files.EntryCount())

	return k.spawnShell(0)
}

// probe initializes the device drivers.
func (k *Kernel) probe() {
	term0 := k.terms.Terminal(0)
	drivers := device.DriverInfoList{
		{Order: device.DetectOrderEarly, Probe: func() device.Driver { return k.machine.PIC }},
		{Order: device.DetectOrderNormal, Probe: func() device.Driver { return term0.Console() }},
		{Order: device.DetectOrderNormal, Probe: func() device.Driver { return term0.VT() }},
		{Order: device.DetectOrderNormal, Probe: func() device.Driver { return k.clock }},
		{Order: device.DetectOrderLast, Probe: func() device.Driver { return k.kbd }},
	}

	k.drivers = hal.Probe(drivers)
}

// mountRoot loads the file system image from the first boot module.
func (k *Kernel) mountRoot() *kernel.Error {
	var (
		mod *multiboot.Module
		err *kernel.Error
	)

	multiboot.VisitModules(func(m *multiboot.Module) bool {
		mod = m
		return false
	})

	if mod == nil {
		return errNoFileSystem
	}

	if mod.End < mod.Start {
		return errBadModule
	}

	data := make([]byte, mod.End-mod.Start)
	if err = k.machine.Memory.Read(mod.Start, data); err != nil {
		return errBadModule
	}

	k.files, err = fs.NewImage(data)
	return err
}

// installTraps populates the IDT.
func (k *Kernel) installTraps() {
	idt := k.machine.IDT
	for _, num := range gate.Exceptions() {
		num := num
		idt.HandleInterrupt(num, func(regs *gate.Registers) { k.exception(num, regs) })
	}

	idt.HandleInterrupt(gate.SyscallVector, k.syscall)
	idt.HandleInterrupt(irqVector(irq.Timer), k.timerInterrupt)
	idt.HandleInterrupt(irqVector(irq.Keyboard), k.keyboardInterrupt)
	idt.HandleInterrupt(irqVector(irq.RTC), k.rtcInterrupt)
}

func irqVector(line irq.Line) gate.InterruptNumber {
	return gate.IRQBase + gate.InterruptNumber(line)
}

// exception reports an unhandled exception and halts the machine.
func (k *Kernel) exception(num gate.InterruptNumber, regs *gate.Registers) {
	kfmt.Printf("\n%s (vector %d, info 0x%x)\n", num, uint8(num), regs.Info)
	regs.DumpTo(kfmt.Writer())
	kfmt.Panic(errUnhandledTrap)
}

func (k *Kernel) syscall(regs *gate.Registers) {
	k.sys.Dispatch(k.current(regs), regs)
}

func (k *Kernel) timerInterrupt(_ *gate.Registers) {
	defer k.machine.PIC.EndOfInterrupt(irq.Timer)
	k.schedule()
}

// schedule is the timer driven process switch hook. Scheduling is
// cooperative, so there is nothing to do.
func (k *Kernel) schedule() {}

func (k *Kernel) keyboardInterrupt(_ *gate.Registers) {
	defer k.machine.PIC.EndOfInterrupt(irq.Keyboard)
	k.kbd.Decode(k.machine.Inb(hal.KeyboardDataPort), k.terms)
}

func (k *Kernel) rtcInterrupt(_ *gate.Registers) {
	defer k.machine.PIC.EndOfInterrupt(irq.RTC)
	k.clock.HandleInterrupt()
}

// current returns the process that pushed regs.
func (k *Kernel) current(regs *gate.Registers) *proc.PCB {
	p, ok := k.pids.FromKernelStack(regs.KernelESP)
	if !ok {
		kfmt.Panic(errNoCurrentProcess)
	}
	return p
}

// Trap implements gate.TrapHandler.
func (k *Kernel) Trap(intNumber gate.InterruptNumber, regs *gate.Registers) {
	k.machine.IDT.Dispatch(intNumber, regs)
}

// Return implements gate.TrapHandler. It restores the address space of the
// process owning kernelStack before the process resumes user code.
func (k *Kernel) Return(kernelStack uint32) {
	if p, ok := k.pids.FromKernelStack(kernelStack); ok {
		k.switchTo(p)
	}
}

// suspend parks p until wake becomes ready and reinstalls its address space
// once it owns the CPU again.
func (k *Kernel) suspend(p *proc.PCB, wake <-chan struct{}) {
	k.machine.CPU.Suspend(wake)
	k.switchTo(p)
}

// Config returns the active configuration.
func (k *Kernel) Config() Config {
	return k.cfg
}

// Terminals returns the terminal manager.
func (k *Kernel) Terminals() *terminal.Manager {
	return k.terms
}

// RTC returns the real-time clock.
func (k *Kernel) RTC() *rtc.RTC {
	return k.clock
}

// Processes returns the pids that are currently in use.
func (k *Kernel) Processes() []int {
	return k.pids.Live()
}

// Process returns the PCB of pid.
func (k *Kernel) Process(pid int) (*proc.PCB, bool) {
	return k.pids.Lookup(pid)
}
