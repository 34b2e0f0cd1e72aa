// Package cpu models the single processor core that every kernel and user
// instruction stream runs on.
package cpu

import (
	"runtime"
	"sync"
)

var (
	activeMu sync.Mutex
	active   *CPU
)

// CPU is a single core. Exactly one instruction stream owns it at any time.
// Owning the CPU is equivalent to running with interrupts masked: interrupt
// delivery (see Interrupt) must wait until the owner releases it, either on
// its way back to user mode or at a suspend point.
type CPU struct {
	baton  chan struct{}
	halted chan struct{}
	once   sync.Once
}

// New returns a CPU that is not owned by any stream and makes it the target
// of the package-level Halt function.
func New() *CPU {
	c := &CPU{
		baton:  make(chan struct{}, 1),
		halted: make(chan struct{}),
	}

	activeMu.Lock()
	active = c
	activeMu.Unlock()

	return c
}

// Acquire blocks until the calling stream owns the CPU. If the CPU has been
// halted the calling stream is terminated instead.
func (c *CPU) Acquire() {
	select {
	case c.baton <- struct{}{}:
		if c.Halted() {
			<-c.baton
			runtime.Goexit()
		}
	case <-c.halted:
		runtime.Goexit()
	}
}

// Release gives up ownership of the CPU. Releasing a CPU that is not owned
// has no effect.
func (c *CPU) Release() {
	select {
	case <-c.baton:
	default:
	}
}

// Suspend releases the CPU until wake becomes ready and then reacquires it.
// This is the only point where a stream blocked on I/O gives up the
// processor.
func (c *CPU) Suspend(wake <-chan struct{}) {
	c.Release()
	select {
	case <-wake:
	case <-c.halted:
		runtime.Goexit()
	}
	c.Acquire()
}

// Interrupt runs fn as an interrupt handler: it waits until no stream owns
// the CPU, runs fn and releases the CPU. It returns false without running fn
// if the CPU is halted.
func (c *CPU) Interrupt(fn func()) bool {
	select {
	case c.baton <- struct{}{}:
	case <-c.halted:
		return false
	}
	defer c.Release()

	if c.Halted() {
		return false
	}

	fn()
	return true
}

// Halt stops the CPU. Streams blocked on the CPU are terminated and no
// further interrupts are delivered.
func (c *CPU) Halt() {
	c.once.Do(func() { close(c.halted) })
}

// Halted reports whether the CPU has been halted.
func (c *CPU) Halted() bool {
	select {
	case <-c.halted:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the CPU halts.
func (c *CPU) Done() <-chan struct{} {
	return c.halted
}

// Halt stops the most recently created CPU and terminates the calling
// stream. It never returns.
func Halt() {
	activeMu.Lock()
	c := active
	activeMu.Unlock()

	if c != nil {
		c.Halt()
	}
	runtime.Goexit()
}
