// Package rtc drives the MC146818 real-time clock periodic interrupt.
package rtc

import (
	"context"
	"io"
	"math/bits"
	"time"

	"codeos/kernel"
	"codeos/kernel/kfmt"
	"codeos/kernel/sync"
)

const (
	// MinFrequency and MaxFrequency bound the periodic interrupt rate in Hz.
	MinFrequency = 2
	MaxFrequency = 1024

	// DefaultFrequency is the rate programmed when the clock is opened.
	DefaultFrequency = 2

	// rateBase is the divider exponent: the chip fires at 2^(rateBase-rate) Hz.
	rateBase = 16
)

var (
	errBadFrequency = &kernel.Error{Module: "rtc", Message: "frequency must be a power of two between 2 and 1024", Kind: kernel.InvalidArgument}
)

// RTC is the periodic interrupt source of the real-time clock. Frequency
// changes may race with the tick generator so the state is lock protected.
type RTC struct {
	lock sync.Spinlock

	hz   int32
	rate uint8

	// tick is closed and replaced on every periodic interrupt.
	tick chan struct{}
}

// New returns a clock that fires at MaxFrequency.
func New() *RTC {
	r := &RTC{tick: make(chan struct{})}
	r.hz, r.rate = MaxFrequency, rateFor(MaxFrequency)
	return r
}

// rateFor returns the rate select value for a power of two frequency.
func rateFor(hz int32) uint8 {
	return uint8(rateBase - bits.TrailingZeros32(uint32(hz)))
}

// SetFrequency reprograms the periodic interrupt rate.
func (r *RTC) SetFrequency(hz int32) *kernel.Error {
	if hz < MinFrequency || hz > MaxFrequency || hz&(hz-1) != 0 {
		return errBadFrequency
	}

	r.lock.Acquire()
	r.hz, r.rate = hz, rateFor(hz)
	r.lock.Release()
	return nil
}

// Frequency returns the current periodic interrupt rate in Hz.
func (r *RTC) Frequency() int32 {
	r.lock.Acquire()
	defer r.lock.Release()
	return r.hz
}

// Rate returns the value of the rate select bits in status register A.
func (r *RTC) Rate() uint8 {
	r.lock.Acquire()
	defer r.lock.Release()
	return r.rate
}

// NextTick returns a channel that is closed by the next periodic interrupt.
func (r *RTC) NextTick() <-chan struct{} {
	r.lock.Acquire()
	defer r.lock.Release()
	return r.tick
}

// HandleInterrupt acknowledges a periodic interrupt and wakes every waiter.
func (r *RTC) HandleInterrupt() {
	r.lock.Acquire()
	close(r.tick)
	r.tick = make(chan struct{})
	r.lock.Release()
}

// Run generates periodic interrupts by calling raise at the programmed
// frequency until ctx is cancelled or raise reports that the interrupt could
// not be delivered.
func (r *RTC) Run(ctx context.Context, raise func() bool) error {
	timer := time.NewTimer(r.period())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if !raise() {
				return nil
			}
			timer.Reset(r.period())
		}
	}
}

func (r *RTC) period() time.Duration {
	return time.Second / time.Duration(r.Frequency())
}

// DriverName returns the name of this driver.
func (r *RTC) DriverName() string {
	return "mc146818"
}

// DriverVersion returns the version of this driver.
func (r *RTC) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit programs the clock for MaxFrequency.
func (r *RTC) DriverInit(w io.Writer) *kernel.Error {
	if err := r.SetFrequency(MaxFrequency); err != nil {
		return err
	}

	kfmt.Fprintf(w, "rate %d (%d Hz)\n", r.Rate(), r.Frequency())
	return nil
}
