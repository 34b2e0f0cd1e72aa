// Package irq emulates the two cascaded 8259 programmable interrupt
// controllers. Lines 0-7 belong to the primary controller and lines 8-15 to
// the secondary one, which is relayed through primary line 2.
package irq

import (
	"io"

	"codeos/kernel"
	"codeos/kernel/kfmt"
)

// Line is an interrupt request line.
type Line uint8

// Well known IRQ lines.
const (
	Timer    Line = 0
	Keyboard Line = 1
	Cascade  Line = 2
	RTC      Line = 8

	// NumLines is the number of lines served by the controller pair.
	NumLines = 16
)

// Controller is the interface the kernel uses to program the interrupt
// controller.
type Controller interface {
	// Enable unmasks line.
	Enable(Line)

	// Disable masks line.
	Disable(Line)

	// EndOfInterrupt acknowledges that the handler for line completed.
	EndOfInterrupt(Line)
}

// PIC is the cascaded 8259 pair. It must only be accessed by the stream
// that owns the CPU.
type PIC struct {
	primaryMask, secondaryMask uint8
	primaryISR, secondaryISR   uint8
}

// NewPIC returns a controller pair with every line masked.
func NewPIC() *PIC {
	return &PIC{primaryMask: 0xFF, secondaryMask: 0xFF}
}

// Enable unmasks line. Lines above 15 are ignored.
func (p *PIC) Enable(line Line) {
	switch {
	case line < 8:
		p.primaryMask &^= 1 << line
	case line < NumLines:
		p.secondaryMask &^= 1 << (line - 8)
	}
}

// Disable masks line. Lines above 15 are ignored.
func (p *PIC) Disable(line Line) {
	switch {
	case line < 8:
		p.primaryMask |= 1 << line
	case line < NumLines:
		p.secondaryMask |= 1 << (line - 8)
	}
}

// EndOfInterrupt acknowledges line. An EOI for a secondary line is also sent
// to the primary controller for the cascade line.
func (p *PIC) EndOfInterrupt(line Line) {
	switch {
	case line < 8:
		p.primaryISR &^= 1 << line
	case line < NumLines:
		p.secondaryISR &^= 1 << (line - 8)
		p.primaryISR &^= 1 << Cascade
	}
}

// Masks returns the primary and secondary mask registers.
func (p *PIC) Masks() (primary, secondary uint8) {
	return p.primaryMask, p.secondaryMask
}

// Masked reports whether a request on line would be blocked by the mask
// registers.
func (p *PIC) Masked(line Line) bool {
	switch {
	case line < 8:
		return p.primaryMask&(1<<line) != 0
	case line < NumLines:
		return p.secondaryMask&(1<<(line-8)) != 0 || p.primaryMask&(1<<Cascade) != 0
	default:
		return true
	}
}

// Raise signals a request on line. It reports whether the request is
// delivered to the CPU, in which case the line is marked in service until
// EndOfInterrupt is called.
func (p *PIC) Raise(line Line) bool {
	if p.Masked(line) {
		return false
	}

	if line < 8 {
		if p.primaryISR&(1<<line) != 0 {
			return false
		}
		p.primaryISR |= 1 << line
		return true
	}

	if p.secondaryISR&(1<<(line-8)) != 0 {
		return false
	}
	p.secondaryISR |= 1 << (line - 8)
	p.primaryISR |= 1 << Cascade
	return true
}

// DriverName returns the name of this driver.
func (p *PIC) DriverName() string {
	return "i8259"
}

// DriverVersion returns the version of this driver.
func (p *PIC) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit masks every line except the cascade line.
func (p *PIC) DriverInit(w io.Writer) *kernel.Error {
	p.primaryMask, p.secondaryMask = 0xFF, 0xFF
	p.primaryISR, p.secondaryISR = 0, 0
	p.Enable(Cascade)

	kfmt.Fprintf(w, "masks %02x/%02x\n", p.primaryMask, p.secondaryMask)
	return nil
}
