// Package device defines the contract between the hardware abstraction
// layer and the device drivers it manages.
package device

import (
	"io"

	"codeos/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it or nil if the hardware is
// absent.
type ProbeFn func() Driver

// DetectOrder specifies when a driver is probed relative to the others.
type DetectOrder int8

const (
	// DetectOrderEarly is used by drivers that other drivers depend on,
	// such as the interrupt controller.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is the default detection order.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast is used by drivers that depend on everything else.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo pairs a probe function with its detection order.
type DriverInfo struct {
	// Order specifies at which stage the driver is probed.
	Order DetectOrder

	// Probe detects the hardware and returns its driver.
	Probe ProbeFn
}

// DriverInfoList is a list of driver info entries sortable by detection
// order.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
