// Package kfmt implements the kernel's formatted output. Output is sent to a
// configurable sink; until one is attached it is kept in a ring buffer so
// that nothing logged during early boot is lost.
package kfmt

import (
	"fmt"
	"io"

	"codeos/kernel/sync"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before an
	// output sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// sinkLock serializes writes; device goroutines log while the kernel
	// may be logging too.
	sinkLock sync.Spinlock
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	outputSink = w
	if w != nil {
		io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	sinkLock.Acquire()
	defer sinkLock.Release()

	return outputSink
}

// Printf formats according to a format specifier and writes to the active
// output sink. The verbs are the ones supported by the fmt package.
func Printf(format string, args ...interface{}) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	if outputSink == nil {
		fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}
	fmt.Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer is replaced by the active output
// sink.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		Printf(format, args...)
		return
	}
	fmt.Fprintf(w, format, args...)
}

// sinkWriter forwards writes to whatever output sink is active at the time of
// the write.
type sinkWriter struct{}

func (sinkWriter) Write(p []byte) (int, error) {
	Printf("%s", p)
	return len(p), nil
}

// Writer returns an io.Writer that follows the active output sink, including
// the early ring buffer.
func Writer() io.Writer {
	return sinkWriter{}
}
