package gate

import "runtime"

// Continuation is the resume point captured by execute just before it hands
// the CPU to a new user program. The only way to consume it is Resume, which
// does not return.
type Continuation struct {
	status chan int32
}

// NewContinuation returns a resume point that has not been resumed yet.
func NewContinuation() *Continuation {
	return &Continuation{status: make(chan int32, 1)}
}

// Wait blocks until the continuation is resumed and returns the status that
// was passed to Resume. If halted is closed first the calling stream is
// terminated instead. The caller must not own the CPU.
func (c *Continuation) Wait(halted <-chan struct{}) int32 {
	select {
	case status := <-c.status:
		return status
	case <-halted:
	}

	runtime.Goexit()
	return 0
}

// Resume delivers status to the execute call parked on c and terminates the
// calling instruction stream; deferred calls of the stream run before it
// exits. Resume never returns.
func (c *Continuation) Resume(status int32) {
	c.status <- status
	runtime.Goexit()
}

// Abandon terminates the calling instruction stream without resuming any
// continuation. It is used by processes that have no parent to return to.
// Abandon never returns.
func Abandon() {
	runtime.Goexit()
}
