package gate

// TSS holds the fields of the task state segment that the CPU consults when
// an interrupt arrives while running at user privilege.
type TSS struct {
	// ESP0 is the kernel stack pointer loaded on a transition to ring 0.
	ESP0 uint32

	// SS0 is the kernel stack segment loaded on a transition to ring 0.
	SS0 uint16
}

// SetKernelStack installs the kernel stack used for the next privilege
// transition.
func (t *TSS) SetKernelStack(esp0 uint32) {
	t.SS0 = KernelDS
	t.ESP0 = esp0
}
