package proc

import "codeos/kernel"

var (
	errNoFreePID = &kernel.Error{Module: "proc", Message: "no free pid slot", Kind: kernel.ResourceExhausted}
	errBadPID    = &kernel.Error{Module: "proc", Message: "pid out of range", Kind: kernel.InvalidArgument}
)

// Table is the fixed pid slot bitmap together with the PCB storage. It must
// only be accessed by the stream that owns the CPU.
type Table struct {
	used [MaxProcesses]bool
	pcbs [MaxProcesses]PCB
}

// Allocate claims the lowest free pid and returns its zeroed PCB.
func (t *Table) Allocate() (*PCB, *kernel.Error) {
	for pid, used := range t.used {
		if used {
			continue
		}

		t.used[pid] = true
		t.pcbs[pid] = PCB{PID: pid, ParentPID: NoParent}
		return &t.pcbs[pid], nil
	}

	return nil, errNoFreePID
}

// Free clears the slot of pid. The caller must already have released the
// descriptors and the user window of the process.
func (t *Table) Free(pid int) *kernel.Error {
	if pid < 0 || pid >= MaxProcesses {
		return errBadPID
	}
	t.used[pid] = false
	return nil
}

// Get returns the PCB of pid. It performs no validation beyond the range
// check: callers only ask for pids they know to be live.
func (t *Table) Get(pid int) *PCB {
	return &t.pcbs[pid]
}

// Lookup returns the PCB of pid if the slot is in use.
func (t *Table) Lookup(pid int) (*PCB, bool) {
	if pid < 0 || pid >= MaxProcesses || !t.used[pid] {
		return nil, false
	}
	return &t.pcbs[pid], true
}

// InUse reports whether pid is allocated.
func (t *Table) InUse(pid int) bool {
	return pid >= 0 && pid < MaxProcesses && t.used[pid]
}

// Live returns the pids that are currently allocated in ascending order.
func (t *Table) Live() []int {
	var pids []int
	for pid, used := range t.used {
		if used {
			pids = append(pids, pid)
		}
	}
	return pids
}

// FromKernelStack returns the live PCB whose kernel stack contains esp.
func (t *Table) FromKernelStack(esp uint32) (*PCB, bool) {
	return t.Lookup(PIDFromKernelStack(esp))
}
