// Package mm defines the typed physical frame and virtual page indices used
// by the memory subsystem together with the fixed layout of the 32-bit
// address space.
package mm

import "codeos/kernel"

const (
	// PageShift is equal to log2(PageSize).
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uint32(1 << PageShift)

	// LargePageShift is equal to log2(LargePageSize).
	LargePageShift = 22

	// LargePageSize is the size of a page mapped directly by a page
	// directory entry.
	LargePageSize = uint32(1 << LargePageShift)

	// EntriesPerTable is the number of entries in a page directory or a
	// page table.
	EntriesPerTable = 1024

	// Kb, Mb are byte size helpers.
	Kb = uint32(1024)
	Mb = 1024 * Kb
)

const (
	// VideoMemory is the physical (and identity mapped virtual) address of
	// the VGA text frame.
	VideoMemory = uint32(0xB8000)

	// KernelBase is the start of the 4 MiB page holding the kernel image.
	KernelBase = 4 * Mb

	// KernelStackBase is the top of the region holding the per-process
	// kernel stacks.
	KernelStackBase = 8 * Mb

	// KernelStackSize is the size of each per-process kernel stack.
	KernelStackSize = 8 * Kb

	// UserWindowBase is the virtual address of the per-process user window.
	UserWindowBase = 128 * Mb

	// UserWindowSize is the size of the user window.
	UserWindowSize = LargePageSize

	// UserWindowEnd is the first virtual address past the user window.
	UserWindowEnd = UserWindowBase + UserWindowSize

	// UserFrameBase is the physical address backing the user window of
	// pid 0; pid n uses UserFrameBase + n*LargePageSize.
	UserFrameBase = 8 * Mb

	// UserVideoAddr is the virtual address handed out by vidmap.
	UserVideoAddr = 136 * Mb

	// ProgramLoadAddr is the virtual address where executable images are
	// copied.
	ProgramLoadAddr = uint32(0x08048000)

	// UserStackTop is the initial user stack pointer.
	UserStackTop = UserWindowEnd - 4
)

var (
	errAddressOverflow = &kernel.Error{Module: "mm", Message: "address does not fit in 32 bits", Kind: kernel.InvalidArgument}
)

// Frame describes a physical memory page index.
type Frame uint32

// Address returns the physical address of the first byte in this frame.
func (f Frame) Address() uint32 {
	return uint32(f) << PageShift
}

// FrameFromAddress returns the Frame that contains physAddr.
func FrameFromAddress(physAddr uint32) Frame {
	return Frame(physAddr >> PageShift)
}

// Page describes a virtual memory page index.
type Page uint32

// Address returns the virtual address of the first byte in this page.
func (p Page) Address() uint32 {
	return uint32(p) << PageShift
}

// DirectoryIndex returns the index of the page directory entry that covers
// this page.
func (p Page) DirectoryIndex() int {
	return int(p >> (LargePageShift - PageShift))
}

// TableIndex returns the index of the page table entry that maps this page.
func (p Page) TableIndex() int {
	return int(p & (EntriesPerTable - 1))
}

// PageFromAddress returns the Page that contains virtAddr.
func PageFromAddress(virtAddr uint32) Page {
	return Page(virtAddr >> PageShift)
}

// PageOffset returns the offset of addr within its 4 KiB page.
func PageOffset(addr uint32) uint32 {
	return addr & (PageSize - 1)
}

// LargePageOffset returns the offset of addr within its 4 MiB page.
func LargePageOffset(addr uint32) uint32 {
	return addr & (LargePageSize - 1)
}

// UserFrame returns the first frame of the 4 MiB physical region that backs
// the user window of pid. It fails if the region does not fit in the 32-bit
// physical address space.
func UserFrame(pid int) (Frame, *kernel.Error) {
	if pid < 0 {
		return 0, errAddressOverflow
	}

	addr := uint64(UserFrameBase) + uint64(pid)*uint64(LargePageSize)
	if addr+uint64(LargePageSize) > 1<<32 {
		return 0, errAddressOverflow
	}

	return FrameFromAddress(uint32(addr)), nil
}

// Range checks that [addr, addr+size) lies within [start, end) without
// wrapping.
func Range(addr, size, start, end uint32) bool {
	if addr < start || addr > end {
		return false
	}
	return uint64(addr)+uint64(size) <= uint64(end)
}
