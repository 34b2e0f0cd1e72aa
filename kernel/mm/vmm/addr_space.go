// Package vmm manages the kernel's single page directory. The directory is
// shared by every process: switching processes rewrites the entry that maps
// the user window instead of switching to a different directory.
package vmm

import (
	"codeos/kernel"
	"codeos/kernel/mm"
	"codeos/kernel/mm/pmm"
)

const (
	// PageDirectoryAddr is the physical address of the page directory.
	PageDirectoryAddr = uint32(0x401000)

	// kernelTableAddr is the page table mapping the first 4 MiB.
	kernelTableAddr = uint32(0x402000)

	// videoTableAddr is the page table backing the vidmap slot.
	videoTableAddr = uint32(0x403000)

	// ShadowBufferCount is the number of per-terminal video shadow buffers.
	ShadowBufferCount = 3
)

var (
	// shadowBuffers lists the physical (and identity mapped virtual)
	// addresses of the terminal video shadow buffers.
	shadowBuffers = [ShadowBufferCount]uint32{0xB9000, 0xBA000, 0xBB000}

	errOutsideUserWindow = &kernel.Error{Module: "vmm", Message: "address lies outside the user window", Kind: kernel.InvalidArgument}
	errNoSuchFrame       = &kernel.Error{Module: "vmm", Message: "physical frame is not installed", Kind: kernel.InvalidArgument}
	errBadShadowBuffer   = &kernel.Error{Module: "vmm", Message: "no shadow buffer for terminal", Kind: kernel.InvalidArgument}
)

// ShadowFrame returns the frame holding the video shadow buffer of terminal.
func ShadowFrame(terminal int) (mm.Frame, *kernel.Error) {
	if terminal < 0 || terminal >= ShadowBufferCount {
		return 0, errBadShadowBuffer
	}
	return mm.FrameFromAddress(shadowBuffers[terminal]), nil
}

// VideoFrame returns the frame of the hardware text-mode video memory.
func VideoFrame() mm.Frame {
	return mm.FrameFromAddress(mm.VideoMemory)
}

// AddressSpace owns the page directory and the page tables it references.
// All methods must be called by the stream that owns the CPU.
type AddressSpace struct {
	mem *pmm.Memory
	tlb tlb
}

// New returns an address space manager operating on mem. Init must be
// called before any translation takes place.
func New(mem *pmm.Memory) *AddressSpace {
	return &AddressSpace{mem: mem, tlb: make(tlb)}
}

// Memory returns the physical memory backing this address space.
func (as *AddressSpace) Memory() *pmm.Memory {
	return as.mem
}

// Init builds the static kernel mapping:
//   - 0-4 MiB through a 4 KiB page table. Only video memory (present,
//     global) and the terminal shadow buffers are mapped; page 0 stays
//     unmapped so null dereferences fault.
//   - 4-8 MiB as one 4 MiB kernel page.
//   - 128 MiB reserved for the user window but not present until the
//     first call to RemapUserWindow.
//
// All other entries are not present.
func (as *AddressSpace) Init() *kernel.Error {
	zero := make([]byte, mm.PageSize)
	for _, addr := range []uint32{PageDirectoryAddr, kernelTableAddr, videoTableAddr} {
		if err := as.mem.Write(addr, zero); err != nil {
			return err
		}
	}

	as.setEntry(kernelTableAddr, mm.PageFromAddress(mm.VideoMemory).TableIndex(),
		newEntry(VideoFrame(), FlagPresent|FlagRW|FlagGlobal))
	for _, addr := range shadowBuffers {
		as.setEntry(kernelTableAddr, mm.PageFromAddress(addr).TableIndex(),
			newEntry(mm.FrameFromAddress(addr), FlagPresent|FlagRW))
	}

	as.setEntry(PageDirectoryAddr, 0,
		newEntry(mm.FrameFromAddress(kernelTableAddr), FlagPresent|FlagRW))
	as.setEntry(PageDirectoryAddr, mm.PageFromAddress(mm.KernelBase).DirectoryIndex(),
		newEntry(mm.FrameFromAddress(mm.KernelBase), FlagPresent|FlagRW|FlagLargePage|FlagGlobal))
	as.setEntry(PageDirectoryAddr, userWindowSlot(),
		newEntry(0, FlagRW|FlagLargePage))

	flushTLBFn(as, true)
	return nil
}

// RemapUserWindow points the user window at the 4 MiB physical region owned
// by pid and flushes the TLB. It is the only operation that changes which
// physical memory a running process sees.
func (as *AddressSpace) RemapUserWindow(pid int) *kernel.Error {
	frame, err := mm.UserFrame(pid)
	if err != nil {
		return err
	}

	if !as.mem.Contains(frame.Address(), mm.LargePageSize) {
		return errNoSuchFrame
	}

	as.setEntry(PageDirectoryAddr, userWindowSlot(),
		newEntry(frame, FlagPresent|FlagRW|FlagUserAccessible|FlagLargePage))
	flushTLBFn(as, false)
	return nil
}

// UserWindowFrame returns the frame currently backing the user window and
// whether the window is present.
func (as *AddressSpace) UserWindowFrame() (mm.Frame, bool) {
	pde := as.entry(PageDirectoryAddr, userWindowSlot())
	return pde.Frame(), pde.HasFlags(FlagPresent)
}

// MapUserVideoPage validates that outPtr, the user address that will receive
// the result, lies inside the user window and maps frame as a user
// accessible page at mm.UserVideoAddr. It returns the mapped virtual address.
func (as *AddressSpace) MapUserVideoPage(outPtr uint32, frame mm.Frame) (uint32, *kernel.Error) {
	if !mm.Range(outPtr, 4, mm.UserWindowBase, mm.UserWindowEnd) {
		return 0, errOutsideUserWindow
	}

	if err := as.RetargetUserVideoPage(frame); err != nil {
		return 0, err
	}

	return mm.UserVideoAddr, nil
}

// RetargetUserVideoPage points the vidmap page at frame.
func (as *AddressSpace) RetargetUserVideoPage(frame mm.Frame) *kernel.Error {
	if !as.mem.Contains(frame.Address(), mm.PageSize) {
		return errNoSuchFrame
	}

	page := mm.PageFromAddress(mm.UserVideoAddr)
	as.setEntry(PageDirectoryAddr, page.DirectoryIndex(),
		newEntry(mm.FrameFromAddress(videoTableAddr), FlagPresent|FlagRW|FlagUserAccessible))
	as.setEntry(videoTableAddr, page.TableIndex(),
		newEntry(frame, FlagPresent|FlagRW|FlagUserAccessible))
	flushTLBEntryFn(as, page)
	return nil
}

// UnmapUserVideoPage removes the vidmap page.
func (as *AddressSpace) UnmapUserVideoPage() {
	page := mm.PageFromAddress(mm.UserVideoAddr)
	as.setEntry(PageDirectoryAddr, page.DirectoryIndex(), 0)
	as.setEntry(videoTableAddr, page.TableIndex(), 0)
	flushTLBEntryFn(as, page)
}

// SwapForegroundVideo saves hardware video memory into the shadow buffer of
// oldTerminal and then loads the shadow buffer of newTerminal into hardware
// video memory.
func (as *AddressSpace) SwapForegroundVideo(oldTerminal, newTerminal int) *kernel.Error {
	oldFrame, err := ShadowFrame(oldTerminal)
	if err != nil {
		return err
	}

	newFrame, err := ShadowFrame(newTerminal)
	if err != nil {
		return err
	}

	if err = as.mem.Copy(oldFrame.Address(), mm.VideoMemory, mm.PageSize); err != nil {
		return err
	}

	return as.mem.Copy(mm.VideoMemory, newFrame.Address(), mm.PageSize)
}

func userWindowSlot() int {
	return mm.PageFromAddress(mm.UserWindowBase).DirectoryIndex()
}

// entry reads entry index of the table at physical address tableAddr.
func (as *AddressSpace) entry(tableAddr uint32, index int) pageTableEntry {
	v, _ := as.mem.ReadUint32(tableAddr + uint32(index)*4)
	return pageTableEntry(v)
}

// setEntry writes entry index of the table at physical address tableAddr.
func (as *AddressSpace) setEntry(tableAddr uint32, index int, pte pageTableEntry) {
	as.mem.WriteUint32(tableAddr+uint32(index)*4, uint32(pte))
}
