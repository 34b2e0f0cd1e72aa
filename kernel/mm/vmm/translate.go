package vmm

import (
	"codeos/kernel"
	"codeos/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory
	// address that is not mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page", Kind: kernel.InvalidArgument}

	// ErrAccessViolation is returned when a mapping exists but does not
	// permit the requested access.
	ErrAccessViolation = &kernel.Error{Module: "vmm", Message: "page protection check failed", Kind: kernel.InvalidArgument}

	// flushTLBFn and flushTLBEntryFn are used by tests to observe TLB
	// invalidations.
	flushTLBFn      = (*AddressSpace).flushTLB
	flushTLBEntryFn = (*AddressSpace).flushTLBEntry
)

// Access describes the kind of memory access being translated.
type Access uint8

const (
	// AccessRead is a supervisor read.
	AccessRead Access = 0

	// AccessWrite marks a write access.
	AccessWrite Access = 1 << 0

	// AccessUser marks an access performed at user privilege.
	AccessUser Access = 1 << 1
)

// tlbEntry caches the result of a page walk for one 4 KiB page.
type tlbEntry struct {
	frame  mm.Frame
	flags  PageTableEntryFlag
	global bool
	dirty  bool
}

// tlb is the translation cache. Stale entries are only dropped by an
// explicit flush, like on real hardware.
type tlb map[mm.Page]tlbEntry

func (as *AddressSpace) flushTLB(includeGlobal bool) {
	for page, entry := range as.tlb {
		if includeGlobal || !entry.global {
			delete(as.tlb, page)
		}
	}
}

func (as *AddressSpace) flushTLBEntry(page mm.Page) {
	delete(as.tlb, page)
}

// FlushTLB drops every non-global cached translation.
func (as *AddressSpace) FlushTLB() {
	flushTLBFn(as, false)
}

// pageTableWalker is a function that can be passed to walk. It receives the
// paging level (0 for the directory, 1 for a page table) and a pointer to
// the entry; modifications to the entry are written back. Returning false
// aborts the walk.
type pageTableWalker func(level uint8, pte *pageTableEntry) bool

// walk performs a page walk for virtAddr, stopping after a large page
// directory entry.
func (as *AddressSpace) walk(virtAddr uint32, walkFn pageTableWalker) {
	page := mm.PageFromAddress(virtAddr)

	tableAddr, index := PageDirectoryAddr, page.DirectoryIndex()
	for level := uint8(0); level < 2; level++ {
		pte := as.entry(tableAddr, index)
		orig := pte
		ok := walkFn(level, &pte)
		if pte != orig {
			as.setEntry(tableAddr, index, pte)
		}

		if !ok || pte.HasFlags(FlagLargePage) {
			return
		}

		tableAddr, index = pte.Frame().Address(), page.TableIndex()
	}
}

// Translate returns the physical address that corresponds to virtAddr for
// the requested access. It fails with ErrInvalidMapping if any level is not
// present and with ErrAccessViolation if a user access hits a supervisor
// page or a write hits a read-only page.
func (as *AddressSpace) Translate(virtAddr uint32, access Access) (uint32, *kernel.Error) {
	page := mm.PageFromAddress(virtAddr)
	write := access&AccessWrite != 0

	entry, cached := as.tlb[page]
	if !cached || (write && !entry.dirty) {
		var err *kernel.Error
		if entry, err = as.fill(virtAddr, write); err != nil {
			return 0, err
		}
		as.tlb[page] = entry
	}

	if access&AccessUser != 0 && entry.flags&FlagUserAccessible == 0 {
		return 0, ErrAccessViolation
	}
	if write && entry.flags&FlagRW == 0 {
		return 0, ErrAccessViolation
	}

	return entry.frame.Address() + mm.PageOffset(virtAddr), nil
}

// fill walks the page tables for virtAddr and returns the effective
// translation. User and write permissions must be granted at every level.
func (as *AddressSpace) fill(virtAddr uint32, write bool) (tlbEntry, *kernel.Error) {
	var (
		entry = tlbEntry{flags: FlagUserAccessible | FlagRW}
		err   = ErrInvalidMapping
	)

	as.walk(virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		pte.SetFlags(FlagAccessed)
		entry.flags &= PageTableEntryFlag(*pte) & (FlagUserAccessible | FlagRW)

		switch {
		case level == 0 && pte.HasFlags(FlagLargePage):
			entry.frame = pte.Frame() + mm.Frame(mm.LargePageOffset(virtAddr)>>mm.PageShift)
		case level == 0:
			return true
		default:
			entry.frame = pte.Frame()
		}

		if write && entry.flags&FlagRW != 0 {
			pte.SetFlags(FlagDirty)
			entry.dirty = true
		}
		entry.global = pte.HasFlags(FlagGlobal)
		err = nil
		return false
	})

	return entry, err
}
