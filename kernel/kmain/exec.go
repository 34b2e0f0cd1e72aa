package kmain

import (
	"encoding/binary"
	"strings"

	"codeos/kernel"
	"codeos/kernel/fs"
	"codeos/kernel/gate"
	"codeos/kernel/kfmt"
	"codeos/kernel/mm"
	"codeos/kernel/mm/vmm"
	"codeos/kernel/proc"
	"codeos/kernel/syscall"
)

const (
	// execHeaderSize covers the magic and the entry point.
	execHeaderSize = 28

	// entryOffset is the offset of the entry point in the image header.
	entryOffset = 24

	// loadChunk is the size of the buffer used to copy images.
	loadChunk = int(mm.PageSize)
)

var (
	execMagic = [4]byte{0x7F, 'E', 'L', 'F'}

	errEmptyCommand   = &kernel.Error{Module: "exec", Message: "empty command", Kind: kernel.InvalidArgument}
	errArgTooLong     = &kernel.Error{Module: "exec", Message: "argument too long", Kind: kernel.InvalidArgument}
	errNotExecutable  = &kernel.Error{Module: "exec", Message: "not an executable", Kind: kernel.InvalidArgument}
	errImageTooLarge  = &kernel.Error{Module: "exec", Message: "image does not fit in the user window", Kind: kernel.InvalidArgument}
	errShortImageRead = &kernel.Error{Module: "exec", Message: "short read while loading image", Kind: kernel.InvalidArgument}
)

// parseCommand splits a command line on spaces into the program name and its
// single argument token. Anything after the argument is discarded. Other
// whitespace is part of the tokens.
func parseCommand(command string) (name, arg string, err *kernel.Error) {
	var fields []string
	for _, field := range strings.Split(command, " ") {
		if field != "" {
			fields = append(fields, field)
		}
	}
	switch {
	case len(fields) == 0:
		return "", "", errEmptyCommand
	case len(fields) > 1:
		arg = fields[1]
	}

	if len(arg) > proc.ArgLen-1 {
		return "", "", errArgTooLong
	}
	return fields[0], arg, nil
}

// Execute implements syscall.Loader. It starts command as a child of parent
// on parent's terminal and parks until the child halts, returning the
// child's exit status.
func (k *Kernel) Execute(parent *proc.PCB, command string) (int32, *kernel.Error) {
	child, err := k.load(command, parent.TerminalID, parent)
	if err != nil {
		return 0, err
	}

	resume := child.Resume
	k.enterUserMode(child)

	cpu := k.machine.CPU
	cpu.Release()
	status := resume.Wait(cpu.Done())
	cpu.Acquire()

	k.switchTo(parent)
	return status, nil
}

// spawnShell starts a root shell on terminal n.
func (k *Kernel) spawnShell(n int) *kernel.Error {
	p, err := k.load(k.cfg.Shell, n, nil)
	if err != nil {
		return err
	}

	k.enterUserMode(p)
	return nil
}

// load validates the program named by command, allocates a pid for it, maps
// its user window and copies the image in. The new process becomes the
// foreground process of terminal n. A nil parent makes it the terminal's
// root process.
func (k *Kernel) load(command string, n int, parent *proc.PCB) (*proc.PCB, *kernel.Error) {
	name, arg, err := parseCommand(command)
	if err != nil {
		return nil, err
	}

	dentry, err := k.files.LookupByName(name)
	if err != nil {
		return nil, err
	} else if dentry.Type != fs.TypeRegular {
		return nil, errNotExecutable
	}

	var hdr [execHeaderSize]byte
	if count, err := k.files.ReadData(dentry.Inode, 0, hdr[:]); err != nil || count != len(hdr) {
		return nil, errNotExecutable
	} else if [4]byte(hdr[:4]) != execMagic {
		return nil, errNotExecutable
	}

	length, err := k.files.FileLength(dentry.Inode)
	if err != nil {
		return nil, err
	} else if uint64(mm.ProgramLoadAddr)+uint64(length) > uint64(mm.UserStackTop) {
		return nil, errImageTooLarge
	}

	p, err := k.pids.Allocate()
	if err != nil {
		return nil, err
	}

	if err = k.machine.MMU.RemapUserWindow(p.PID); err == nil {
		err = k.copyImage(dentry.Inode, length)
	}
	if err != nil {
		k.pids.Free(p.PID)
		if parent != nil {
			k.switchTo(parent)
		}
		return nil, err
	}

	t := k.terms.Terminal(n)
	if parent != nil {
		p.ParentPID = parent.PID
		p.Resume = gate.NewContinuation()
	}
	p.TerminalID = n
	p.UserEntry = binary.LittleEndian.Uint32(hdr[entryOffset:])
	p.UserStack = mm.UserStackTop
	p.KernelStackTop = proc.KernelStackTop(p.PID)
	p.Arg = arg
	k.sys.BindTerminal(p)

	k.machine.TSS.SetKernelStack(p.KernelStackTop)
	k.machine.MMU.UnmapUserVideoPage()

	t.ProcessCount++
	t.Foreground = p
	return p, nil
}

// copyImage copies length bytes of the file at inode to the load address of
// the currently mapped user window.
func (k *Kernel) copyImage(inode, length uint32) *kernel.Error {
	buf := make([]byte, loadChunk)
	for offset := uint32(0); offset < length; {
		count, err := k.files.ReadData(inode, int64(offset), buf)
		if err != nil {
			return err
		} else if count == 0 {
			return errShortImageRead
		}

		if err = k.machine.MMU.WriteVirtual(mm.ProgramLoadAddr+offset, buf[:count], vmm.AccessWrite); err != nil {
			return err
		}
		offset += uint32(count)
	}
	return nil
}

func (k *Kernel) enterUserMode(p *proc.PCB) {
	k.user.EnterUserMode(gate.UserContext{
		Entry:       p.UserEntry,
		Stack:       p.UserStack,
		CodeSegment: gate.UserCS,
		DataSegment: gate.UserDS,
		KernelStack: p.KernelStackTop,
	})
}

// Halt implements syscall.Loader. A child process returns status to its
// parent's execute call; a root process is replaced by a fresh shell on the
// same terminal. Halt never returns.
func (k *Kernel) Halt(p *proc.PCB, status int32) {
	t := k.terms.Terminal(p.TerminalID)
	k.sys.CloseAll(p)

	if p.IsRoot() {
		k.pids.Free(p.PID)
		t.ProcessCount--
		t.Foreground = nil

		if err := k.spawnShell(t.ID); err != nil {
			kfmt.Panic(err)
		}
		gate.Abandon()
	}

	parent := k.pids.Get(p.ParentPID)
	resume := p.Resume

	k.switchTo(parent)
	t.ProcessCount--
	t.Foreground = parent
	k.pids.Free(p.PID)

	resume.Resume(status)
}

// switchTo installs the user window, kernel stack and video mapping of p.
func (k *Kernel) switchTo(p *proc.PCB) {
	mmu := k.machine.MMU
	if err := mmu.RemapUserWindow(p.PID); err != nil {
		kfmt.Panic(err)
	}
	k.machine.TSS.SetKernelStack(p.KernelStackTop)

	if !p.Vidmapped {
		mmu.UnmapUserVideoPage()
		return
	}

	frame, err := syscall.VideoFrameFor(k.terms, p)
	if err == nil {
		err = mmu.RetargetUserVideoPage(frame)
	}
	if err != nil {
		kfmt.Panic(err)
	}
}
