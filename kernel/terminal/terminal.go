// Package terminal multiplexes the three terminal sessions over the single
// text-mode display and keyboard.
package terminal

import (
	"io"

	"codeos/device/tty"
	"codeos/device/video/console"
	"codeos/kernel"
	"codeos/kernel/kfmt"
	"codeos/kernel/mm"
	"codeos/kernel/mm/vmm"
	"codeos/kernel/proc"
)

const (
	// Count is the number of terminal sessions.
	Count = vmm.ShadowBufferCount

	// LineBufferSize is the size of a terminal's input line buffer. The
	// last slot is reserved for the newline.
	LineBufferSize = 128
)

var (
	errNoSuchTerminal = &kernel.Error{Module: "terminal", Message: "no such terminal", Kind: kernel.InvalidArgument}
)

// Terminal is one session: a process chain, an input line and a VT whose
// console renders into hardware video memory while the terminal is in the
// foreground and into the terminal's shadow buffer otherwise.
type Terminal struct {
	ID int

	// Foreground is the process currently owning the terminal's input and
	// output. It is nil only while the terminal is idle.
	Foreground *proc.PCB

	// ProcessCount is the length of the terminal's process chain.
	ProcessCount int

	cons *console.VgaTextConsole
	vt   *tty.VT

	line  [LineBufferSize]byte
	idx   int
	enter bool

	// wake is closed and replaced whenever enter is set.
	wake chan struct{}
}

// VT returns the terminal's virtual terminal.
func (t *Terminal) VT() *tty.VT {
	return t.vt
}

// Console returns the console the terminal renders to.
func (t *Terminal) Console() *console.VgaTextConsole {
	return t.cons
}

// Manager owns the terminal sessions. All methods must be called by the
// stream that owns the CPU.
type Manager struct {
	as      *vmm.AddressSpace
	terms   [Count]Terminal
	current int

	// Spawn starts a root shell on terminal n. It is invoked when an idle
	// terminal is brought to the foreground.
	Spawn func(n int) *kernel.Error

	// Suspend parks p until wake becomes ready. It is the suspend point
	// used by Read.
	Suspend func(p *proc.PCB, wake <-chan struct{})
}

// NewManager creates the terminal sessions with terminal 0 in the
// foreground.
func NewManager(as *vmm.AddressSpace) *Manager {
	m := &Manager{as: as}
	for i := range m.terms {
		t := &m.terms[i]
		t.ID = i
		t.wake = make(chan struct{})
		t.cons = console.NewVgaTextConsole(console.TextColumns, console.TextRows, as.Memory(), m.framebuffer(i))
		t.vt = tty.NewVT(tty.DefaultTabWidth)
	}
	return m
}

// Init binds every VT to its console and clears the screens.
func (m *Manager) Init() *kernel.Error {
	for i := range m.terms {
		t := &m.terms[i]
		if err := t.cons.SetFramebuffer(m.framebuffer(i)); err != nil {
			return err
		}
		t.vt.AttachTo(t.cons)
		t.vt.Clear()
	}
	return nil
}

// framebuffer returns the physical address terminal n renders to.
func (m *Manager) framebuffer(n int) uint32 {
	if n == m.current {
		return mm.VideoMemory
	}
	frame, _ := vmm.ShadowFrame(n)
	return frame.Address()
}

// Terminal returns session n or nil if n is out of range.
func (m *Manager) Terminal(n int) *Terminal {
	if n < 0 || n >= Count {
		return nil
	}
	return &m.terms[n]
}

// Current returns the index of the foreground terminal.
func (m *Manager) Current() int {
	return m.current
}

// IsForeground reports whether terminal n is the foreground terminal.
func (m *Manager) IsForeground(n int) bool {
	return n == m.current
}

// Cursor returns the cursor position of the foreground terminal.
func (m *Manager) Cursor() (uint32, uint32) {
	return m.terms[m.current].vt.CursorPosition()
}

// SwitchTo brings terminal n to the foreground: hardware video memory is
// saved into the outgoing terminal's shadow buffer and replaced by the
// incoming terminal's one. An idle terminal gets a root shell.
func (m *Manager) SwitchTo(n int) *kernel.Error {
	if n < 0 || n >= Count {
		return errNoSuchTerminal
	} else if n == m.current {
		return nil
	}

	prev, next := &m.terms[m.current], &m.terms[n]
	if err := m.as.SwapForegroundVideo(prev.ID, next.ID); err != nil {
		return err
	}

	m.current = n
	if err := prev.cons.SetFramebuffer(m.framebuffer(prev.ID)); err != nil {
		return err
	}
	if err := next.cons.SetFramebuffer(m.framebuffer(next.ID)); err != nil {
		return err
	}

	if next.ProcessCount == 0 && m.Spawn != nil {
		return m.Spawn(n)
	}
	return nil
}

// Character implements keyboard.Sink. The character is appended to the
// foreground terminal's line and echoed. Once the line holds
// LineBufferSize-1 characters only a newline is accepted.
func (m *Manager) Character(c byte) {
	t := &m.terms[m.current]
	if t.idx >= LineBufferSize || (t.idx >= LineBufferSize-1 && c != '\n') {
		return
	}

	t.line[t.idx] = c
	t.idx++
	t.vt.WriteByte(c)

	if c == '\n' {
		t.enter = true
		close(t.wake)
		t.wake = make(chan struct{})
	}
}

// Backspace implements keyboard.Sink by dropping the last buffered
// character from the screen and the line.
func (m *Manager) Backspace() {
	t := &m.terms[m.current]
	if t.idx == 0 || t.enter {
		return
	}

	t.idx--
	cells := 1
	if t.line[t.idx] == '\t' {
		cells = tty.DefaultTabWidth
	}
	for ; cells > 0; cells-- {
		t.vt.WriteByte('\b')
	}
}

// ClearScreen implements keyboard.Sink.
func (m *Manager) ClearScreen() {
	m.terms[m.current].vt.Clear()
}

// SwitchTerminal implements keyboard.Sink.
func (m *Manager) SwitchTerminal(n int) {
	if err := m.SwitchTo(n); err != nil {
		kfmt.Printf("[terminal] switch to %d failed: %s\n", n, err.Message)
	}
}

// Read blocks p until a line is entered on its terminal and then copies up
// to len(buf) bytes of the line, stopping after the newline. The remainder
// of the line is discarded.
func (m *Manager) Read(p *proc.PCB, buf []byte) (int, *kernel.Error) {
	t := m.Terminal(p.TerminalID)
	if t == nil {
		return 0, errNoSuchTerminal
	}

	if len(buf) == 0 {
		return 0, nil
	}

	for !t.enter {
		m.Suspend(p, t.wake)
	}

	n := 0
	for n < len(buf) && n < t.idx {
		buf[n] = t.line[n]
		n++
		if buf[n-1] == '\n' {
			break
		}
	}

	t.idx, t.enter = 0, false
	return n, nil
}

// Write renders buf on p's terminal, skipping NUL bytes.
func (m *Manager) Write(p *proc.PCB, buf []byte) (int, *kernel.Error) {
	t := m.Terminal(p.TerminalID)
	if t == nil {
		return 0, errNoSuchTerminal
	}

	for _, b := range buf {
		if b != 0 {
			t.vt.WriteByte(b)
		}
	}
	return len(buf), nil
}

// Writer returns a writer that renders onto the foreground terminal.
func (m *Manager) Writer() io.Writer {
	return foregroundWriter{m}
}

type foregroundWriter struct {
	m *Manager
}

func (w foregroundWriter) Write(p []byte) (int, error) {
	return w.m.terms[w.m.current].vt.Write(p)
}
