package tty

import (
	"io"

	"codeos/device/video/console"
	"codeos/kernel"
)

// VT implements a terminal that renders directly onto its console. The
// terminal interprets the following special characters:
//   - \r (carriage-return)
//   - \n (line-feed)
//   - \b (backspace; erases the previous cell, wrapping to the previous line)
//   - \t (tab; expanded to tabWidth spaces)
//
// NUL bytes are ignored.
type VT struct {
	cons       console.Device
	cols, rows uint32

	// col and row hold the 1-based cursor.
	col, row uint32

	tab              uint8
	fg, bg           uint8
	clearFg, clearBg uint8
}

// NewVT creates a new virtual terminal device. The tabWidth parameter controls
// tab expansion.
func NewVT(tabWidth uint8) *VT {
	return &VT{tab: tabWidth, col: 1, row: 1}
}

// AttachTo connects a TTY to a console instance. The cursor position is kept
// so a terminal can be moved between consoles of the same size.
func (t *VT) AttachTo(cons console.Device) {
	if cons == nil {
		return
	}

	t.cons = cons
	t.cols, t.rows = cons.Dimensions()
	t.clearFg, t.clearBg = cons.DefaultColors()
	t.fg, t.bg = t.clearFg, t.clearBg
	t.SetCursorPosition(t.col, t.row)
}

// CursorPosition reports the 1-based cursor column and row.
func (t *VT) CursorPosition() (uint32, uint32) { return t.col, t.row }

// SetCursorPosition moves the cursor, clamping it to the attached console.
// It is a no-op while detached.
func (t *VT) SetCursorPosition(x, y uint32) {
	if t.cons == nil {
		return
	}
	t.col = min(max(x, 1), t.cols)
	t.row = min(max(y, 1), t.rows)
}

// Clear erases the console and moves the cursor to the top-left corner.
func (t *VT) Clear() {
	if t.cons == nil {
		return
	}

	t.cons.Fill(1, 1, t.cols, t.rows, t.clearFg, t.clearBg)
	t.col, t.row = 1, 1
}

// Write renders data byte by byte. It fails with io.ErrClosedPipe when no
// console is attached.
func (t *VT) Write(data []byte) (int, error) {
	for i := range data {
		if err := t.WriteByte(data[i]); err != nil {
			return i, err
		}
	}
	return len(data), nil
}

// WriteByte renders a single byte, interpreting control characters.
func (t *VT) WriteByte(b byte) error {
	if t.cons == nil {
		return io.ErrClosedPipe
	}

	switch b {
	case 0:
	case '\r':
		t.col = 1
	case '\n':
		t.lf()
	case '\b':
		t.backspace()
	case '\t':
		for n := t.tab; n > 0; n-- {
			t.put(' ')
		}
	default:
		t.put(b)
	}

	return nil
}

// put writes b at the cursor and advances it, wrapping at the end of the
// line.
func (t *VT) put(b byte) {
	t.cons.Write(b, t.fg, t.bg, t.col, t.row)
	if t.col++; t.col > t.cols {
		t.lf()
	}
}

// backspace blanks the cell before the cursor, stepping back onto the end of
// the previous line from column 1. It stops at the top-left corner.
func (t *VT) backspace() {
	switch {
	case t.col > 1:
		t.col--
	case t.row > 1:
		t.col, t.row = t.cols, t.row-1
	default:
		return
	}
	t.cons.Write(' ', t.fg, t.bg, t.col, t.row)
}

// lf moves the cursor to the start of the next line, scrolling the console
// when the cursor is on the last line.
func (t *VT) lf() {
	t.col = 1
	if t.row < t.rows {
		t.row++
		return
	}

	t.cons.Scroll(console.ScrollDirUp, 1)
	t.cons.Fill(1, t.rows, t.cols, 1, t.clearFg, t.clearBg)
}

// DriverName implements device.Driver.
func (t *VT) DriverName() string { return "vt" }

// DriverVersion implements device.Driver.
func (t *VT) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit implements device.Driver.
func (t *VT) DriverInit(_ io.Writer) *kernel.Error { return nil }
