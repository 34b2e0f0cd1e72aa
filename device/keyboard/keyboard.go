// Package keyboard decodes PS/2 scancode set 1 into terminal input events.
package keyboard

import (
	"io"

	"codeos/kernel"
	"codeos/kernel/kfmt"
)

// DataPort is the I/O port the controller latches scancodes into.
const DataPort = 0x60

// Scancodes with a special meaning. The release code of a key is its press
// code with the top bit set.
const (
	Escape     = 0x01
	Backspace  = 0x0E
	Tab        = 0x0F
	Enter      = 0x1C
	Ctrl       = 0x1D
	LeftShift  = 0x2A
	RightShift = 0x36
	Alt        = 0x38
	CapsLock   = 0x3A
	F1         = 0x3B
	F2         = 0x3C
	F3         = 0x3D

	releaseBit = 0x80

	// numKeys is the number of scancodes with a printable mapping.
	numKeys = 58

	// clearKey is the scancode that clears the screen when combined with
	// Ctrl.
	clearKey = 0x26
)

// keymap maps a press scancode to its unshifted and shifted characters. Zero
// entries do not produce characters.
var keymap = [numKeys][2]byte{
	0x02: {'1', '!'}, 0x03: {'2', '@'}, 0x04: {'3', '#'}, 0x05: {'4', '$'},
	0x06: {'5', '%'}, 0x07: {'6', '^'}, 0x08: {'7', '&'}, 0x09: {'8', '*'},
	0x0A: {'9', '('}, 0x0B: {'0', ')'}, 0x0C: {'-', '_'}, 0x0D: {'=', '+'},
	0x0F: {'\t', '\t'},
	0x10: {'q', 'Q'}, 0x11: {'w', 'W'}, 0x12: {'e', 'E'}, 0x13: {'r', 'R'},
	0x14: {'t', 'T'}, 0x15: {'y', 'Y'}, 0x16: {'u', 'U'}, 0x17: {'i', 'I'},
	0x18: {'o', 'O'}, 0x19: {'p', 'P'}, 0x1A: {'[', '{'}, 0x1B: {']', '}'},
	0x1C: {'\n', '\n'},
	0x1E: {'a', 'A'}, 0x1F: {'s', 'S'}, 0x20: {'d', 'D'}, 0x21: {'f', 'F'},
	0x22: {'g', 'G'}, 0x23: {'h', 'H'}, 0x24: {'j', 'J'}, 0x25: {'k', 'K'},
	0x26: {'l', 'L'}, 0x27: {';', ':'}, 0x28: {'\'', '"'}, 0x29: {'`', '~'},
	0x2B: {'\\', '|'},
	0x2C: {'z', 'Z'}, 0x2D: {'x', 'X'}, 0x2E: {'c', 'C'}, 0x2F: {'v', 'V'},
	0x30: {'b', 'B'}, 0x31: {'n', 'N'}, 0x32: {'m', 'M'}, 0x33: {',', '<'},
	0x34: {'.', '>'}, 0x35: {'/', '?'},
	0x39: {' ', ' '},
}

// Sink receives the events produced by the decoder.
type Sink interface {
	// Character is invoked for every printable key press, including
	// newline and tab.
	Character(c byte)

	// Backspace is invoked when the backspace key is pressed.
	Backspace()

	// ClearScreen is invoked for Ctrl+L.
	ClearScreen()

	// SwitchTerminal is invoked for Alt+F1..F3 with the 0-based terminal
	// index.
	SwitchTerminal(n int)
}

// Decoder tracks modifier state across scancodes. It must only be used by
// the keyboard interrupt handler.
type Decoder struct {
	leftShift, rightShift bool
	ctrl, alt             bool
	capsLock, capsHeld    bool
}

// New returns a decoder with every modifier released.
func New() *Decoder {
	return &Decoder{}
}

// Decode processes a single scancode and reports the resulting event, if
// any, to sink.
func (d *Decoder) Decode(code byte, sink Sink) {
	switch code {
	case LeftShift, LeftShift | releaseBit:
		d.leftShift = code&releaseBit == 0
		return
	case RightShift, RightShift | releaseBit:
		d.rightShift = code&releaseBit == 0
		return
	case Ctrl, Ctrl | releaseBit:
		d.ctrl = code&releaseBit == 0
		return
	case Alt, Alt | releaseBit:
		d.alt = code&releaseBit == 0
		return
	case CapsLock:
		// Typematic repeats must not toggle the lock again.
		if !d.capsHeld {
			d.capsLock = !d.capsLock
		}
		d.capsHeld = true
		return
	case CapsLock | releaseBit:
		d.capsHeld = false
		return
	}

	if code&releaseBit != 0 || code == Escape {
		return
	}

	if d.alt && code >= F1 && code <= F3 {
		sink.SwitchTerminal(int(code - F1))
		return
	}

	if d.ctrl {
		if code == clearKey {
			sink.ClearScreen()
		}
		return
	}

	if code == Backspace {
		sink.Backspace()
		return
	}

	if int(code) >= numKeys || keymap[code][0] == 0 {
		return
	}

	sink.Character(d.translate(code))
}

func (d *Decoder) translate(code byte) byte {
	shift := d.leftShift || d.rightShift
	if c := keymap[code][0]; c >= 'a' && c <= 'z' {
		shift = shift != d.capsLock
	}

	if shift {
		return keymap[code][1]
	}
	return keymap[code][0]
}

// CapsLock reports whether caps lock is engaged.
func (d *Decoder) CapsLock() bool {
	return d.capsLock
}

// DriverName returns the name of this driver.
func (d *Decoder) DriverName() string {
	return "ps2-keyboard"
}

// DriverVersion returns the version of this driver.
func (d *Decoder) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit resets the modifier state.
func (d *Decoder) DriverInit(w io.Writer) *kernel.Error {
	*d = Decoder{}
	kfmt.Fprintf(w, "scancode set 1 on port 0x%x\n", DataPort)
	return nil
}
