package console

import (
	"io"

	"codeos/kernel"
	"codeos/kernel/kfmt"
	"codeos/kernel/mm"
	"codeos/kernel/mm/pmm"
)

const (
	// TextColumns and TextRows are the dimensions of VGA mode 0x3.
	TextColumns = 80
	TextRows    = 25

	// maxColorIndex is the highest of the 16 EGA colors.
	maxColorIndex = 15
)

var (
	errFramebufferTooSmall = &kernel.Error{Module: "vga_text_console", Message: "framebuffer does not fit in one frame", Kind: kernel.InvalidArgument}
)

// VgaTextConsole is an 80x25 EGA text console backed by one physical frame.
// Every cell is two bytes: the character followed by an attribute byte with
// the background color in the high nibble and the foreground in the low one.
// SetFramebuffer moves the console between hardware video memory and a
// shadow frame. New consoles draw light gray on black and clear with spaces.
type VgaTextConsole struct {
	cols, rows uint32

	mem        *pmm.Memory
	fbPhysAddr uint32
	fb         []byte

	fg, bg    uint8
	clearChar byte
}

// NewVgaTextConsole creates an new vga text console with its framebuffer at
// fbPhysAddr. DriverInit must be invoked before the console is used.
func NewVgaTextConsole(columns, rows uint32, mem *pmm.Memory, fbPhysAddr uint32) *VgaTextConsole {
	return &VgaTextConsole{
		cols:       columns,
		rows:       rows,
		mem:        mem,
		fbPhysAddr: fbPhysAddr,
		clearChar:  ' ',
		fg:         7,
	}
}

// Dimensions returns the console size in character cells.
func (cons *VgaTextConsole) Dimensions() (uint32, uint32) { return cons.cols, cons.rows }

// DefaultColors returns the colors used for clearing.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) { return cons.fg, cons.bg }

// Framebuffer returns the physical address of the active framebuffer.
func (cons *VgaTextConsole) Framebuffer() uint32 {
	return cons.fbPhysAddr
}

// SetFramebuffer points the console at the frame holding physAddr. The
// contents of the old and new framebuffers are left untouched.
func (cons *VgaTextConsole) SetFramebuffer(physAddr uint32) *kernel.Error {
	if cons.cols*cons.rows*2 > mm.PageSize {
		return errFramebufferTooSmall
	}

	fb, err := cons.mem.Frame(mm.FrameFromAddress(physAddr))
	if err != nil {
		return err
	}

	cons.fbPhysAddr = physAddr
	cons.fb = fb[:cons.cols*cons.rows*2]
	return nil
}

// cell returns the framebuffer offset of the 1-based cell (x, y) and whether
// it lies on screen.
func (cons *VgaTextConsole) cell(x, y uint32) (uint32, bool) {
	if x == 0 || y == 0 || x > cons.cols || y > cons.rows {
		return 0, false
	}
	return 2 * ((y-1)*cons.cols + x - 1), true
}

// clip limits the 1-based span [from, from+n) to [1, limit].
func clip(from, n, limit uint32) (uint32, uint32) {
	from = max(from, 1)
	if from > limit {
		return limit, 0
	}
	return from, min(n, limit-from+1)
}

// Fill clears the rectangle at the 1-based (x, y) with the given colors.
// Parts of the rectangle that fall off screen are ignored.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	x, width = clip(x, width, cons.cols)
	y, height = clip(y, height, cons.rows)
	attr := bg<<4 | fg

	for row := y; row < y+height; row++ {
		start, _ := cons.cell(x, row)
		line := cons.fb[start : start+2*width]
		for i := 0; i < len(line); i += 2 {
			line[i], line[i+1] = cons.clearChar, attr
		}
	}
}

// Scroll shifts the framebuffer by lines rows. The rows uncovered by the
// shift keep their old contents.
func (cons *VgaTextConsole) Scroll(dir ScrollDir, lines uint32) {
	if lines == 0 || lines > cons.rows {
		return
	}

	shift := 2 * lines * cons.cols
	if dir == ScrollDirUp {
		copy(cons.fb, cons.fb[shift:])
	} else {
		copy(cons.fb[shift:], cons.fb)
	}
}

// Write stores ch at the 1-based (x, y). Colors outside the 16-color
// palette fall back to the console defaults.
func (cons *VgaTextConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	off, ok := cons.cell(x, y)
	if !ok {
		return
	}

	if fg > maxColorIndex {
		fg = cons.fg
	}
	if bg > maxColorIndex {
		bg = cons.bg
	}
	cons.fb[off], cons.fb[off+1] = ch, bg<<4|fg
}

// Read returns the character and attribute at the 1-based (x, y).
func (cons *VgaTextConsole) Read(x, y uint32) (ch byte, attr uint8) {
	off, ok := cons.cell(x, y)
	if !ok {
		return 0, 0
	}
	return cons.fb[off], cons.fb[off+1]
}

// DriverName implements device.Driver.
func (cons *VgaTextConsole) DriverName() string { return "vga_text_console" }

// DriverVersion implements device.Driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit binds the framebuffer and clears the screen.
func (cons *VgaTextConsole) DriverInit(w io.Writer) *kernel.Error {
	if err := cons.SetFramebuffer(cons.fbPhysAddr); err != nil {
		return err
	}

	cons.Fill(1, 1, cons.cols, cons.rows, cons.fg, cons.bg)
	kfmt.Fprintf(w, "%dx%d framebuffer at 0x%x\n", cons.cols, cons.rows, cons.fbPhysAddr)
	return nil
}
