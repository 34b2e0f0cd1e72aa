// Package console implements the VGA text-mode console.
package console

// ScrollDir selects which way Scroll shifts the screen.
type ScrollDir uint8

const (
	// ScrollDirUp moves rows towards the top of the screen.
	ScrollDirUp ScrollDir = iota
	// ScrollDirDown moves rows towards the bottom of the screen.
	ScrollDirDown
)

// Device is a character-cell display. All coordinates are 1-based with
// (1,1) at the top-left corner.
type Device interface {
	// Dimensions reports the console size in cells.
	Dimensions() (uint32, uint32)

	// DefaultColors reports the colors the console clears with.
	DefaultColors() (fg, bg uint8)

	// Fill blanks a rectangle of cells.
	Fill(x, y, width, height uint32, fg, bg uint8)

	// Scroll shifts the screen by lines rows. Uncovered rows are left for
	// the caller to redraw.
	Scroll(dir ScrollDir, lines uint32)

	// Write stores ch in a single cell.
	Write(ch byte, fg, bg uint8, x, y uint32)
}
