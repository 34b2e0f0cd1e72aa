package tty

import (
	"io"
	"testing"

	"codeos/device/video/console"
)

func TestVtPosition(t *testing.T) {
	specs := []struct {
		inX, inY   uint32
		expX, expY uint32
	}{
		{20, 20, 20, 20},
		{100, 20, 80, 20},
		{10, 200, 10, 25},
		{0, 0, 1, 1},
		{100, 100, 80, 25},
	}

	var term Device = NewVT(4)

	// SetCursorPosition without an attached console is a no-op
	term.SetCursorPosition(2, 2)

	if curX, curY := term.CursorPosition(); curX != 1 || curY != 1 {
		t.Fatalf("expected terminal initial position to be (1, 1); got (%d, %d)", curX, curY)
	}

	cons := newMockConsole(80, 25)
	term.AttachTo(cons)

	for specIndex, spec := range specs {
		term.SetCursorPosition(spec.inX, spec.inY)
		if x, y := term.CursorPosition(); x != spec.expX || y != spec.expY {
			t.Errorf("[spec %d] expected setting position to (%d, %d) to update the position to (%d, %d); got (%d, %d)", specIndex, spec.inX, spec.inY, spec.expX, spec.expY, x, y)
		}
	}
}

func TestVtWrite(t *testing.T) {
	cons := newMockConsole(80, 25)

	term := NewVT(4)
	if _, err := term.Write([]byte("foo")); err != io.ErrClosedPipe {
		t.Fatal("expected calling Write on a terminal without an attached console to return ErrClosedPipe")
	}

	term.AttachTo(cons)

	data := []byte("\b123\b4\t5\n67\r68\x00")
	count, err := term.Write(data)
	if err != nil {
		t.Fatal(err)
	}

	if count != len(data) {
		t.Fatalf("expected to write %d bytes; wrote %d", len(data), count)
	}

	specs := []struct {
		x, y    uint32
		expByte uint8
	}{
		{1, 1, '1'},
		{2, 1, '2'},
		{3, 1, '4'},
		{4, 1, ' '},
		{8, 1, '5'}, // 3 + tabWidth + 1
		{1, 2, '6'},
		{2, 2, '8'},
	}

	for specIndex, spec := range specs {
		if got := cons.at(spec.x, spec.y); got != spec.expByte {
			t.Errorf("[spec %d] expected char at (%d, %d) to be %q; got %q", specIndex, spec.x, spec.y, spec.expByte, got)
		}
	}

	if x, y := term.CursorPosition(); x != 3 || y != 2 {
		t.Fatalf("expected cursor at (3, 2); got (%d, %d)", x, y)
	}
}

func TestVtBackspaceWrap(t *testing.T) {
	cons := newMockConsole(4, 3)
	term := NewVT(4)
	term.AttachTo(cons)

	term.Write([]byte("abcd"))
	if x, y := term.CursorPosition(); x != 1 || y != 2 {
		t.Fatalf("expected cursor to wrap to (1, 2); got (%d, %d)", x, y)
	}

	term.WriteByte('\b')
	if x, y := term.CursorPosition(); x != 4 || y != 1 {
		t.Fatalf("expected backspace to move to (4, 1); got (%d, %d)", x, y)
	}
	if got := cons.at(4, 1); got != ' ' {
		t.Fatalf("expected backspace to erase 'd'; got %q", got)
	}
}

func TestVtScroll(t *testing.T) {
	cons := newMockConsole(80, 3)
	term := NewVT(4)
	term.AttachTo(cons)

	term.Write([]byte("1\n2\n3\n4"))

	if cons.scrolls != 1 {
		t.Fatalf("expected console to be scrolled once; got %d", cons.scrolls)
	}

	for y, exp := range []byte{'2', '3', '4'} {
		if got := cons.at(1, uint32(y+1)); got != exp {
			t.Errorf("expected row %d to start with %q; got %q", y+1, exp, got)
		}
	}

	term.Clear()
	if got := cons.at(1, 1); got != ' ' {
		t.Fatalf("expected Clear to erase the console; got %q", got)
	}
	if x, y := term.CursorPosition(); x != 1 || y != 1 {
		t.Fatalf("expected Clear to home the cursor; got (%d, %d)", x, y)
	}
}

func TestVTDriverInterface(t *testing.T) {
	drv := NewVT(DefaultTabWidth)

	if err := drv.DriverInit(nil); err != nil {
		t.Fatal(err)
	}

	if drv.DriverName() == "" {
		t.Fatal("DriverName() returned an empty string")
	}

	if major, minor, patch := drv.DriverVersion(); major+minor+patch == 0 {
		t.Fatal("DriverVersion() returned an invalid version number")
	}
}

type mockConsole struct {
	width, height uint32
	cells         []byte
	scrolls       int
}

func newMockConsole(w, h uint32) *mockConsole {
	cells := make([]byte, w*h)
	for i := range cells {
		cells[i] = ' '
	}
	return &mockConsole{width: w, height: h, cells: cells}
}

func (cons *mockConsole) at(x, y uint32) byte {
	return cons.cells[(y-1)*cons.width+x-1]
}

func (cons *mockConsole) Dimensions() (uint32, uint32) {
	return cons.width, cons.height
}

func (cons *mockConsole) DefaultColors() (uint8, uint8) {
	return 7, 0
}

func (cons *mockConsole) Fill(x, y, width, height uint32, _, _ uint8) {
	for row := y; row < y+height && row <= cons.height; row++ {
		for col := x; col < x+width && col <= cons.width; col++ {
			cons.cells[(row-1)*cons.width+col-1] = ' '
		}
	}
}

func (cons *mockConsole) Scroll(dir console.ScrollDir, lines uint32) {
	cons.scrolls++
	if dir == console.ScrollDirUp {
		copy(cons.cells, cons.cells[lines*cons.width:])
	}
}

func (cons *mockConsole) Write(ch byte, _, _ uint8, x, y uint32) {
	cons.cells[(y-1)*cons.width+x-1] = ch
}
