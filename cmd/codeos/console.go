package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	tty "github.com/mattn/go-tty"
	"golang.org/x/term"

	"codeos/device/keyboard"
	"codeos/kernel/hal"
	"codeos/kernel/kmain"
	"codeos/kernel/mm"
)

const (
	screenWidth  = 80
	screenHeight = 25

	// quitKey (Ctrl+]) leaves the emulator.
	quitKey = 0x1D
	escKey  = 0x1B
)

// screen is a copy of the hardware text frame together with the cursor.
type screen struct {
	cells            [screenWidth * screenHeight * 2]byte
	cursorX, cursorY uint32
}

// snapshot copies the text frame while no stream owns the CPU.
func snapshot(machine *hal.Machine, k *kmain.Kernel) *screen {
	s := &screen{}
	machine.Inspect(func() {
		machine.Memory.Read(mm.VideoMemory, s.cells[:])
		s.cursorX, s.cursorY = k.Terminals().Cursor()
	})
	return s
}

// finalScreen copies the text frame of a machine whose streams have all
// terminated.
func finalScreen(machine *hal.Machine) *screen {
	s := &screen{}
	machine.Memory.Read(mm.VideoMemory, s.cells[:])
	return s
}

// lines returns the rows of the screen with trailing blanks removed.
func (s *screen) lines() []string {
	rows := make([]string, screenHeight)
	row := make([]byte, screenWidth)
	for y := range rows {
		for x := range row {
			c := s.cells[2*(y*screenWidth+x)]
			if c < 0x20 || c > 0x7E {
				c = ' '
			}
			row[x] = c
		}
		rows[y] = string(bytes.TrimRight(row, " "))
	}
	return rows
}

// String renders the screen without trailing empty rows.
func (s *screen) String() string {
	rows := s.lines()
	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}

	var out bytes.Buffer
	for _, row := range rows {
		out.WriteString(row)
		out.WriteByte('\n')
	}
	return out.String()
}

// console is the host terminal in raw mode.
type console struct {
	tty     *tty.TTY
	restore func() error
	keys    chan rune
}

func openConsole() (*console, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, err
	}

	con := &console{tty: t, restore: t.MustRaw(), keys: make(chan rune, 64)}
	go con.read()
	return con, nil
}

func (con *console) Close() error {
	con.tty.Output().WriteString("\x1b[0m\x1b[2J\x1b[H")
	con.restore()
	return con.tty.Close()
}

// read forwards host key presses until the terminal is closed.
func (con *console) read() {
	defer close(con.keys)
	for {
		r, err := con.tty.ReadRune()
		if err != nil {
			return
		}
		con.keys <- r
	}
}

// pump translates host key presses to scancodes. ESC followed by 1, 2 or 3
// (what most terminals send for Alt+digit) switches terminals.
func (con *console) pump(ctx context.Context, machine *hal.Machine) error {
	escaped := false
	for {
		var r rune
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-con.keys:
			if !ok {
				return errQuit
			}
			r = key
		}

		var codes []byte
		switch {
		case r == quitKey:
			return errQuit
		case r == escKey:
			escaped = true
			continue
		case escaped && r >= '1' && r <= '3':
			codes = keyboard.SwitchSequence(int(r - '1'))
		case r < 0x80:
			codes = keyboard.Encode(byte(r))
		}
		escaped = false

		for _, code := range codes {
			if !machine.KeyPress(code) {
				return errQuit
			}
		}
	}
}

// render redraws the terminal whenever the text frame changes.
func (con *console) render(ctx context.Context, machine *hal.Machine, k *kmain.Kernel, fps int) error {
	if fps <= 0 {
		fps = 30
	}

	var last *screen
	return tick(ctx, time.Second/time.Duration(fps), func() bool {
		s := snapshot(machine, k)
		if last != nil && *s == *last {
			return true
		}
		last = s

		con.draw(s)
		return true
	})
}

func (con *console) draw(s *screen) {
	width, height := screenWidth, screenHeight
	if w, h, err := term.GetSize(int(con.tty.Output().Fd())); err == nil {
		width, height = min(w, width), min(h, height)
	}

	var out bytes.Buffer
	out.WriteString("\x1b[H")
	for y, row := range s.lines()[:height] {
		if len(row) > width {
			row = row[:width]
		}
		out.WriteString(row)
		out.WriteString("\x1b[K")
		if y < height-1 {
			out.WriteString("\r\n")
		}
	}
	fmt.Fprintf(&out, "\x1b[%d;%dH", s.cursorY, s.cursorX)
	con.tty.Output().Write(out.Bytes())
}

// script types the contents of r and returns once the input is exhausted
// and settle has elapsed.
func script(ctx context.Context, machine *hal.Machine, r io.Reader, settle time.Duration) error {
	in := bufio.NewReader(r)
	for {
		c, err := in.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		for _, code := range keyboard.Encode(c) {
			if !machine.KeyPress(code) {
				return errQuit
			}
		}

		// give the foreground program a chance to consume each line
		if c == '\n' {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(settle / 4):
			}
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(settle):
		return errQuit
	}
}
