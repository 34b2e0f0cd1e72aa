package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codeos/kernel/gate"
	"codeos/kernel/hal"
	"codeos/kernel/irq"
	"codeos/kernel/mm"
)

func TestScreenString(t *testing.T) {
	var s screen
	put := func(x, y int, text string) {
		for i := 0; i < len(text); i++ {
			s.cells[2*(y*screenWidth+x+i)] = text[i]
			s.cells[2*(y*screenWidth+x+i)+1] = 0x07
		}
	}

	put(0, 0, "codeos> ls")
	put(2, 1, "rtc\x01")
	put(0, 3, "end   ")

	exp := "codeos> ls\n  rtc\n\nend\n"
	if got := s.String(); got != exp {
		t.Fatalf("expected screen %q; got %q", exp, got)
	}
}

func TestScript(t *testing.T) {
	machine := hal.NewMachine(16 * mm.Mb)

	var typed []byte
	machine.IDT.HandleInterrupt(gate.IRQBase+gate.InterruptNumber(irq.Keyboard), func(_ *gate.Registers) {
		typed = append(typed, machine.Inb(hal.KeyboardDataPort))
		machine.PIC.EndOfInterrupt(irq.Keyboard)
	})
	machine.PIC.Enable(irq.Keyboard)

	err := script(context.Background(), machine, strings.NewReader("a\n"), 10*time.Millisecond)
	if !errors.Is(err, errQuit) {
		t.Fatalf("expected script to finish with errQuit; got %v", err)
	}

	// press and release for 'a' and enter
	exp := []byte{0x1E, 0x9E, 0x1C, 0x9C}
	if string(typed) != string(exp) {
		t.Fatalf("expected scancodes %x; got %x", exp, typed)
	}

	machine.CPU.Halt()
	if err := script(context.Background(), machine, strings.NewReader("b"), time.Millisecond); !errors.Is(err, errQuit) {
		t.Fatalf("expected script on a halted machine to stop; got %v", err)
	}
}

func TestTick(t *testing.T) {
	calls := 0
	err := tick(context.Background(), time.Millisecond, func() bool {
		calls++
		return calls < 3
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected tick to stop after 3 calls; got %d calls, err %v", calls, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tick(ctx, time.Hour, func() bool { return true }); err != nil {
		t.Fatalf("expected cancelled tick to return nil; got %v", err)
	}
}
