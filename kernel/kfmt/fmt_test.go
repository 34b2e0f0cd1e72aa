package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintfEarlyBuffering(t *testing.T) {
	defer SetOutputSink(nil)
	SetOutputSink(nil)
	earlyPrintBuffer = ringBuffer{}

	Printf("[%s] %d programs\n", "fs", 9)
	Fprintf(nil, "via %s\n", "nil writer")
	Writer().Write([]byte("raw\n"))

	var buf bytes.Buffer
	SetOutputSink(&buf)

	exp := "[fs] 9 programs\nvia nil writer\nraw\n"
	if got := buf.String(); got != exp {
		t.Fatalf("expected early output to be flushed to the sink:\n%q\ngot:\n%q", exp, got)
	}

	buf.Reset()
	Printf("pid %d", 3)
	if got := buf.String(); got != "pid 3" {
		t.Fatalf("expected Printf to write to the sink; got %q", got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the active sink")
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "0x%08x", uint32(0xb8000))
	if exp, got := "0x000b8000", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
