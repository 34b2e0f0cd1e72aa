package syscall

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"codeos/device/rtc"
	"codeos/kernel"
	"codeos/kernel/fs"
	"codeos/kernel/gate"
	"codeos/kernel/mm"
	"codeos/kernel/mm/pmm"
	"codeos/kernel/mm/vmm"
	"codeos/kernel/proc"
	"codeos/kernel/terminal"
)

const (
	// scratch is a user address used for syscall arguments.
	scratch = mm.ProgramLoadAddr
	// outBuf is a user address used for syscall results.
	outBuf = mm.ProgramLoadAddr + 0x1000
)

var bigFile = bytes.Repeat([]byte("0123456789"), 500)

type fakeLoader struct {
	commands []string
	status   int32
	err      *kernel.Error
	halted   []int32
}

func (l *fakeLoader) Execute(_ *proc.PCB, command string) (int32, *kernel.Error) {
	l.commands = append(l.commands, command)
	return l.status, l.err
}

func (l *fakeLoader) Halt(_ *proc.PCB, status int32) {
	l.halted = append(l.halted, status)
}

type testEnv struct {
	as       *vmm.AddressSpace
	terms    *terminal.Manager
	clock    *rtc.RTC
	loader   *fakeLoader
	d        *Dispatcher
	p        *proc.PCB
	suspends []<-chan struct{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := pmm.New(64 * mm.Mb)
	as := vmm.New(mem)
	if err := as.Init(); err != nil {
		t.Fatal(err)
	}
	if err := as.RemapUserWindow(0); err != nil {
		t.Fatal(err)
	}

	b := fs.NewBuilder()
	b.AddDevice("rtc", fs.TypeRTC)
	b.AddFile("frame0.txt", []byte("><(((('>"))
	b.AddFile("big.txt", bigFile)
	img, err := fs.NewImage(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		as:     as,
		terms:  terminal.NewManager(as),
		clock:  rtc.New(),
		loader: &fakeLoader{},
	}
	if err := env.terms.Init(); err != nil {
		t.Fatal(err)
	}

	env.d = NewDispatcher(as, img, env.terms, env.clock, env.loader, func(_ *proc.PCB, wake <-chan struct{}) {
		env.suspends = append(env.suspends, wake)
	})
	env.p = &proc.PCB{PID: 0, ParentPID: proc.NoParent}
	env.d.BindTerminal(env.p)
	return env
}

func (env *testEnv) sys(num Number, args ...uint32) int32 {
	regs := &gate.Registers{EAX: uint32(num)}
	for i, arg := range args {
		switch i {
		case 0:
			regs.EBX = arg
		case 1:
			regs.ECX = arg
		case 2:
			regs.EDX = arg
		}
	}

	env.d.Dispatch(env.p, regs)
	return int32(regs.EAX)
}

func (env *testEnv) putString(t *testing.T, addr uint32, s string) uint32 {
	t.Helper()
	if err := env.as.WriteVirtual(addr, append([]byte(s), 0), vmm.AccessUser); err != nil {
		t.Fatal(err)
	}
	return addr
}

func (env *testEnv) userBytes(t *testing.T, addr uint32, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if err := env.as.ReadVirtual(addr, buf, vmm.AccessUser); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestOpen(t *testing.T) {
	env := newTestEnv(t)

	specs := []struct {
		name  string
		expFd int32
	}{
		{"", -1},
		{"missing.txt", -1},
		{strings.Repeat("x", fs.NameLen+8), -1},
		{"frame0.txt", 2},
		{".", 3},
		{"rtc", 4},
		{"big.txt", 5},
		{"big.txt", 6},
		{"big.txt", 7},
		{"frame0.txt", -1},
	}

	env.clock.SetFrequency(512)
	for specIndex, spec := range specs {
		if got := env.sys(Open, env.putString(t, scratch, spec.name)); got != spec.expFd {
			t.Errorf("[spec %d] expected open(%q) to return %d; got %d", specIndex, spec.name, spec.expFd, got)
		}
	}

	if got := env.sys(Open, 0); got != -1 {
		t.Errorf("expected open(NULL) to fail; got %d", got)
	}

	expOps := map[int]proc.FileOperations{
		2: env.d.regular,
		3: env.d.directory,
		4: env.d.rtc,
	}
	for fd, ops := range expOps {
		desc := env.p.Files[fd]
		if !desc.Used || desc.Ops != ops || desc.Position != 0 {
			t.Errorf("expected fd %d to be bound to %T; got %+v", fd, ops, desc)
		}
	}

	if got := env.clock.Frequency(); got != rtc.DefaultFrequency {
		t.Errorf("expected opening the rtc to reset its frequency to %d; got %d", rtc.DefaultFrequency, got)
	}
}

func TestClose(t *testing.T) {
	env := newTestEnv(t)

	for _, fd := range []int32{-1, 0, 1, 2, 7, 8} {
		if got := env.sys(Close, uint32(fd)); got != -1 {
			t.Errorf("expected close(%d) to fail; got %d", fd, got)
		}
	}

	fd := env.sys(Open, env.putString(t, scratch, "frame0.txt"))
	if got := env.sys(Close, uint32(fd)); got != 0 {
		t.Fatalf("expected close(%d) to succeed; got %d", fd, got)
	}
	if env.p.Files[fd].Used {
		t.Fatal("expected closed descriptor to be released")
	}
	if got := env.sys(Close, uint32(fd)); got != -1 {
		t.Fatalf("expected second close(%d) to fail; got %d", fd, got)
	}

	if !env.p.Files[proc.Stdin].Used || !env.p.Files[proc.Stdout].Used {
		t.Fatal("expected terminal descriptors to remain bound")
	}
}

func TestReadRegularFile(t *testing.T) {
	env := newTestEnv(t)
	fd := uint32(env.sys(Open, env.putString(t, scratch, "big.txt")))

	var got []byte
	for {
		n := env.sys(Read, fd, outBuf, 4096)
		if n < 0 {
			t.Fatalf("unexpected read failure")
		}
		if n == 0 {
			break
		}
		got = append(got, env.userBytes(t, outBuf, int(n))...)
	}

	if !bytes.Equal(got, bigFile) {
		t.Fatalf("expected to read back %d bytes of file contents; got %d", len(bigFile), len(got))
	}

	if pos := env.p.Files[fd].Position; pos != int64(len(bigFile)) {
		t.Fatalf("expected file position %d; got %d", len(bigFile), pos)
	}

	if n := env.sys(Write, fd, outBuf, 4); n != -1 {
		t.Fatalf("expected write to a regular file to fail; got %d", n)
	}
}

func TestReadWriteValidation(t *testing.T) {
	env := newTestEnv(t)
	fd := uint32(env.sys(Open, env.putString(t, scratch, "frame0.txt")))

	specs := []struct {
		num       Number
		fd, buf   uint32
		n         int32
		expResult int32
	}{
		{Read, 8, outBuf, 4, -1},
		{Read, uint32(0xFFFFFFFF), outBuf, 4, -1},
		{Read, 3, outBuf, 4, -1},
		{Read, fd, 0, 4, -1},
		{Read, fd, outBuf, -1, -1},
		{Read, fd, mm.VideoMemory, 4, -1},
		{Read, fd, mm.UserWindowEnd - 2, 4, -1},
		{Read, proc.Stdout, outBuf, 4, -1},
		{Write, proc.Stdin, outBuf, 4, -1},
		{Write, 5, outBuf, 4, -1},
		{Read, fd, outBuf, 0, 0},
		{Read, fd, outBuf, 3, 3},
	}

	for specIndex, spec := range specs {
		if got := env.sys(spec.num, spec.fd, spec.buf, uint32(spec.n)); got != spec.expResult {
			t.Errorf("[spec %d] expected %s(%d, 0x%x, %d) to return %d; got %d", specIndex, spec.num, int32(spec.fd), spec.buf, spec.n, spec.expResult, got)
		}
	}

	if got := string(env.userBytes(t, outBuf, 3)); got != "><(" {
		t.Fatalf("expected read to copy file contents into the user buffer; got %q", got)
	}
}

func TestTerminalDescriptors(t *testing.T) {
	env := newTestEnv(t)

	env.putString(t, scratch, "hello\x00world")
	if n := env.sys(Write, proc.Stdout, scratch, 11); n != 11 {
		t.Fatalf("expected terminal write to return 11; got %d", n)
	}

	cons := env.terms.Terminal(0).Console()
	var line []byte
	for x := uint32(1); x <= 10; x++ {
		ch, _ := cons.Read(x, 1)
		line = append(line, ch)
	}
	if exp := "helloworld"; string(line) != exp {
		t.Fatalf("expected NUL bytes to be skipped; got %q", line)
	}

	env.terms.Suspend = func(*proc.PCB, <-chan struct{}) {
		for _, c := range []byte("ls\n") {
			env.terms.Character(c)
		}
	}
	if n := env.sys(Read, proc.Stdin, outBuf, 64); n != 3 {
		t.Fatalf("expected terminal read to return 3; got %d", n)
	}
	if got := string(env.userBytes(t, outBuf, 3)); got != "ls\n" {
		t.Fatalf("expected user buffer to hold the typed line; got %q", got)
	}
}

func TestDirectoryRead(t *testing.T) {
	env := newTestEnv(t)
	fd := uint32(env.sys(Open, env.putString(t, scratch, ".")))

	var names []string
	for {
		n := env.sys(Read, fd, outBuf, fs.NameLen)
		if n <= 0 {
			break
		}
		names = append(names, string(env.userBytes(t, outBuf, int(n))))
	}

	if exp := []string{".", "rtc", "frame0.txt", "big.txt"}; strings.Join(names, ",") != strings.Join(exp, ",") {
		t.Fatalf("expected directory listing %v; got %v", exp, names)
	}

	fd = uint32(env.sys(Open, env.putString(t, scratch, ".")))
	env.sys(Read, fd, outBuf, 1)
	if n := env.sys(Read, fd, outBuf, 4); n != 3 {
		t.Fatalf("expected short directory read to return 3; got %d", n)
	}

	if n := env.sys(Write, fd, outBuf, 4); n != -1 {
		t.Fatalf("expected directory write to fail; got %d", n)
	}
}

func TestRTCDescriptor(t *testing.T) {
	env := newTestEnv(t)
	fd := uint32(env.sys(Open, env.putString(t, scratch, "rtc")))

	var freq [4]byte
	binary.LittleEndian.PutUint32(freq[:], 512)
	env.as.WriteVirtual(scratch, freq[:], vmm.AccessUser)

	if n := env.sys(Write, fd, scratch, 4); n != 0 {
		t.Fatalf("expected rtc write to succeed; got %d", n)
	}
	if got := env.clock.Frequency(); got != 512 {
		t.Fatalf("expected frequency 512; got %d", got)
	}

	if n := env.sys(Write, fd, scratch, 2); n != -1 {
		t.Fatalf("expected short rtc write to fail; got %d", n)
	}

	binary.LittleEndian.PutUint32(freq[:], 1000)
	env.as.WriteVirtual(scratch, freq[:], vmm.AccessUser)
	if n := env.sys(Write, fd, scratch, 4); n != -1 {
		t.Fatalf("expected non power of two frequency to fail; got %d", n)
	}

	tick := env.clock.NextTick()
	if n := env.sys(Read, fd, outBuf, 4); n != 0 {
		t.Fatalf("expected rtc read to return 0; got %d", n)
	}
	if len(env.suspends) != 1 || env.suspends[0] != tick {
		t.Fatal("expected rtc read to suspend on the next tick")
	}

	if n := env.sys(Close, fd); n != 0 {
		t.Fatalf("expected rtc close to succeed; got %d", n)
	}
}

func TestGetArgs(t *testing.T) {
	env := newTestEnv(t)

	if got := env.sys(GetArgs, outBuf, 64); got != -1 {
		t.Fatalf("expected getargs without an argument to fail; got %d", got)
	}

	env.p.Arg = "averyverylongargument"
	specs := []struct {
		buf       uint32
		n         int32
		expResult int32
	}{
		{outBuf, 4, -1},
		{outBuf, int32(len(env.p.Arg)), -1},
		{outBuf, -5, -1},
		{0, 64, -1},
		{mm.VideoMemory, 64, -1},
		{outBuf, int32(len(env.p.Arg)) + 1, 0},
		{outBuf, 64, 0},
	}

	for specIndex, spec := range specs {
		if got := env.sys(GetArgs, spec.buf, uint32(spec.n)); got != spec.expResult {
			t.Errorf("[spec %d] expected getargs(0x%x, %d) to return %d; got %d", specIndex, spec.buf, spec.n, spec.expResult, got)
		}
	}

	if got := env.userBytes(t, outBuf, len(env.p.Arg)+1); string(got) != env.p.Arg+"\x00" {
		t.Fatalf("expected user buffer to hold the argument; got %q", got)
	}
}

func TestVidmap(t *testing.T) {
	env := newTestEnv(t)

	for _, ptr := range []uint32{0, mm.VideoMemory, mm.UserWindowEnd - 2, mm.UserWindowEnd} {
		if got := env.sys(Vidmap, ptr); got != -1 {
			t.Errorf("expected vidmap(0x%x) to fail; got %d", ptr, got)
		}
	}
	if env.p.Vidmapped {
		t.Fatal("expected failed vidmap calls to leave the process unmapped")
	}

	if got := env.sys(Vidmap, outBuf); got != 0 {
		t.Fatalf("expected vidmap to succeed; got %d", got)
	}

	addr, _ := env.as.ReadUint32(outBuf, vmm.AccessUser)
	if addr != mm.UserVideoAddr {
		t.Fatalf("expected vidmap to store 0x%x; got 0x%x", mm.UserVideoAddr, addr)
	}
	if !env.p.Vidmapped {
		t.Fatal("expected process to be marked as vidmapped")
	}

	phys, err := env.as.Translate(addr, vmm.AccessUser|vmm.AccessWrite)
	if err != nil || phys != mm.VideoMemory {
		t.Fatalf("expected vidmap page to map video memory; got 0x%x, %v", phys, err)
	}

	env.p.TerminalID = 2
	env.sys(Vidmap, outBuf)
	shadow, _ := vmm.ShadowFrame(2)
	if phys, _ = env.as.Translate(addr, vmm.AccessUser); phys != shadow.Address() {
		t.Fatalf("expected background vidmap to map the shadow buffer 0x%x; got 0x%x", shadow.Address(), phys)
	}
}

func TestExecuteAndHalt(t *testing.T) {
	env := newTestEnv(t)

	if got := env.sys(Execute, 0); got != -1 {
		t.Fatalf("expected execute(NULL) to fail; got %d", got)
	}

	env.loader.status = 42
	if got := env.sys(Execute, env.putString(t, scratch, "shell")); got != 42 {
		t.Fatalf("expected execute to return the child status; got %d", got)
	}

	env.loader.err = &kernel.Error{Module: "test", Message: "no such program"}
	if got := env.sys(Execute, env.putString(t, scratch, "cat frame0.txt")); got != -1 {
		t.Fatalf("expected failed execute to return -1; got %d", got)
	}

	env.putString(t, scratch, strings.Repeat("x", MaxCommandLen+1))
	if got := env.sys(Execute, scratch); got != -1 {
		t.Fatalf("expected an unterminated command to fail; got %d", got)
	}

	if exp := []string{"shell", "cat frame0.txt"}; strings.Join(env.loader.commands, "|") != strings.Join(exp, "|") {
		t.Fatalf("expected loader commands %v; got %v", exp, env.loader.commands)
	}

	env.sys(Halt, 0x1FF)
	if len(env.loader.halted) != 1 || env.loader.halted[0] != 0xFF {
		t.Fatalf("expected halt status to be truncated to a byte; got %v", env.loader.halted)
	}
}

func TestUnsupportedCalls(t *testing.T) {
	env := newTestEnv(t)

	for _, num := range []Number{0, SetHandler, SigReturn, SigReturn + 1} {
		if got := env.sys(num, outBuf, 1); got != -1 {
			t.Errorf("expected %s to fail; got %d", num, got)
		}
	}

	if SetHandler.String() != "set_handler" || Number(99).String() != "unknown" {
		t.Fatal("unexpected Number String() output")
	}
}

func TestCloseAll(t *testing.T) {
	env := newTestEnv(t)

	env.sys(Open, env.putString(t, scratch, "rtc"))
	env.sys(Open, env.putString(t, scratch, "big.txt"))
	env.clock.SetFrequency(256)

	env.d.CloseAll(env.p)
	for fd, desc := range env.p.Files {
		if desc.Used {
			t.Errorf("expected fd %d to be cleared", fd)
		}
	}
}
