package kmain

import (
	"bytes"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"codeos/device/keyboard"
	"codeos/kernel"
	"codeos/kernel/fs"
	"codeos/kernel/hal"
	"codeos/kernel/mm"
	"codeos/kernel/proc"
	"codeos/multiboot"
	"codeos/userland"
	_ "codeos/userland/bin"
)

const (
	testMemory  = 64 * mm.Mb
	moduleStart = 2 * mm.Mb
	testTimeout = 5 * time.Second
)

// testKernel is the kernel booted by the running test. Test programs only
// touch it while their stream owns the CPU.
var testKernel *Kernel

// event is sent by test programs to the test goroutine.
type event struct {
	name   string
	status int32
	pids   []int
	count  int
}

var events = make(chan event, 16)

func argNumber(p *userland.Proc) int {
	arg, res := p.GetArgs(proc.ArgLen)
	if res != 0 {
		return 0
	}
	n, _ := strconv.Atoi(arg)
	return n
}

// idle parks the stream on terminal input forever.
func idle(p *userland.Proc) uint8 {
	buf := make([]byte, 16)
	for {
		p.Read(userland.Stdin, buf)
	}
}

var (
	onceStarts  int32
	idleStarts  int32
	chainFailed int32
)

func init() {
	userland.Register("kt-child", func(p *userland.Proc) uint8 {
		return uint8(argNumber(p))
	})

	userland.Register("kt-chain", func(p *userland.Proc) uint8 {
		depth := argNumber(p)
		if res := p.Execute("kt-chain " + strconv.Itoa(depth+1)); res == -1 {
			atomic.StoreInt32(&chainFailed, int32(depth))
			events <- event{name: "exhausted", pids: testKernel.Processes()}
		}
		return uint8(depth)
	})

	userland.Register("kt-root", func(p *userland.Proc) uint8 {
		events <- event{name: "child", status: p.Execute("kt-child 42")}
		events <- event{name: "bad magic", status: p.Execute("badmagic")}
		events <- event{name: "missing", status: p.Execute("kt-missing")}
		events <- event{name: "long arg", status: p.Execute("kt-child " + strings.Repeat("x", proc.ArgLen))}
		events <- event{name: "directory", status: p.Execute(".")}
		events <- event{
			name:  "after",
			pids:  testKernel.Processes(),
			count: testKernel.Terminals().Terminal(0).ProcessCount,
		}
		events <- event{name: "chain", status: p.Execute("kt-chain 1"), pids: testKernel.Processes()}

		buf := make([]byte, 32)
		n := p.Read(userland.Stdin, buf)
		events <- event{name: string(buf[:n])}
		return idle(p)
	})

	userland.Register("kt-once", func(p *userland.Proc) uint8 {
		if atomic.AddInt32(&onceStarts, 1) == 1 {
			return 9
		}

		events <- event{
			name:  "respawned",
			pids:  testKernel.Processes(),
			count: testKernel.Terminals().Terminal(0).ProcessCount,
		}
		return idle(p)
	})

	userland.Register("kt-idle", func(p *userland.Proc) uint8 {
		atomic.AddInt32(&idleStarts, 1)
		events <- event{name: "started"}
		return idle(p)
	})

	userland.Register("kt-fault", func(p *userland.Proc) uint8 {
		var b [4]byte
		p.Load(0, b[:])
		return 0
	})

	for _, child := range []string{"kt-idle", "kt-fault"} {
		userland.Register("kt-parent-"+strings.TrimPrefix(child, "kt-"), parentOf(child))
	}
}

// parentOf returns a root program that executes child and idles once it
// returns.
func parentOf(child string) userland.Main {
	return func(p *userland.Proc) uint8 {
		events <- event{name: "returned", status: p.Execute(child)}
		return idle(p)
	}
}

func testImage(t *testing.T) []byte {
	t.Helper()

	b := fs.NewBuilder()
	if err := b.AddDevice("rtc", fs.TypeRTC); err != nil {
		t.Fatal(err)
	}
	for _, name := range userland.Programs() {
		if err := b.AddFile(name, userland.Image(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.AddFile("badmagic", bytes.Repeat([]byte("not an executable "), 4)); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

// bootInfo installs a boot information block describing cmdLine and a file
// system module at moduleStart of size modSize.
func bootInfo(cmdLine string, modSize uint32) {
	b := new(multiboot.Builder).
		SetCmdLine(cmdLine).
		SetBootLoaderName("codeos-test").
		SetMemoryInfo(640, testMemory/mm.Kb-1024)
	if modSize != 0 {
		b.AddModule(multiboot.Module{Start: moduleStart, End: moduleStart + modSize, Name: "fs.img"})
	}
	multiboot.SetInfo(b.Bytes())
}

type testSystem struct {
	machine *hal.Machine
	user    *userland.Machine
	k       *Kernel
}

func bootTestSystem(t *testing.T, cmdLine string) *testSystem {
	t.Helper()

	machine := hal.NewMachine(testMemory)
	img := testImage(t)
	if err := machine.Memory.Write(moduleStart, img); err != nil {
		t.Fatal(err)
	}
	bootInfo(cmdLine, uint32(len(img)))

	sys := &testSystem{machine: machine, user: userland.NewMachine(machine.CPU, machine.MMU)}
	sys.k = New(machine, sys.user)
	sys.user.Attach(sys.k)
	testKernel = sys.k

	if err := sys.k.Boot(); err != nil {
		t.Fatalf("boot failed: %v", err)
	}
	return sys
}

func (sys *testSystem) shutdown() {
	sys.machine.CPU.Halt()
	sys.user.Wait()
}

// waitStreams fails the test unless every user stream terminates.
func (sys *testSystem) waitStreams(t *testing.T) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		sys.user.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("user streams still running after the machine halted")
	}
}

func (sys *testSystem) typeString(t *testing.T, s string) {
	t.Helper()
	for i := 0; i < len(s); i++ {
		sys.pressKeys(t, keyboard.Encode(s[i]))
	}
}

func (sys *testSystem) pressKeys(t *testing.T, codes []byte) {
	t.Helper()
	for _, code := range codes {
		if !sys.machine.KeyPress(code) {
			t.Fatal("machine halted while typing")
		}
	}
}

// screen returns the characters of the hardware video frame.
func (sys *testSystem) screen(t *testing.T) string {
	t.Helper()

	var frame [4000]byte
	sys.machine.Inspect(func() {
		if err := sys.machine.Memory.Read(mm.VideoMemory, frame[:]); err != nil {
			t.Error(err)
		}
	})

	var out strings.Builder
	for i := 0; i < len(frame); i += 2 {
		out.WriteByte(frame[i])
	}
	return out.String()
}

func nextEvent(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a user program")
	}
	return event{}
}

func expectPIDs(t *testing.T, label string, got []int, exp ...int) {
	t.Helper()
	if len(got) != len(exp) {
		t.Errorf("%s: expected live pids %v; got %v", label, exp, got)
		return
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("%s: expected live pids %v; got %v", label, exp, got)
			return
		}
	}
}

func TestBootErrors(t *testing.T) {
	specs := []struct {
		cmdLine string
		memSize uint32
		module  bool
		exp     *kernel.Error
	}{
		{"shell=kt-idle", 32 * mm.Mb, true, errNotEnoughMemory},
		{"shell=kt-idle", testMemory, false, errNoFileSystem},
		{"rtc=abc", testMemory, true, errBadConfigValue},
		{"shell=kt-idle mem=32", testMemory, true, errNotEnoughMemory},
		{"shell=kt-idle mem=128", testMemory, true, errMemoryOverstated},
	}

	for specIndex, spec := range specs {
		machine := hal.NewMachine(spec.memSize)
		var modSize uint32
		if spec.module {
			img := testImage(t)
			if err := machine.Memory.Write(moduleStart, img); err != nil {
				t.Fatal(err)
			}
			modSize = uint32(len(img))
		}
		bootInfo(spec.cmdLine, modSize)

		user := userland.NewMachine(machine.CPU, machine.MMU)
		k := New(machine, user)
		user.Attach(k)
		if err := k.Boot(); err != spec.exp {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.exp, err)
		}
	}
}

func TestBootRejectsUnknownShell(t *testing.T) {
	machine := hal.NewMachine(testMemory)
	img := testImage(t)
	if err := machine.Memory.Write(moduleStart, img); err != nil {
		t.Fatal(err)
	}
	bootInfo("shell=kt-missing", uint32(len(img)))

	user := userland.NewMachine(machine.CPU, machine.MMU)
	k := New(machine, user)
	user.Attach(k)

	if err := k.Boot(); err == nil || err.Kind != kernel.NotFound {
		t.Fatalf("expected NotFound error; got %v", err)
	}
}

func TestExecuteAndHalt(t *testing.T) {
	sys := bootTestSystem(t, "shell=kt-root rtc=512")
	defer sys.shutdown()

	if got := sys.k.Config().Shell; got != "kt-root" {
		t.Errorf("expected configured shell kt-root; got %q", got)
	}
	if got := sys.k.RTC().Frequency(); got != 512 {
		t.Errorf("expected rtc frequency 512; got %d", got)
	}

	specs := []struct {
		name   string
		status int32
	}{
		{"child", 42},
		{"bad magic", -1},
		{"missing", -1},
		{"long arg", -1},
		{"directory", -1},
	}

	for specIndex, spec := range specs {
		ev := nextEvent(t)
		if ev.name != spec.name || ev.status != spec.status {
			t.Errorf("[spec %d] expected %s to return %d; got %s=%d", specIndex, spec.name, spec.status, ev.name, ev.status)
		}
	}

	ev := nextEvent(t)
	expectPIDs(t, "after failed executes", ev.pids, 0)
	if ev.count != 1 {
		t.Errorf("expected terminal 0 to own a single process; got %d", ev.count)
	}

	// kt-chain 1..7 occupy pids 1..7 so kt-chain 8 cannot start
	ev = nextEvent(t)
	if ev.name != "exhausted" {
		t.Fatalf("expected pid exhaustion event; got %q", ev.name)
	}
	expectPIDs(t, "exhausted", ev.pids, 0, 1, 2, 3, 4, 5, 6, 7)
	if got := atomic.LoadInt32(&chainFailed); got != proc.MaxProcesses-1 {
		t.Errorf("expected the chain to stop at depth %d; got %d", proc.MaxProcesses-1, got)
	}

	ev = nextEvent(t)
	if ev.name != "chain" || ev.status != 1 {
		t.Errorf("expected chain to return 1; got %s=%d", ev.name, ev.status)
	}
	expectPIDs(t, "after chain", ev.pids, 0)

	sys.typeString(t, "hi there\n")
	if ev = nextEvent(t); ev.name != "hi there\n" {
		t.Errorf("expected to read the typed line; got %q", ev.name)
	}
}

func TestRootRespawn(t *testing.T) {
	atomic.StoreInt32(&onceStarts, 0)
	sys := bootTestSystem(t, "shell=kt-once mem=40")
	defer sys.shutdown()

	if got := sys.k.Config().MemorySize; got != MinMemorySize {
		t.Errorf("expected mem=40 to cap memory at %d; got %d", MinMemorySize, got)
	}

	ev := nextEvent(t)
	if ev.name != "respawned" {
		t.Fatalf("expected respawn event; got %q", ev.name)
	}
	expectPIDs(t, "respawned", ev.pids, 0)
	if ev.count != 1 {
		t.Errorf("expected terminal 0 to own a single process; got %d", ev.count)
	}
	if got := atomic.LoadInt32(&onceStarts); got != 2 {
		t.Errorf("expected the root program to start twice; got %d", got)
	}
}

func TestSwitchToIdleTerminal(t *testing.T) {
	atomic.StoreInt32(&idleStarts, 0)
	sys := bootTestSystem(t, "shell=kt-idle")
	defer sys.shutdown()

	nextEvent(t)
	sys.typeString(t, "abc")
	sys.pressKeys(t, keyboard.SwitchSequence(1))
	nextEvent(t)

	var (
		current int
		counts  [3]int
		pids    []int
		fg      *proc.PCB
	)
	sys.machine.Inspect(func() {
		terms := sys.k.Terminals()
		current = terms.Current()
		for i := range counts {
			counts[i] = terms.Terminal(i).ProcessCount
		}
		fg = terms.Terminal(1).Foreground
		pids = sys.k.Processes()
	})

	if current != 1 {
		t.Errorf("expected terminal 1 to be selected; got %d", current)
	}
	if exp := [3]int{1, 1, 0}; counts != exp {
		t.Errorf("expected process counts %v; got %v", exp, counts)
	}
	if fg == nil || fg.TerminalID != 1 || !fg.IsRoot() {
		t.Errorf("expected a root process on terminal 1; got %+v", fg)
	}
	expectPIDs(t, "after switch", pids, 0, 1)

	// terminal 0 output was saved to its shadow buffer
	if screen := sys.screen(t); strings.Contains(screen, "abc") {
		t.Errorf("expected terminal 0 echo to leave the hardware frame")
	}

	sys.pressKeys(t, keyboard.SwitchSequence(0))
	if screen := sys.screen(t); !strings.Contains(screen, "abc") {
		t.Errorf("expected terminal 0 echo to be restored; got %q", strings.TrimSpace(screen))
	}
	if got := atomic.LoadInt32(&idleStarts); got != 2 {
		t.Errorf("expected switching back not to spawn a shell; got %d starts", got)
	}
}

func TestExceptionHaltsMachine(t *testing.T) {
	sys := bootTestSystem(t, "shell=kt-fault")

	select {
	case <-sys.machine.CPU.Done():
	case <-time.After(testTimeout):
		t.Fatal("expected the page fault to halt the machine")
	}
	sys.waitStreams(t)
}

func TestHaltWithLiveChild(t *testing.T) {
	specs := []struct {
		cmdLine string
		halt    func(*testing.T, *testSystem)
	}{
		// the child is blocked reading its terminal when the host stops
		{
			"shell=kt-parent-idle",
			func(t *testing.T, sys *testSystem) {
				if ev := nextEvent(t); ev.name != "started" {
					t.Fatalf("expected the child to start; got %q", ev.name)
				}
				sys.machine.CPU.Halt()
			},
		},
		// the child faults and the exception halts the machine
		{
			"shell=kt-parent-fault",
			func(t *testing.T, sys *testSystem) {
				select {
				case <-sys.machine.CPU.Done():
				case <-time.After(testTimeout):
					t.Fatal("expected the child's page fault to halt the machine")
				}
			},
		},
	}

	for specIndex, spec := range specs {
		sys := bootTestSystem(t, spec.cmdLine)
		spec.halt(t, sys)
		sys.waitStreams(t)

		select {
		case ev := <-events:
			t.Errorf("[spec %d] expected the parent to stay parked in execute; got event %q", specIndex, ev.name)
		default:
		}
	}
}

func TestBundledShell(t *testing.T) {
	sys := bootTestSystem(t, "")
	defer sys.shutdown()

	sys.typeString(t, "testprint\n")

	deadline := time.Now().Add(testTimeout)
	for {
		screen := sys.screen(t)
		if strings.Contains(screen, "the terminal write path works") && strings.Count(screen, "codeos> ") >= 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected testprint output followed by a new prompt; got %q", strings.TrimSpace(screen))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
