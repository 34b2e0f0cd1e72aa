package bin

import (
	"codeos/kernel/mm"
	"codeos/kernel/syscall"
	"codeos/userland"
)

func init() {
	userland.Register("syserr", syserr)
}

type errCheck struct {
	name string
	call func(p *userland.Proc) int32
}

var errChecks = []errCheck{
	{"read bad fd", func(p *userland.Proc) int32 { return p.Read(7, make([]byte, 4)) }},
	{"read negative fd", func(p *userland.Proc) int32 { return p.Read(-1, make([]byte, 4)) }},
	{"write stdin", func(p *userland.Proc) int32 { return p.Write(userland.Stdin, []byte("x")) }},
	{"close stdin", func(p *userland.Proc) int32 { return p.Close(userland.Stdin) }},
	{"close stdout", func(p *userland.Proc) int32 { return p.Close(userland.Stdout) }},
	{"close unused", func(p *userland.Proc) int32 { return p.Close(5) }},
	{"close out of range", func(p *userland.Proc) int32 { return p.Close(8) }},
	{"open empty name", func(p *userland.Proc) int32 { return p.Open("") }},
	{"open missing file", func(p *userland.Proc) int32 { return p.Open("no such file") }},
	{"execute missing program", func(p *userland.Proc) int32 { return p.Execute("no-such-program") }},
	{"getargs without argument", func(p *userland.Proc) int32 { _, res := p.GetArgs(32); return res }},
	{"vidmap null", func(p *userland.Proc) int32 { return p.Syscall(syscall.Vidmap, 0, 0, 0) }},
	{"vidmap kernel address", func(p *userland.Proc) int32 { return p.Syscall(syscall.Vidmap, mm.KernelBase, 0, 0) }},
	{"read kernel buffer", func(p *userland.Proc) int32 { return p.Syscall(syscall.Read, userland.Stdin, mm.KernelBase, 4) }},
	{"unknown syscall", func(p *userland.Proc) int32 { return p.Syscall(syscall.Number(42), 0, 0, 0) }},
}

// syserr issues system calls that must fail and returns the number of calls
// that did not.
func syserr(p *userland.Proc) uint8 {
	var failed uint8
	for _, check := range errChecks {
		if res := check.call(p); res != -1 {
			p.Printf("FAIL %s: got %d\n", check.name, res)
			failed++
			continue
		}
		p.Printf("PASS %s\n", check.name)
	}
	return failed
}
