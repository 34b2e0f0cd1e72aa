package bin

import "codeos/userland"

const sigInterrupt = 2

func init() {
	userland.Register("sigtest", sigtest)
}

// sigtest checks that the signal system calls are rejected.
func sigtest(p *userland.Proc) uint8 {
	if res := p.SetHandler(sigInterrupt, userland.EntryPoint); res != -1 {
		p.Printf("set_handler returned %d\n", res)
		return 1
	}

	if res := p.SigReturn(); res != -1 {
		p.Printf("sigreturn returned %d\n", res)
		return 1
	}

	p.Print("signals not supported\n")
	return 0
}
