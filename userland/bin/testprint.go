package bin

import "codeos/userland"

func init() {
	userland.Register("testprint", testprint)
}

func testprint(p *userland.Proc) uint8 {
	p.Print("Hello, if this sentence is printed, the terminal write path works.\n")
	return 0
}
