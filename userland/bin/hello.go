package bin

import (
	"strings"

	"codeos/userland"
)

func init() {
	userland.Register("hello", hello)
}

func hello(p *userland.Proc) uint8 {
	p.Print("Hi, what's your name? ")

	buf := make([]byte, lineLen)
	n := p.Read(userland.Stdin, buf)
	if n < 0 {
		return 1
	}

	p.Printf("Hello, %s\n", strings.TrimRight(string(buf[:n]), "\n"))
	return 0
}
