package bin

import (
	"strings"

	"codeos/userland"
)

const (
	shellPrompt = "codeos> "

	// lineLen matches the terminal line buffer.
	lineLen = 128
)

func init() {
	userland.Register("shell", shell)
}

// shell reads commands from the terminal and runs each one until it reads
// "exit". Commands that fail to start are ignored.
func shell(p *userland.Proc) uint8 {
	buf := make([]byte, lineLen)
	for {
		p.Print(shellPrompt)

		n := p.Read(userland.Stdin, buf)
		if n < 0 {
			p.Print("read from keyboard failed\n")
			return 1
		}

		command := strings.TrimSpace(string(buf[:n]))
		switch command {
		case "":
			continue
		case "exit":
			return 0
		}

		p.Execute(command)
	}
}
