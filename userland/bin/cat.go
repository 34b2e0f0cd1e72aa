package bin

import "codeos/userland"

const catChunk = 1024

func init() {
	userland.Register("cat", cat)
}

// cat copies the file named by its argument to the terminal.
func cat(p *userland.Proc) uint8 {
	name, res := p.GetArgs(nameLen + 1)
	if res != 0 {
		p.Print("could not read arguments\n")
		return 3
	}

	fd := p.Open(name)
	if fd < 0 {
		p.Print("file open failed\n")
		return 2
	}
	defer p.Close(fd)

	buf := make([]byte, catChunk)
	for {
		n := p.Read(fd, buf)
		switch {
		case n < 0:
			p.Print("file read failed\n")
			return 3
		case n == 0:
			return 0
		}

		if p.Write(userland.Stdout, buf[:n]) < 0 {
			return 3
		}
	}
}
