package bin

import "codeos/userland"

// nameLen is the size of a directory entry name.
const nameLen = 32

func init() {
	userland.Register("ls", ls)
}

// ls prints the name of every directory entry, one per line.
func ls(p *userland.Proc) uint8 {
	fd := p.Open(".")
	if fd < 0 {
		p.Print("directory open failed\n")
		return 2
	}
	defer p.Close(fd)

	buf := make([]byte, nameLen)
	for {
		n := p.Read(fd, buf)
		switch {
		case n < 0:
			p.Print("directory entry read failed\n")
			return 3
		case n == 0:
			return 0
		}

		p.Write(userland.Stdout, buf[:n])
		p.Print("\n")
	}
}
