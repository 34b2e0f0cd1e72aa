package bin

import "codeos/userland"

const (
	counterRate    = 8
	counterDefault = 10
)

func init() {
	userland.Register("counter", counter)
}

// counter counts from 1 to its argument (10 by default), printing one
// number per clock tick at 8 Hz.
func counter(p *userland.Proc) uint8 {
	limit := intArg(p, counterDefault)

	fd := p.Open("rtc")
	if fd < 0 {
		p.Print("rtc open failed\n")
		return 2
	}
	defer p.Close(fd)

	if setRate(p, fd, counterRate) < 0 {
		return 2
	}

	var buf [4]byte
	for i := 1; i <= limit; i++ {
		if p.Read(fd, buf[:]) < 0 {
			return 3
		}
		p.Printf("%d\n", i)
	}
	return 0
}
