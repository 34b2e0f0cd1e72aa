package bin

import "codeos/userland"

const (
	fishRate    = 8
	fishDefault = 16

	screenWidth  = 80
	screenHeight = 25

	// fishAttr is yellow on black.
	fishAttr = 0x0E
)

var fishFrames = []string{"frame0.txt", "frame1.txt"}

func init() {
	userland.Register("fish", fish)
}

// fish animates the two fish frames directly in video memory. It draws as
// many frames as its argument asks for (16 by default).
func fish(p *userland.Proc) uint8 {
	frames := make([][]byte, len(fishFrames))
	for i, name := range fishFrames {
		if frames[i] = readFile(p, name); frames[i] == nil {
			p.Printf("could not read %s\n", name)
			return 2
		}
	}

	video, res := p.Vidmap()
	if res != 0 {
		p.Print("vidmap failed\n")
		return 2
	}

	fd := p.Open("rtc")
	if fd < 0 {
		p.Print("rtc open failed\n")
		return 2
	}
	defer p.Close(fd)
	setRate(p, fd, fishRate)

	var tick [4]byte
	count := intArg(p, fishDefault)
	for i := 0; i < count; i++ {
		drawFrame(p, video, frames[i%len(frames)])
		if p.Read(fd, tick[:]) < 0 {
			return 3
		}
	}

	return 0
}

// drawFrame copies frame to the top left corner of the screen at video.
func drawFrame(p *userland.Proc, video uint32, frame []byte) {
	var (
		row  = make([]byte, 2*screenWidth)
		x, y int
	)

	flush := func() {
		p.Store(video+uint32(2*screenWidth*y), row)
		for i := range row {
			row[i] = 0
		}
	}

	for _, c := range frame {
		if y >= screenHeight {
			return
		}

		if c == '\n' {
			flush()
			x, y = 0, y+1
			continue
		}

		if x < screenWidth {
			row[2*x], row[2*x+1] = c, fishAttr
			x++
		}
	}

	if x > 0 && y < screenHeight {
		flush()
	}
}

// readFile returns the contents of the file called name or nil.
func readFile(p *userland.Proc, name string) []byte {
	fd := p.Open(name)
	if fd < 0 {
		return nil
	}
	defer p.Close(fd)

	var (
		out []byte
		buf = make([]byte, catChunk)
	)
	for {
		n := p.Read(fd, buf)
		switch {
		case n < 0:
			return nil
		case n == 0:
			return out
		}
		out = append(out, buf[:n]...)
	}
}
