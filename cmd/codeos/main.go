// Command codeos boots the kernel on an emulated PC and attaches it to the
// host terminal. Keys typed on the host are translated to scancodes and
// delivered through the keyboard interrupt; the hardware text frame is
// rendered back to the terminal.
//
// When standard input is not a terminal, its contents are typed into the
// kernel and the final screen is printed once the input is exhausted and
// the machine has been idle for the -settle duration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"codeos/kernel/fs"
	"codeos/kernel/hal"
	"codeos/kernel/irq"
	"codeos/kernel/kmain"
	"codeos/kernel/mm"
	"codeos/multiboot"
	"codeos/userland"
	"codeos/userland/bin"
)

var (
	fsFlag     = flag.String("fs", "", "boot from this file system image instead of the bundled one")
	shellFlag  = flag.String("shell", kmain.DefaultShell, "program spawned on idle terminals")
	rtcFlag    = flag.Int("rtc", 0, "initial RTC frequency in Hz (power of two, 2-1024)")
	pitFlag    = flag.Int("pit", kmain.DefaultPITFrequency, "timer interrupt rate in Hz")
	memFlag    = flag.Uint("mem", 64, "physical memory in MiB")
	settleFlag = flag.Duration("settle", time.Second, "idle time before exiting in scripted mode")
	fpsFlag    = flag.Int("fps", 30, "screen refresh rate in interactive mode")
)

var errQuit = errors.New("quit")

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	bootID := uuid.NewString()
	logger := log.WithField("boot", bootID)

	img, err := loadImage()
	if err != nil {
		logger.Fatal(err)
	}

	machine := newMachine(img, bootID)
	user := userland.NewMachine(machine.CPU, machine.MMU)
	k := kmain.New(machine, user)
	user.Attach(k)

	if err := k.Boot(); err != nil {
		logger.Fatalf("boot failed: %v", err)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	logger.WithFields(log.Fields{
		"memory":      machine.Memory.Size() / mm.Mb,
		"shell":       k.Config().Shell,
		"interactive": interactive,
	}).Info("kernel booted")

	err = run(machine, k, interactive)
	halted := machine.CPU.Halted()

	machine.CPU.Halt()
	user.Wait()

	if !interactive {
		fmt.Print(finalScreen(machine).String())
	}
	if err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		logger.Fatal(err)
	}
	if halted {
		logger.Warn("kernel halted the machine")
		os.Exit(1)
	}
}

// loadImage returns the file system image named by -fs or an image with the
// bundled programs and files.
func loadImage() ([]byte, error) {
	if *fsFlag != "" {
		return os.ReadFile(*fsFlag)
	}

	b := fs.NewBuilder()
	if err := bin.Populate(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// newMachine builds a PC with the file system image loaded right above the
// user frames and the boot information describing it.
func newMachine(img []byte, bootID string) *hal.Machine {
	memSize := uint32(*memFlag) * mm.Mb
	modStart := uint32(kmain.MinMemorySize)
	modEnd := modStart + uint32(len(img))
	if need := (modEnd + mm.Mb - 1) &^ (mm.Mb - 1); memSize < need {
		memSize = need
	}

	machine := hal.NewMachine(memSize)
	if err := machine.Memory.Write(modStart, img); err != nil {
		log.WithField("boot", bootID).Fatalf("loading file system image: %v", err)
	}

	cmdLine := []string{
		"boot=" + bootID,
		"shell=" + *shellFlag,
		fmt.Sprintf("pit=%d", *pitFlag),
		fmt.Sprintf("mem=%d", memSize/mm.Mb),
	}
	if *rtcFlag != 0 {
		cmdLine = append(cmdLine, fmt.Sprintf("rtc=%d", *rtcFlag))
	}

	multiboot.SetInfo(new(multiboot.Builder).
		SetCmdLine(strings.Join(cmdLine, " ")).
		SetBootLoaderName("codeos host loader").
		SetMemoryInfo(640, memSize/mm.Kb-1024).
		AddModule(multiboot.Module{Start: modStart, End: modEnd, Name: "fs.img"}).
		Bytes())

	return machine
}

// run drives the machine until the user quits, the scripted input has been
// consumed or the machine halts.
func run(machine *hal.Machine, k *kmain.Kernel, interactive bool) error {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return k.RTC().Run(ctx, func() bool { return machine.RaiseIRQ(irq.RTC) })
	})

	g.Go(func() error {
		return tick(ctx, time.Second/time.Duration(k.Config().PITFrequency), func() bool {
			return machine.RaiseIRQ(irq.Timer)
		})
	})

	g.Go(func() error {
		select {
		case <-machine.CPU.Done():
			return errQuit
		case <-ctx.Done():
			return nil
		}
	})

	if interactive {
		con, err := openConsole()
		if err != nil {
			return err
		}
		defer con.Close()

		g.Go(func() error { return con.pump(ctx, machine) })
		g.Go(func() error { return con.render(ctx, machine, k, *fpsFlag) })
	} else {
		g.Go(func() error { return script(ctx, machine, os.Stdin, *settleFlag) })
	}

	return g.Wait()
}

// tick calls fn every period until ctx is done or fn returns false.
func tick(ctx context.Context, period time.Duration, fn func() bool) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !fn() {
				return nil
			}
		}
	}
}
