package kmain

import (
	"strconv"

	"codeos/kernel"
	"codeos/kernel/mm"
	"codeos/kernel/proc"
)

const (
	// DefaultShell is the program started on every idle terminal.
	DefaultShell = "shell"

	// DefaultPITFrequency is the timer interrupt rate in Hz.
	DefaultPITFrequency = 100

	// MinMemorySize is the physical memory needed to back the user window
	// of every pid slot.
	MinMemorySize = mm.UserFrameBase + proc.MaxProcesses*mm.LargePageSize
)

var (
	errBadConfigValue = &kernel.Error{Module: "kmain", Message: "malformed boot command line value", Kind: kernel.InvalidArgument}
)

// Config holds the kernel settings taken from the boot command line.
type Config struct {
	// Shell is the program spawned on idle terminals (shell=).
	Shell string

	// RTCFrequency overrides the periodic interrupt rate programmed at
	// boot when non-zero (rtc=).
	RTCFrequency int32

	// PITFrequency is the timer interrupt rate (pit=).
	PITFrequency int

	// MemorySize caps the physical memory the kernel may use, in bytes
	// (mem=, in MiB). Zero means all installed memory. Boot fails when it
	// exceeds the installed memory.
	MemorySize uint32

	// BootID identifies the boot session in the loader's logs (boot=).
	BootID string
}

// ParseConfig builds a Config from the key-value pairs of the boot command
// line. Unknown keys are ignored.
func ParseConfig(cmdLine map[string]string) (Config, *kernel.Error) {
	cfg := Config{
		Shell:        DefaultShell,
		PITFrequency: DefaultPITFrequency,
	}

	for k, v := range cmdLine {
		switch k {
		case "shell":
			if v == "" || v == k {
				return cfg, errBadConfigValue
			}
			cfg.Shell = v
		case "rtc":
			hz, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return cfg, errBadConfigValue
			}
			cfg.RTCFrequency = int32(hz)
		case "pit":
			hz, err := strconv.Atoi(v)
			if err != nil || hz <= 0 {
				return cfg, errBadConfigValue
			}
			cfg.PITFrequency = hz
		case "boot":
			if v == k {
				return cfg, errBadConfigValue
			}
			cfg.BootID = v
		case "mem":
			mb, err := strconv.ParseUint(v, 10, 32)
			if err != nil || mb > 4095 {
				return cfg, errBadConfigValue
			}
			cfg.MemorySize = uint32(mb) * mm.Mb
		}
	}

	return cfg, nil
}
