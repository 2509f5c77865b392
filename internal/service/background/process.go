package background

import (
	"os"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ForegroundChecker reports whether the foreground monitor is running.
type ForegroundChecker interface {
	Running() (bool, error)
}

// ProcessChecker looks the monitor up in the process table by executable name.
type ProcessChecker struct {
	// Name is the executable name without the platform extension.
	Name string

	processes func() ([]ps.Process, error)
}

// NewProcessChecker creates a checker for the named executable.
func NewProcessChecker(name string) *ProcessChecker {
	return &ProcessChecker{Name: name, processes: ps.Processes}
}

// Running scans the process table, skipping the current process.
func (p *ProcessChecker) Running() (bool, error) {
	processList, err := p.processes()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()
	want := p.Name + executableExtension()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if strings.EqualFold(process.Executable(), want) {
			return true, nil
		}
	}

	return false, nil
}

// executableExtension returns ".exe" on Windows and "" elsewhere.
func executableExtension() string {
	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		return ".exe"
	}

	return ""
}
