//go:build !windows

package system

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func suspendProcess(p *os.Process) error {
	if p == nil {
		return errors.New("no process")
	}
	return p.Signal(unix.SIGSTOP)
}

func resumeProcess(p *os.Process) error {
	if p == nil {
		return errors.New("no process")
	}
	return p.Signal(unix.SIGCONT)
}
