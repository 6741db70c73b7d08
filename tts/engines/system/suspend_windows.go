//go:build windows

package system

import (
	"errors"
	"os"
)

func suspendProcess(*os.Process) error {
	return errors.New("pause is not supported on this platform")
}

func resumeProcess(*os.Process) error {
	return errors.New("resume is not supported on this platform")
}
