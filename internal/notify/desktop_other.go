//go:build !linux && !darwin

package notify

import (
	"errors"
	"runtime"
)

func desktopCommand(string, string) (string, []string, error) {
	return "", nil, errors.New("desktop notifications not supported on " + runtime.GOOS)
}
