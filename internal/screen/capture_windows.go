//go:build windows

package screen

import (
	"context"
	"errors"
)

type windowsBackend struct{}

func platformBackend() backend { return windowsBackend{} }

func (windowsBackend) captureRaw(context.Context, string) error {
	return errors.New("screen: capture is not supported on windows")
}
