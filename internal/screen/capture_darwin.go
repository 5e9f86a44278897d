//go:build darwin

package screen

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

type darwinBackend struct{}

func platformBackend() backend { return darwinBackend{} }

func (darwinBackend) captureRaw(ctx context.Context, path string) error {
	// -x: no sound, -t jpg: JPEG format, -m: main display only
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "jpg", "-m", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("screen: screencapture: %w: %s", err, stderr.String())
	}
	return nil
}
