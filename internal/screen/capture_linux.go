//go:build linux

package screen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

type linuxBackend struct{}

func platformBackend() backend { return linuxBackend{} }

func (linuxBackend) captureRaw(ctx context.Context, path string) error {
	// Try gnome-screenshot first, fall back to scrot
	var cmd *exec.Cmd
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		cmd = exec.CommandContext(ctx, "gnome-screenshot", "-f", path)
	} else if _, err := exec.LookPath("scrot"); err == nil {
		cmd = exec.CommandContext(ctx, "scrot", "-o", path)
	} else {
		return errors.New("screen: no screenshot tool found (install gnome-screenshot or scrot)")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("screen: %s: %w: %s", cmd.Path, err, stderr.String())
	}
	return nil
}
