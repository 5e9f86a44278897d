package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
)

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Desktop raises a native desktop notification.
type Desktop struct {
	run Runner
}

// NewDesktop uses the platform's notification command.
func NewDesktop() *Desktop { return &Desktop{run: runCommand} }

// Notify implements Notifier.
func (d *Desktop) Notify(ctx context.Context, title, message string) error {
	name, args, err := desktopCommand(title, message)
	if err != nil {
		return apperrors.Wrap(err, apperrors.NotifyFailed, "desktop")
	}
	if err := d.run(ctx, name, args...); err != nil {
		return apperrors.Wrap(err, apperrors.NotifyFailed, "desktop")
	}
	return nil
}
