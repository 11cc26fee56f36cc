// Package host runs host-level power actions.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/teslashibe/go-visionvoice/internal/log"
)

// ErrNoCommand is returned when no shutdown command is configured.
var ErrNoCommand = errors.New("host: shutdown command required")

// Shutdown powers the host off by running a command such as
// "sudo shutdown -h now".
type Shutdown struct {
	Argv    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewShutdown creates a shutdown runner bounded by timeout.
func NewShutdown(argv []string, timeout time.Duration, logger *slog.Logger) *Shutdown {
	return &Shutdown{Argv: argv, Timeout: timeout, Logger: logger}
}

// Run executes the command and waits for it, bounded by Timeout.
func (s *Shutdown) Run(ctx context.Context) error {
	if len(s.Argv) == 0 {
		return ErrNoCommand
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	log.Or(s.Logger).Warn("powering off host", "command", s.Argv)
	out, err := exec.CommandContext(ctx, s.Argv[0], s.Argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("host: %s: %w (%s)", s.Argv[0], err, out)
	}
	return nil
}
