package tts

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
)

// Command runs the speech worker once per utterance.
type Command struct {
	cfg *Config
}

// NewCommand creates a process-backed Synthesizer.
func NewCommand(opts ...Option) *Command {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &Command{cfg: cfg}
}

// Args returns the full argument list used for text.
func (c *Command) Args(text string) []string {
	args := append([]string{}, c.cfg.Args...)
	return append(args,
		"--model", c.cfg.ModelPath,
		"--sample-rate", strconv.Itoa(c.cfg.SampleRate),
		"--text", text,
	)
}

// Say launches the worker and waits for it to exit.
// Stdin and stdout are discarded; stderr is kept for diagnostics.
func (c *Command) Say(ctx context.Context, text string) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	stderr := &tailBuffer{limit: c.cfg.StderrLimit}
	cmd := exec.CommandContext(ctx, c.cfg.Command, c.Args(text)...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &LaunchError{Command: c.cfg.Command, Err: err}
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return err
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if t.limit > 0 && len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

var _ Synthesizer = (*Command)(nil)
