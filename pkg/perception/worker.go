package perception

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/teslashibe/go-visionvoice/internal/log"
)

// maxLineBytes caps a single response line.
const maxLineBytes = 1 << 20

// Config holds worker configuration.
type Config struct {
	// Command and Args launch the worker process.
	Command string
	Args    []string

	// Dir is the working directory of the worker (empty: inherit).
	Dir string

	// Env is appended to the controller's environment.
	Env []string

	// Threshold is the minimum confidence kept (0-1).
	Threshold float32

	// InferenceTimeout bounds each Detect, command write included.
	InferenceTimeout time.Duration

	// WarmupDelay is slept after spawn so the camera and model can initialize.
	WarmupDelay time.Duration

	// ShutdownTimeout bounds Shutdown: the exit write and the process exit.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns defaults matching the IMX500 camera worker.
func DefaultConfig() Config {
	return Config{
		Command:          "python3",
		Args:             []string{"scripts/camera_worker.py"},
		Threshold:        0.5,
		InferenceTimeout: 5 * time.Second,
		WarmupDelay:      3 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Worker owns the detection worker process and both of its pipe ends.
// It is not safe for concurrent use.
type Worker struct {
	cfg    Config
	logger *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	exited  chan struct{}
	waitErr error

	// pending counts requests whose responses were abandoned on timeout.
	// Their lines are discarded before the next response is accepted.
	pending int
	closed  bool

	// writing holds the result of a command write that outlived its
	// deadline. Only one write is ever in flight.
	writing chan error
}

// Start spawns the worker with piped stdin/stdout, then waits WarmupDelay.
// Spawn or pipe failures are returned; the caller treats them as fatal.
func Start(ctx context.Context, cfg Config) (*Worker, error) {
	logger := log.Or(cfg.Logger).With("component", "perception")

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Stderr = &stderrLogger{logger: logger}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("perception: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("perception: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("perception: start %s: %w", cfg.Command, err)
	}

	w := &Worker{
		cfg:    cfg,
		logger: logger,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 16),
		exited: make(chan struct{}),
	}
	go w.readLoop(stdout)

	logger.Info("worker started", "pid", cmd.Process.Pid, "warmup", cfg.WarmupDelay)

	if cfg.WarmupDelay > 0 {
		t := time.NewTimer(cfg.WarmupDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			w.kill()
			return nil, ctx.Err()
		case <-w.exited:
			return nil, fmt.Errorf("perception: worker exited during warm-up: %w", w.exitErr())
		}
	}
	return w, nil
}

// readLoop forwards stdout lines until EOF, then reaps the process.
// Wait must not run before all pipe reads are done.
func (w *Worker) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		w.lines <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		w.logger.Warn("worker output read failed", "error", err)
	}
	close(w.lines)
	w.waitErr = w.cmd.Wait()
	close(w.exited)
}

// Detect sends one detect command and waits up to InferenceTimeout for the
// answer. The budget covers the write too: a worker that stops reading
// stdin yields ErrTimeout instead of blocking. On timeout the link stays
// usable: the late answer is skipped when it eventually arrives.
func (w *Worker) Detect(ctx context.Context) ([]Detection, error) {
	if w.closed {
		return nil, ErrClosed
	}

	timer := time.NewTimer(w.cfg.InferenceTimeout)
	defer timer.Stop()

	sent, err := w.writeLine(ctx, CommandDetect, timer.C)
	if err != nil {
		if sent {
			// The command may still reach the worker and be answered.
			w.pending++
		}
		switch {
		case errors.Is(err, errWriteTimeout):
			return nil, fmt.Errorf("%w after %v: worker not reading commands", ErrTimeout, w.cfg.InferenceTimeout)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			// The read end only goes away with the process.
			return nil, fmt.Errorf("%w: send detect: %w", ErrWorkerExited, err)
		}
	}

	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return nil, ErrWorkerExited
			}
			if w.pending > 0 {
				w.pending--
				w.logger.Debug("discarded late response", "still_pending", w.pending)
				continue
			}
			dets, err := DecodeResponse(line)
			if err != nil {
				return nil, err
			}
			return Filter(dets, w.cfg.Threshold), nil

		case <-timer.C:
			w.pending++
			return nil, fmt.Errorf("%w after %v", ErrTimeout, w.cfg.InferenceTimeout)

		case <-ctx.Done():
			w.pending++
			return nil, ctx.Err()
		}
	}
}

// Shutdown sends the exit command (ignoring write failures) and waits up to
// ShutdownTimeout for the process to end, the write included. An
// unresponsive worker is killed and ErrShutdownTimeout returned.
func (w *Worker) Shutdown(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true

	timer := time.NewTimer(w.cfg.ShutdownTimeout)
	defer timer.Stop()

	if _, err := w.writeLine(ctx, CommandExit, timer.C); errors.Is(err, errWriteTimeout) || ctx.Err() != nil {
		return w.abandon()
	}
	_ = w.stdin.Close()

	lines := w.lines
	for {
		select {
		case _, ok := <-lines:
			// Keep the reader unblocked so it can reach EOF.
			if !ok {
				lines = nil
			}
			continue
		case <-w.exited:
			w.logger.Info("worker stopped", "exit", w.exitErr())
			return nil
		case <-timer.C:
		case <-ctx.Done():
		}
		break
	}
	return w.abandon()
}

// abandon kills the worker after a failed shutdown. Killing it breaks the
// pipe under any write still blocked on stdin.
func (w *Worker) abandon() error {
	w.kill()
	go w.stdin.Close()
	w.logger.Warn("worker killed", "timeout", w.cfg.ShutdownTimeout)
	return fmt.Errorf("%w (%v)", ErrShutdownTimeout, w.cfg.ShutdownTimeout)
}

// errWriteTimeout reports a command write that did not finish before its
// deadline.
var errWriteTimeout = errors.New("perception: command write timed out")

// writeLine writes one command line, giving up when deadline fires or ctx
// ends. The write runs in its own goroutine; if it outlives the deadline it
// is remembered and waited on before the next command, so commands never
// interleave. sent reports whether this command's write was started.
func (w *Worker) writeLine(ctx context.Context, command string, deadline <-chan time.Time) (sent bool, err error) {
	if w.writing != nil {
		select {
		case err := <-w.writing:
			w.writing = nil
			if err != nil {
				return false, err
			}
		case <-deadline:
			return false, errWriteTimeout
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := io.WriteString(w.stdin, command+"\n")
		done <- err
	}()

	select {
	case err := <-done:
		return true, err
	case <-deadline:
		w.writing = done
		return true, errWriteTimeout
	case <-ctx.Done():
		w.writing = done
		return true, ctx.Err()
	}
}

// Done is closed once the worker process has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.exited
}

func (w *Worker) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
}

func (w *Worker) exitErr() error {
	select {
	case <-w.exited:
		return w.waitErr
	default:
		return nil
	}
}

// stderrLogger forwards worker diagnostics line by line.
type stderrLogger struct {
	logger *slog.Logger
	buf    bytes.Buffer
}

func (s *stderrLogger) Write(p []byte) (int, error) {
	s.buf.Write(p)
	for {
		line, err := s.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it for the next write.
			s.buf.Reset()
			s.buf.WriteString(line)
			break
		}
		if line = strings.TrimSpace(line); line != "" {
			s.logger.Debug("worker", "stderr", line)
		}
	}
	return len(p), nil
}

var _ Detector = (*Worker)(nil)
