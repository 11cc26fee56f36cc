package perception

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

const (
	helperEnv     = "VISIONVOICE_HELPER_PROCESS"
	helperModeEnv = "VISIONVOICE_HELPER_MODE"
)

// TestHelperProcess is not a real test. It is re-executed by the worker tests
// as a fake camera worker speaking the line protocol.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	runFakeWorker(os.Getenv(helperModeEnv))
	os.Exit(0)
}

func runFakeWorker(mode string) {
	if mode == "deaf" {
		// Never reads commands; stdin fills up.
		time.Sleep(time.Hour)
		return
	}
	in := bufio.NewScanner(os.Stdin)
	n := 0
	for in.Scan() {
		switch in.Text() {
		case CommandExit:
			if mode == "ignore-exit" {
				continue
			}
			return
		case CommandDetect:
			n++
			switch mode {
			case "empty":
				fmt.Println()
			case "garbage":
				fmt.Println("not json")
			case "error":
				fmt.Println(`{"error": "camera busy"}`)
			case "crash":
				os.Exit(3)
			case "slow-first":
				if n == 1 {
					time.Sleep(400 * time.Millisecond)
				}
				fmt.Printf(`[{"label":"call-%d","confidence":1,"bbox":{"x":0,"y":0,"width":1,"height":1}}]`+"\n", n)
			default:
				fmt.Println(`[{"label":"person","confidence":0.9,"bbox":{"x":0.1,"y":0.1,"width":0.2,"height":0.5}},` +
					`{"label":"cat","confidence":0.3,"bbox":{"x":0.5,"y":0.5,"width":0.1,"height":0.1}}]`)
			}
		}
	}
	if mode == "ignore-exit" {
		time.Sleep(time.Hour)
	}
}

func startHelper(t *testing.T, mode string, mutate func(*Config)) *Worker {
	t.Helper()
	cfg := Config{
		Command:          os.Args[0],
		Args:             []string{"-test.run=^TestHelperProcess$"},
		Env:              []string{helperEnv + "=1", helperModeEnv + "=" + mode},
		Threshold:        0.5,
		InferenceTimeout: 5 * time.Second,
		WarmupDelay:      10 * time.Millisecond,
		ShutdownTimeout:  5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	w, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		w.kill()
	})
	return w
}

func TestWorker_Detect(t *testing.T) {
	w := startHelper(t, "normal", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dets, err := w.Detect(ctx)
		if err != nil {
			t.Fatalf("Detect #%d: %v", i, err)
		}
		if len(dets) != 1 || dets[0].Label != "person" {
			t.Fatalf("Detect #%d: got %+v, want only person", i, dets)
		}
	}

	if err := w.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-w.Done():
	default:
		t.Error("Done should be closed after Shutdown")
	}
	if _, err := w.Detect(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Detect after Shutdown: got %v, want ErrClosed", err)
	}
}

func TestWorker_EmptyLine(t *testing.T) {
	w := startHelper(t, "empty", nil)

	dets, err := w.Detect(context.Background())
	if err != nil {
		t.Fatalf("empty response must not be an error: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("got %d detections, want 0", len(dets))
	}
}

func TestWorker_BadResponses(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		w := startHelper(t, "garbage", nil)
		_, err := w.Detect(context.Background())
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("got %v, want ParseError", err)
		}
	})

	t.Run("error object", func(t *testing.T) {
		w := startHelper(t, "error", nil)
		_, err := w.Detect(context.Background())
		var we *WorkerError
		if !errors.As(err, &we) {
			t.Fatalf("got %v, want WorkerError", err)
		}
	})
}

func TestWorker_TimeoutLeavesLinkUsable(t *testing.T) {
	w := startHelper(t, "slow-first", func(c *Config) {
		c.InferenceTimeout = 100 * time.Millisecond
	})
	ctx := context.Background()

	if _, err := w.Detect(ctx); !errors.Is(err, ErrTimeout) {
		t.Fatalf("first Detect: got %v, want ErrTimeout", err)
	}

	w.cfg.InferenceTimeout = 3 * time.Second
	dets, err := w.Detect(ctx)
	if err != nil {
		t.Fatalf("second Detect: %v", err)
	}
	if len(dets) != 1 || dets[0].Label != "call-2" {
		t.Errorf("second Detect must get its own answer, got %+v", dets)
	}
}

func TestWorker_Crash(t *testing.T) {
	w := startHelper(t, "crash", nil)

	if _, err := w.Detect(context.Background()); !errors.Is(err, ErrWorkerExited) {
		t.Fatalf("got %v, want ErrWorkerExited", err)
	}
}

func TestWorker_ShutdownTimeout(t *testing.T) {
	w := startHelper(t, "ignore-exit", func(c *Config) {
		c.ShutdownTimeout = 200 * time.Millisecond
	})

	start := time.Now()
	err := w.Shutdown(context.Background())
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("got %v, want ErrShutdownTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v, should be bounded by its timeout", elapsed)
	}
}

func TestWorker_StalledStdinIsBounded(t *testing.T) {
	w := startHelper(t, "deaf", func(c *Config) {
		c.InferenceTimeout = time.Microsecond
		c.ShutdownTimeout = 200 * time.Millisecond
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		// Enough commands to fill any default pipe buffer.
		for i := 0; i < 50000; i++ {
			if _, err := w.Detect(ctx); !errors.Is(err, ErrTimeout) {
				done <- fmt.Errorf("Detect #%d: got %v, want ErrTimeout", i, err)
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Detect blocked on a worker that does not read stdin")
	}
	if w.writing == nil {
		t.Fatal("expected a command write to be left in flight")
	}

	// Detect must keep returning promptly while the write is stuck.
	w.cfg.InferenceTimeout = 50 * time.Millisecond
	start := time.Now()
	if _, err := w.Detect(ctx); !errors.Is(err, ErrTimeout) {
		t.Errorf("got %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Detect took %v with a stalled pipe", elapsed)
	}

	shutdown := make(chan error, 1)
	go func() { shutdown <- w.Shutdown(ctx) }()
	select {
	case err := <-shutdown:
		if !errors.Is(err, ErrShutdownTimeout) {
			t.Errorf("got %v, want ErrShutdownTimeout", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown not bounded by ShutdownTimeout with a stalled pipe")
	}

	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Error("worker should be killed after a failed shutdown")
	}
}

func TestStart_BadCommand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Command = "/nonexistent/camera-worker"
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Fatal("expected spawn error")
	}
}
