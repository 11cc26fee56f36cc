package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-visionvoice/internal/log"
	"github.com/teslashibe/go-visionvoice/pkg/perception"
	"github.com/teslashibe/go-visionvoice/pkg/power"
)

// scriptedSensor returns readings in order, then calls done and fails.
type scriptedSensor struct {
	mu       sync.Mutex
	readings []sensorReading
	reads    int
	onRead   func()
	done     func()
}

type sensorReading struct {
	voltage float64
	err     error
}

func (s *scriptedSensor) ReadStatus() (power.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reads >= len(s.readings) {
		if s.done != nil {
			s.done()
		}
		return power.Status{}, errors.New("script exhausted")
	}
	r := s.readings[s.reads]
	s.reads++
	if s.onRead != nil {
		s.onRead()
	}
	if r.err != nil {
		return power.Status{}, r.err
	}
	return power.Status{Voltage: r.voltage, Percentage: power.Percentage(r.voltage, 6.4, 8.4)}, nil
}

func (s *scriptedSensor) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func volts(vs ...float64) []sensorReading {
	out := make([]sensorReading, len(vs))
	for i, v := range vs {
		out[i] = sensorReading{voltage: v}
	}
	return out
}

func newPowerController(t *testing.T, sensor *scriptedSensor, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	return New(testConfig(), perception.NewStub(0.5), sensor, rec, opts...), rec
}

func TestExclusive_Serializes(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	e := NewExclusive(struct{}{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.With(func(struct{}) error {
				n := inFlight.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("max concurrent holders: got %d, want 1", maxSeen.Load())
	}
}

func TestDo_ReturnsResult(t *testing.T) {
	e := NewExclusive(21)
	got, err := Do(e, func(v int) (int, error) { return v * 2, nil })
	if err != nil || got != 42 {
		t.Errorf("got %d, %v", got, err)
	}

	boom := errors.New("boom")
	if _, err := Do(e, func(int) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}

func TestAnnounce_Cooldown(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := New(testConfig(), perception.NewStub(0.5), nil, rec, WithLogger(log.Discard()), WithClock(clock.Now))
	ctx := context.Background()

	c.announce(ctx, []perception.Detection{det("person", 0.9)})
	if got := len(rec.all()); got != 1 {
		t.Fatalf("first batch: got %d phrases, want 1", got)
	}

	clock.Advance(5 * time.Second)
	c.announce(ctx, []perception.Detection{det("dog", 0.9)})
	if got := len(rec.all()); got != 1 {
		t.Errorf("batch inside cooldown must be silent, got %d phrases", got)
	}

	clock.Advance(6 * time.Second)
	c.announce(ctx, []perception.Detection{det("dog", 0.9)})
	if rec.count("Dog detected") != 1 {
		t.Errorf("batch after cooldown should be announced, got %+v", rec.all())
	}
}

func TestAnnounce_LimitsAndClasses(t *testing.T) {
	rec := &recorder{}
	c := New(testConfig(), perception.NewStub(0.5), nil, rec, WithLogger(log.Discard()))

	c.announce(context.Background(), []perception.Detection{
		det("cat", 0.9),    // not enabled
		det("person", 0.8), // announced
		det("car", 0.7),    // announced
		det("dog", 0.6),    // beyond max_detections
	})

	got := rec.all()
	want := []string{"Attention! Person detected", "Caution! Car nearby"}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %q", got, want)
	}
	for i := range want {
		if got[i].text != want[i] || got[i].priority {
			t.Errorf("[%d]: got %+v, want routine %q", i, got[i], want[i])
		}
	}
}

func TestAnnounce_EmptyBatchKeepsCooldown(t *testing.T) {
	clock := newFakeClock()
	rec := &recorder{}
	c := New(testConfig(), perception.NewStub(0.5), nil, rec, WithLogger(log.Discard()), WithClock(clock.Now))

	c.announce(context.Background(), nil)
	if !c.lastBatch.IsZero() {
		t.Error("empty batch must not start the cooldown")
	}
	c.announce(context.Background(), []perception.Detection{det("person", 0.9)})
	if len(rec.all()) != 1 {
		t.Errorf("got %d phrases, want 1", len(rec.all()))
	}
}

func TestPowerLoop_CriticalOnceThenStops(t *testing.T) {
	sensor := &scriptedSensor{readings: volts(7.5, 6.6, 6.3, 6.0, 5.9)}
	var shutdowns atomic.Int32
	c, rec := newPowerController(t, sensor, WithHostShutdown(func(context.Context) error {
		shutdowns.Add(1)
		return nil
	}))

	done := make(chan struct{})
	go func() {
		c.powerLoop(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("power loop should end after a critical reading")
	}

	if sensor.readCount() != 3 {
		t.Errorf("reads: got %d, want 3 (no reads after critical)", sensor.readCount())
	}
	if rec.priorities() != 1 {
		t.Errorf("critical alerts: got %d, want 1", rec.priorities())
	}
	events := rec.all()
	last := events[len(events)-1]
	if !last.priority || last.text != DefaultPhrases().CriticalBattery {
		t.Errorf("last phrase: got %+v", last)
	}
	if shutdowns.Load() != 1 {
		t.Errorf("host shutdowns: got %d, want 1", shutdowns.Load())
	}
}

func TestPowerLoop_NoAutoShutdown(t *testing.T) {
	sensor := &scriptedSensor{readings: volts(6.0)}
	var shutdowns atomic.Int32
	rec := &recorder{}
	cfg := testConfig()
	cfg.Power.AutoShutdown = false
	c := New(cfg, perception.NewStub(0.5), sensor, rec, WithLogger(log.Discard()),
		WithHostShutdown(func(context.Context) error {
			shutdowns.Add(1)
			return nil
		}))

	c.powerLoop(context.Background())

	if shutdowns.Load() != 0 {
		t.Error("host must not be powered off when auto_shutdown is disabled")
	}
	if rec.priorities() != 1 {
		t.Errorf("critical alerts: got %d, want 1", rec.priorities())
	}
}

func TestPowerLoop_WarningRateLimited(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readings := make([]float64, 20)
	for i := range readings {
		readings[i] = 6.6
	}
	sensor := &scriptedSensor{
		readings: volts(readings...),
		onRead:   func() { clock.Advance(time.Minute) },
		done:     cancel,
	}
	c, rec := newPowerController(t, sensor, WithClock(clock.Now))

	c.powerLoop(ctx)

	// Readings at minutes 1..20 with a 5 minute repeat: warnings at 1, 6, 11, 16.
	if got := rec.count(DefaultPhrases().LowBattery); got != 4 {
		t.Errorf("warnings: got %d, want 4", got)
	}
	if rec.priorities() != 0 {
		t.Errorf("no critical alert expected, got %d", rec.priorities())
	}
}

func TestPowerLoop_ReadErrorsContinue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sensor := &scriptedSensor{
		readings: []sensorReading{
			{err: errors.New("nack")},
			{err: errors.New("nack")},
			{voltage: 6.7},
		},
		done: cancel,
	}
	c, rec := newPowerController(t, sensor)

	c.powerLoop(ctx)

	if rec.count(DefaultPhrases().LowBattery) != 1 {
		t.Errorf("expected one warning after read errors, got %+v", rec.all())
	}
}

func TestPowerLoop_CancelMidWait(t *testing.T) {
	cfg := testConfig()
	cfg.Power.CheckInterval = time.Hour
	sensor := &scriptedSensor{}
	c := New(cfg, perception.NewStub(0.5), sensor, &recorder{}, WithLogger(log.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.powerLoop(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("power loop must stop promptly when cancelled")
	}
	if sensor.readCount() != 0 {
		t.Error("no read expected")
	}
}

func TestReleaseMemory(t *testing.T) {
	cfg := testConfig()
	cfg.Optimization.ForceGCInterval = 2
	c := New(cfg, perception.NewStub(0.5), nil, &recorder{}, WithLogger(log.Discard()))

	want := map[int]bool{1: false, 2: true, 3: false, 4: true}
	for c.cycles = 1; c.cycles <= 4; c.cycles++ {
		if got := c.releaseMemory(); got != want[c.cycles] {
			t.Errorf("cycle %d: released=%v, want %v", c.cycles, got, want[c.cycles])
		}
	}

	c.cfg.Optimization.ForceGCInterval = 0
	for c.cycles = 1; c.cycles <= 4; c.cycles++ {
		if c.releaseMemory() {
			t.Errorf("cycle %d: released with force_gc_interval disabled", c.cycles)
		}
	}
}

func TestSleep(t *testing.T) {
	if !sleep(context.Background(), time.Millisecond) {
		t.Error("sleep should complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Error("sleep should abort on cancelled context")
	}
	if sleep(ctx, 0) {
		t.Error("zero sleep on cancelled context should report false")
	}
}
