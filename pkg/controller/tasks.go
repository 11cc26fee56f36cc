package controller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-visionvoice/pkg/perception"
	"github.com/teslashibe/go-visionvoice/pkg/power"
)

// runDetection greets, then runs the detection loop, converting a panic
// into an error so that Run sees the loop end.
func (c *Controller) runDetection(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	c.speech.Speak(ctx, c.phrases.Started)
	return c.detectionLoop(ctx)
}

// detectionLoop polls the detector every scan interval. It returns nil when
// ctx is cancelled and an error when the worker is gone for good.
func (c *Controller) detectionLoop(ctx context.Context) error {
	cfg := c.cfg.Detection
	for {
		if !sleep(ctx, cfg.ScanInterval) {
			return nil
		}
		c.cycles++
		c.releaseMemory()

		dets, err := Do(c.perception, func(d perception.Detector) ([]perception.Detection, error) {
			return d.Detect(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, perception.ErrWorkerExited) || errors.Is(err, perception.ErrClosed) {
				return err
			}
			c.logger.Error("detection failed", "error", err, "backoff", cfg.ErrorBackoff)
			if !sleep(ctx, cfg.ErrorBackoff) {
				return nil
			}
			continue
		}

		c.announce(ctx, dets)
	}
}

// announce speaks one batch of detections, honouring the cooldown.
func (c *Controller) announce(ctx context.Context, dets []perception.Detection) {
	if len(dets) == 0 {
		return
	}
	cfg := c.cfg.Detection
	batch := uuid.NewString()
	c.logger.Info("objects detected", "count", len(dets), "batch", batch)

	if !c.lastBatch.IsZero() && c.now().Sub(c.lastBatch) < cfg.CooldownPeriod {
		c.logger.Debug("cooldown active, batch not announced", "batch", batch)
		return
	}

	for i, d := range dets {
		if i >= cfg.MaxDetections {
			break
		}
		if !slices.Contains(cfg.EnabledClasses, d.Label) {
			continue
		}

		msg := c.phrases.Detection(d.Label, cfg.AnnouncePerson, cfg.AnnounceVehicle)
		c.logger.Debug("announcing", "batch", batch, "label", d.Label, "confidence", d.Confidence)
		c.speech.Speak(ctx, msg)

		if !sleep(ctx, cfg.AnnouncementPause) {
			break
		}
	}
	c.lastBatch = c.now()
}

// releaseMemory returns freed heap to the OS every ForceGCInterval cycles
// and reports whether it did.
func (c *Controller) releaseMemory() bool {
	n := c.cfg.Optimization.ForceGCInterval
	if n <= 0 || c.cycles%n != 0 {
		return false
	}
	debug.FreeOSMemory()
	c.logger.Info("released memory", "cycle", c.cycles)
	return true
}

// powerLoop polls the battery every check interval. It returns after a
// critical reading has been handled, or when ctx is cancelled.
func (c *Controller) powerLoop(ctx context.Context) {
	cfg := c.cfg.Power
	var lastWarning time.Time

	for {
		if !sleep(ctx, cfg.CheckInterval) {
			return
		}

		st, err := Do(c.sensor, func(r PowerReader) (power.Status, error) {
			return r.ReadStatus()
		})
		if err != nil {
			c.logger.Error("battery read failed", "error", err)
			continue
		}

		c.logger.Info("battery",
			"voltage", fmt.Sprintf("%.2f", st.Voltage),
			"current_ma", fmt.Sprintf("%.0f", st.Current),
			"power_mw", fmt.Sprintf("%.1f", st.Power),
			"percent", fmt.Sprintf("%.0f", st.Percentage),
			"charging", st.Charging,
		)

		if st.Voltage < cfg.ShutdownVoltage {
			c.logger.Error("battery critical", "voltage", st.Voltage, "threshold", cfg.ShutdownVoltage)
			c.speech.SpeakPriority(ctx, c.phrases.CriticalBattery)
			if !sleep(ctx, cfg.ShutdownGrace) {
				return
			}
			if cfg.AutoShutdown && c.hostShutdown != nil {
				if err := c.hostShutdown(ctx); err != nil {
					c.logger.Error("host shutdown failed", "error", err)
				}
			}
			return
		}

		if st.Voltage < cfg.WarningVoltage {
			now := c.now()
			if lastWarning.IsZero() || now.Sub(lastWarning) >= cfg.WarningRepeatInterval {
				c.logger.Warn("battery low", "voltage", st.Voltage, "threshold", cfg.WarningVoltage)
				c.speech.Speak(ctx, c.phrases.LowBattery)
				lastWarning = c.now()
			}
		}
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
