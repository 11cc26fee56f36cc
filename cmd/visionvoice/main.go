// visionvoice - talking object detector for a Raspberry Pi with an AI camera
// and a battery HAT. Detections are announced through a local speech worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-visionvoice/internal/config"
	"github.com/teslashibe/go-visionvoice/internal/log"
	"github.com/teslashibe/go-visionvoice/pkg/controller"
	"github.com/teslashibe/go-visionvoice/pkg/host"
	"github.com/teslashibe/go-visionvoice/pkg/perception"
	"github.com/teslashibe/go-visionvoice/pkg/power"
	"github.com/teslashibe/go-visionvoice/pkg/tts"
)

const hostShutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file (overrides VISIONVOICE_CONFIG)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	noPower := flag.Bool("no-power", false, "Disable battery monitoring")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	path := *configPath
	if path == "" {
		path = config.Path(config.DefaultPath)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	if *debug {
		cfg.System.LogLevel = "debug"
	}
	if *noPower {
		cfg.Power.Enabled = false
	}

	log.Init(cfg.System.LogLevel)
	logger := log.With("app", cfg.System.Name)
	logger.Info("starting", "config", path, "power_monitoring", cfg.Power.Enabled)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	worker, err := perception.Start(ctx, perception.Config{
		Command:          cfg.Camera.WorkerCommand,
		Args:             cfg.Camera.WorkerArgs,
		Threshold:        cfg.Camera.DetectionThreshold,
		InferenceTimeout: cfg.Camera.InferenceTimeout,
		WarmupDelay:      cfg.Camera.WarmupDelay,
		ShutdownTimeout:  cfg.Camera.ShutdownTimeout,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("start perception worker: %w", err)
	}

	var sensor controller.PowerReader
	if cfg.Power.Enabled {
		mon, err := power.Open(cfg.Power.I2CBus, cfg.Power.I2CAddress, power.Config{
			ShutdownVoltage: cfg.Power.ShutdownVoltage,
			FullVoltage:     cfg.Power.FullVoltage,
			Logger:          logger,
		})
		if err != nil {
			worker.Shutdown(context.Background())
			return fmt.Errorf("open battery monitor: %w", err)
		}
		defer mon.Close()
		sensor = mon
	}

	speech := tts.NewArbiter(tts.NewCommand(
		tts.WithCommand(cfg.TTS.WorkerCommand, cfg.TTS.WorkerArgs...),
		tts.WithModel(cfg.TTS.ModelPath),
		tts.WithSampleRate(cfg.TTS.SampleRate),
		tts.WithTimeout(cfg.TTS.SpeakTimeout),
		tts.WithLogger(logger),
	), cfg.TTS.MaxPhraseLength, logger)

	shutdown := host.NewShutdown(cfg.Power.ShutdownCommand, hostShutdownTimeout, logger)

	ctrl := controller.New(cfg, worker, sensor, speech,
		controller.WithLogger(logger),
		controller.WithHostShutdown(shutdown.Run),
	)

	err = ctrl.Run(ctx)
	logger.Info("stopped", "announcements_dropped", speech.Dropped())
	if errors.Is(err, perception.ErrShutdownTimeout) && !errors.Is(err, controller.ErrDetectionStopped) {
		logger.Warn("perception worker was killed", "error", err)
		return nil
	}
	return err
}
