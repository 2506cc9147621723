package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/smart-irrigation/internal/config"
	"github.com/i474232898/smart-irrigation/internal/pump"
)

// jobTimeout bounds a single device evaluation.
const jobTimeout = 30 * time.Second

// AutoEvaluator runs one automatic pump evaluation. *pump.Controller
// satisfies it.
type AutoEvaluator interface {
	EvaluateAuto(ctx context.Context, deviceID, location string) (pump.AutoResult, error)
}

// Scheduler periodically evaluates the configured devices.
type Scheduler struct {
	scheduler *gocron.Scheduler
	evaluator AutoEvaluator
	devices   []config.AutoDevice
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(devices []config.AutoDevice, interval time.Duration, evaluator AutoEvaluator, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		evaluator: evaluator,
		devices:   devices,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.devices) == 0 {
		s.logger.Info("scheduler: no devices configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "devices", len(s.devices), "interval_minutes", minutes)
	return nil
}

// RunOnce evaluates every device concurrently and waits for all of them.
// Failures are logged and do not stop other devices.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.logger.Debug("scheduler: running auto evaluation")

	var wg sync.WaitGroup
	for _, dev := range s.devices {
		dev := dev
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()

			res, err := s.evaluator.EvaluateAuto(ctx, dev.ID, dev.Location)
			switch {
			case errors.Is(err, pump.ErrNoSensorData):
				s.logger.Warn("scheduler: skipped device without readings", "device_id", dev.ID)
			case err != nil:
				s.logger.Error("scheduler: auto evaluation failed", "device_id", dev.ID, "error", err)
			default:
				s.logger.Debug("scheduler: device evaluated", "device_id", dev.ID, "status", res.Action)
			}
		}()
	}
	wg.Wait()

	s.logger.Debug("scheduler: completed auto evaluation")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
