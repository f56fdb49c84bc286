package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"resalewatch/metrics"
	"resalewatch/models"
	"resalewatch/repository"
	"resalewatch/scraper"
	"resalewatch/services"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrSweepInProgress is returned when a trigger fires while a sweep is running
var ErrSweepInProgress = errors.New("sweep already in progress")

// Sweep triggers
const (
	TriggerStartup = "startup"
	TriggerCron    = "cron"
	TriggerStatus  = "status"
	TriggerManual  = "manual"
	TriggerCheck   = "check"
)

// SweepRecorder persists finished sweeps
type SweepRecorder interface {
	RecordSweep(ctx context.Context, report *models.SweepReport) error
}

// Options configures the checker's schedule
type Options struct {
	SweepSchedule  string
	StatusSchedule string
	RunOnStart     bool
	Location       *time.Location
	Retry          *scraper.RetryPolicy
}

// ResaleChecker sweeps every configured event in order and feeds each
// result through the alert state machine. Only one sweep runs at a time.
type ResaleChecker struct {
	cron    *cron.Cron
	events  []models.EventConfig
	check   scraper.CheckFunc
	alerts  *services.AlertService
	queue   *TaskQueue
	metrics *metrics.Metrics
	status  services.Notifier
	history SweepRecorder
	opts    Options
	logger  *logrus.Logger
	now     func() time.Time

	running atomic.Bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.RWMutex
	last *models.SweepReport
}

func NewResaleChecker(events []models.EventConfig, check scraper.CheckFunc, alerts *services.AlertService, queue *TaskQueue, m *metrics.Metrics, opts Options, logger *logrus.Logger) *ResaleChecker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Retry == nil {
		opts.Retry = scraper.DefaultRetryPolicy()
	}
	if m == nil {
		m = metrics.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ResaleChecker{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(opts.Location)),
		events:  events,
		check:   check,
		alerts:  alerts,
		queue:   queue,
		metrics: m,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// WithStatusNotifier sets the sink for the hourly status line
func (rc *ResaleChecker) WithStatusNotifier(n services.Notifier) *ResaleChecker {
	rc.status = n
	return rc
}

// WithHistory enables sweep persistence
func (rc *ResaleChecker) WithHistory(h SweepRecorder) *ResaleChecker {
	rc.history = h
	return rc
}

// Start schedules the sweep and status jobs and optionally sweeps right away
func (rc *ResaleChecker) Start() error {
	if rc.opts.SweepSchedule != "" {
		if _, err := rc.cron.AddFunc(rc.opts.SweepSchedule, func() { rc.runScheduled(TriggerCron) }); err != nil {
			return fmt.Errorf("failed to schedule sweep %q: %w", rc.opts.SweepSchedule, err)
		}
	}
	if rc.opts.StatusSchedule != "" {
		if _, err := rc.cron.AddFunc(rc.opts.StatusSchedule, rc.statusTick); err != nil {
			return fmt.Errorf("failed to schedule status %q: %w", rc.opts.StatusSchedule, err)
		}
	}

	if rc.opts.RunOnStart {
		rc.wg.Add(1)
		go func() {
			defer rc.wg.Done()
			rc.runScheduled(TriggerStartup)
		}()
	}

	rc.cron.Start()
	rc.logger.WithFields(logrus.Fields{
		"events":          len(rc.events),
		"sweep_schedule":  rc.opts.SweepSchedule,
		"status_schedule": rc.opts.StatusSchedule,
	}).Info("⏰ Resale checker scheduled")
	return nil
}

// Stop cancels any running sweep and waits for scheduled jobs to return
func (rc *ResaleChecker) Stop() {
	rc.cancel()
	<-rc.cron.Stop().Done()
	rc.wg.Wait()
	rc.logger.Info("🛑 Resale checker stopped")
}

// Events returns the configured event table
func (rc *ResaleChecker) Events() []models.EventConfig {
	out := make([]models.EventConfig, len(rc.events))
	copy(out, rc.events)
	return out
}

// Running reports whether a sweep is in progress
func (rc *ResaleChecker) Running() bool {
	return rc.running.Load()
}

// LastReport returns the most recently finished sweep, or nil
func (rc *ResaleChecker) LastReport() *models.SweepReport {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.last
}

// RunSweep performs one sweep synchronously
func (rc *ResaleChecker) RunSweep(ctx context.Context, trigger string) (*models.SweepReport, error) {
	if !rc.acquire(trigger) {
		return nil, ErrSweepInProgress
	}
	report := models.NewSweepReport(trigger)
	return report, rc.sweep(ctx, report)
}

// CheckOnce runs a single check of url under the sweep guard, so one-off
// requests never overlap a sweep. Alert state is not touched.
func (rc *ResaleChecker) CheckOnce(ctx context.Context, url, label string) (models.ExtractionResult, error) {
	if !rc.acquire(TriggerCheck) {
		return models.ExtractionResult{}, ErrSweepInProgress
	}
	defer rc.running.Store(false)
	return rc.check(ctx, url, label)
}

// StartSweep begins a sweep in the background and returns its ID
func (rc *ResaleChecker) StartSweep(trigger string) (string, error) {
	if !rc.acquire(trigger) {
		return "", ErrSweepInProgress
	}
	report := models.NewSweepReport(trigger)
	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		_ = rc.sweep(rc.baseCtx, report)
	}()
	return report.ID, nil
}

func (rc *ResaleChecker) acquire(trigger string) bool {
	if rc.running.CompareAndSwap(false, true) {
		return true
	}
	rc.metrics.SweepSkipped()
	rc.logger.WithField("trigger", trigger).Info("⏭️ Sweep already running, skipping trigger")
	return false
}

func (rc *ResaleChecker) runScheduled(trigger string) {
	if _, err := rc.RunSweep(rc.baseCtx, trigger); err != nil && !errors.Is(err, ErrSweepInProgress) {
		rc.logger.WithField("trigger", trigger).WithError(err).Warn("Sweep ended early")
	}
}

// statusTick posts the hourly status line and then sweeps
func (rc *ResaleChecker) statusTick() {
	if rc.status != nil {
		msg := fmt.Sprintf("🕰️ **%s check**", HourLabel(rc.now().In(rc.opts.Location)))
		err := rc.status.Send(rc.baseCtx, msg)
		rc.metrics.ObserveNotification("status", err)
		if err != nil {
			rc.logger.WithError(err).Warn("Failed to send status message")
		}
	}
	rc.runScheduled(TriggerStatus)
}

// sweep runs with the guard held and releases it when done
func (rc *ResaleChecker) sweep(ctx context.Context, report *models.SweepReport) (err error) {
	defer rc.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			rc.logger.WithField("sweep_id", report.ID).Errorf("💥 Sweep panicked: %v", r)
			err = fmt.Errorf("sweep panicked: %v", r)
			report.Fail(err.Error())
		}
		rc.finish(ctx, report)
	}()

	rc.logger.WithFields(logrus.Fields{
		"sweep_id": report.ID,
		"trigger":  report.Trigger,
		"events":   len(rc.events),
	}).Info("🔍 Starting sweep")

	tasks := make([]Task, 0, len(rc.events))
	for _, event := range rc.events {
		tasks = append(tasks, rc.eventTask(report, event))
	}

	failed, err := rc.queue.Run(ctx, tasks)
	if err != nil {
		report.Fail(err.Error())
		return err
	}
	report.Complete()

	rc.logger.WithFields(logrus.Fields{
		"sweep_id": report.ID,
		"failed":   failed,
		"duration": report.Duration().Round(time.Millisecond),
	}).Info("✅ Sweep finished")
	return nil
}

func (rc *ResaleChecker) eventTask(report *models.SweepReport, event models.EventConfig) Task {
	enabled := rc.alerts.Enabled(event)
	return Task{
		Name: event.Label(),
		Idle: !enabled,
		Run: func(ctx context.Context) (err error) {
			er := models.EventReport{
				URL:       event.URL,
				Label:     event.Label(),
				Outcome:   models.OutcomeError,
				CheckedAt: rc.now(),
			}
			defer func() {
				if r := recover(); r != nil {
					er.Outcome = models.OutcomeError
					er.Error = fmt.Sprintf("panic: %v", r)
					err = errors.New(er.Error)
				}
				report.Add(er)
				rc.observe(event, er)
			}()

			er = rc.checkEvent(ctx, event, enabled, er)
			if er.Outcome == models.OutcomeError {
				return errors.New(er.Error)
			}
			return nil
		},
	}
}

// checkEvent runs one event through enable window, fetch and alerting
func (rc *ResaleChecker) checkEvent(ctx context.Context, event models.EventConfig, enabled bool, er models.EventReport) models.EventReport {
	fields := logrus.Fields{"event": event.Label(), "url": event.URL}

	if !enabled {
		er.Outcome = models.OutcomeDisabled
		rc.logger.WithFields(fields).WithField("enabled_until", event.EnabledUntil).Info("⏸️ Event disabled, skipping")
		return er
	}

	outcome, err := scraper.FetchWithRetry(ctx, rc.check, event.URL, event.Label(), rc.opts.Retry, rc.logger)
	er.Attempts = outcome.Attempts
	if err != nil {
		er.Outcome = models.OutcomeError
		er.Error = err.Error()
		rc.logger.WithFields(fields).WithError(err).Error("❌ Check failed, keeping alert state")
		return er
	}

	result := outcome.Result
	er.Offers = len(result.Offers)
	er.BlockReason = result.BlockReason

	o, d, perr := rc.alerts.Process(ctx, event, result)
	er.Outcome = o
	er.Qualifying = len(d.Qualifying)
	er.TotalQuantity = d.TotalQuantity
	if perr != nil {
		er.Error = perr.Error()
	}
	return er
}

func (rc *ResaleChecker) observe(event models.EventConfig, er models.EventReport) {
	key, label := repository.NormalizeURL(event.URL), event.Label()
	rc.metrics.ObserveEvent(string(er.Outcome), er.Attempts)

	switch er.Outcome {
	case models.OutcomeAlerted, models.OutcomeSuppressed:
		rc.metrics.SetAlertState(key, label, true)
	case models.OutcomeNoMatch, models.OutcomeNoResale, models.OutcomeNotifyFailed:
		rc.metrics.SetAlertState(key, label, false)
	}
	switch er.Outcome {
	case models.OutcomeAlerted:
		rc.metrics.ObserveNotification("alert", nil)
	case models.OutcomeNotifyFailed:
		rc.metrics.ObserveNotification("alert", errors.New(er.Error))
	}

	rc.metrics.SetConsecutiveBlocks(key, label, rc.alerts.BlockStreak(event.URL))
}

func (rc *ResaleChecker) finish(ctx context.Context, report *models.SweepReport) {
	rc.metrics.ObserveSweep(report.Trigger, string(report.Status), report.Duration())

	if rc.history != nil {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := rc.history.RecordSweep(hctx, report); err != nil {
			rc.logger.WithField("sweep_id", report.ID).WithError(err).Warn("Failed to record sweep history")
		}
	}

	rc.mu.Lock()
	rc.last = report
	rc.mu.Unlock()
}

// HourLabel renders the hour like "3 pm" or "12 am"
func HourLabel(t time.Time) string {
	h := t.Hour()
	suffix := "am"
	if h >= 12 {
		suffix = "pm"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d %s", h, suffix)
}
