package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resalewatch/config"
	"resalewatch/models"

	"github.com/sirupsen/logrus"
)

// AlertStore holds the per-event "already alerted" flag
type AlertStore interface {
	IsAlerted(eventURL string) bool
	SetAlerted(eventURL string, alerted bool)
}

// AlertRecorder keeps an audit trail of delivered alerts
type AlertRecorder interface {
	RecordAlert(ctx context.Context, n models.Notification, message string) error
}

// Decision is the pure filtering verdict for one event and one result
type Decision struct {
	Qualifying    []models.Offer
	TotalQuantity int
	// Matches is true when the result satisfies the event's filters
	Matches bool
	// Notify is true when Matches and the event is not already alerted
	Notify bool
}

// Evaluate applies the event's price cap and minimum quantity to a result
func Evaluate(event models.EventConfig, result models.ExtractionResult, alerted bool) Decision {
	qualifying, total := event.Qualifying(result.Offers)
	matches := result.HasResaleSignal && len(qualifying) > 0 && total >= event.MinQuantity
	return Decision{
		Qualifying:    qualifying,
		TotalQuantity: total,
		Matches:       matches,
		Notify:        matches && !alerted,
	}
}

// AlertService is the per-event alert state machine: it turns a conclusive
// extraction result into at most one notification per qualifying streak.
type AlertService struct {
	store          AlertStore
	notifier       Notifier
	recorder       AlertRecorder
	logger         *logrus.Logger
	location       *time.Location
	currencySymbol string
	now            func() time.Time

	mu           sync.Mutex
	blockStreaks map[string]int
}

// NewAlertService creates the state machine. loc is the reference time
// zone for enable windows and timestamps.
func NewAlertService(store AlertStore, notifier Notifier, loc *time.Location, logger *logrus.Logger) *AlertService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AlertService{
		store:          store,
		notifier:       notifier,
		logger:         logger,
		location:       loc,
		currencySymbol: "£",
		now:            time.Now,
		blockStreaks:   make(map[string]int),
	}
}

// WithRecorder enables the alert audit trail
func (s *AlertService) WithRecorder(r AlertRecorder) *AlertService {
	s.recorder = r
	return s
}

// WithClock overrides the clock (tests)
func (s *AlertService) WithClock(now func() time.Time) *AlertService {
	s.now = now
	return s
}

// WithCurrencySymbol sets the symbol used for the price cap line
func (s *AlertService) WithCurrencySymbol(symbol string) *AlertService {
	s.currencySymbol = symbol
	return s
}

// Enabled reports whether the event is inside its enable window today.
// A malformed window fails open with a warning.
func (s *AlertService) Enabled(event models.EventConfig) bool {
	enabled, malformed := config.EventEnabled(event.EnabledUntil, s.now(), s.location)
	if malformed {
		s.logger.WithFields(logrus.Fields{
			"event":         event.Label(),
			"enabled_until": event.EnabledUntil,
		}).Warn("⚠️ enabled_until is invalid, treating event as enabled")
	}
	return enabled
}

// Process applies one conclusive (non-blocked) result to the event's alert
// state, sending a notification on the transition into the qualifying state.
func (s *AlertService) Process(ctx context.Context, event models.EventConfig, result models.ExtractionResult) (models.Outcome, Decision, error) {
	fields := logrus.Fields{"event": event.Label(), "url": event.URL}

	if result.Blocked {
		streak := s.markBlocked(event.URL)
		s.logger.WithFields(fields).WithField("block_streak", streak).Warn("Result was blocked, leaving alert state untouched")
		return models.OutcomeBlocked, Decision{}, nil
	}
	s.clearBlocked(event.URL)

	alerted := s.store.IsAlerted(event.URL)
	d := Evaluate(event, result, alerted)
	fields["qualifying_tickets"] = d.TotalQuantity

	if !d.Matches {
		s.store.SetAlerted(event.URL, false)
		if result.HasResaleSignal {
			s.logger.WithFields(fields).Info("Resale found but no matches")
			return models.OutcomeNoMatch, d, nil
		}
		s.logger.WithFields(fields).Info("No resale tickets")
		return models.OutcomeNoResale, d, nil
	}

	if !d.Notify {
		s.logger.WithFields(fields).Info("Still matching filters (already alerted)")
		return models.OutcomeSuppressed, d, nil
	}

	n := models.Notification{
		Event:         event,
		Qualifying:    d.Qualifying,
		TotalQuantity: d.TotalQuantity,
		FoundAt:       s.now(),
	}
	message := n.Format(s.currencySymbol, s.location)

	// the state flips only once the message is out, so a failed send is retried next sweep
	if err := s.notifier.Send(ctx, message); err != nil {
		s.logger.WithFields(fields).WithError(err).Error("❌ Failed to send alert")
		return models.OutcomeNotifyFailed, d, fmt.Errorf("failed to notify for %s: %w", event.Label(), err)
	}
	s.store.SetAlerted(event.URL, true)
	s.logger.WithFields(fields).Info("🚨 Alert sent")

	if s.recorder != nil {
		if err := s.recorder.RecordAlert(ctx, n, message); err != nil {
			s.logger.WithFields(fields).WithError(err).Warn("Failed to record alert history")
		}
	}

	return models.OutcomeAlerted, d, nil
}

// BlockStreak returns how many sweeps in a row ended blocked for eventURL.
// It is informational only and never changes alert state.
func (s *AlertService) BlockStreak(eventURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockStreaks[eventURL]
}

func (s *AlertService) markBlocked(eventURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockStreaks[eventURL]++
	return s.blockStreaks[eventURL]
}

func (s *AlertService) clearBlocked(eventURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blockStreaks, eventURL)
}
