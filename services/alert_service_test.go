package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"resalewatch/models"
	"resalewatch/repository"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, content string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, content)
	return nil
}

type fakeRecorder struct {
	alerts []models.Notification
}

func (f *fakeRecorder) RecordAlert(_ context.Context, n models.Notification, _ string) error {
	f.alerts = append(f.alerts, n)
	return nil
}

var testEvent = models.EventConfig{
	URL:         "https://www.ticketmaster.co.uk/event/1",
	Artist:      "Oasis",
	DateLabel:   "Sat 5 Jul 2025",
	Location:    "Wembley Stadium",
	MaxPrice:    50,
	MinQuantity: 2,
}

func qualifyingResult() models.ExtractionResult {
	return models.ExtractionResult{
		HasResaleSignal: true,
		Offers: []models.Offer{
			{PriceRaw: "£45", PriceValue: 45, Quantity: 1},
			{PriceRaw: "£48", PriceValue: 48, Quantity: 2},
		},
	}
}

func newTestService(n Notifier) (*AlertService, *repository.AlertStateRepository) {
	london, _ := time.LoadLocation("Europe/London")
	store := repository.NewAlertStateRepository()
	s := NewAlertService(store, n, london, quietLogger()).
		WithClock(func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) })
	return s, store
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name        string
		result      models.ExtractionResult
		alerted     bool
		wantMatches bool
		wantNotify  bool
		wantTotal   int
	}{
		{"qualifying", qualifyingResult(), false, true, true, 3},
		{"already alerted", qualifyingResult(), true, true, false, 3},
		{"too few tickets", models.ExtractionResult{HasResaleSignal: true, Offers: []models.Offer{{PriceRaw: "£45", PriceValue: 45, Quantity: 1}}}, false, false, false, 1},
		{"too expensive", models.ExtractionResult{HasResaleSignal: true, Offers: []models.Offer{{PriceRaw: "£80", PriceValue: 80, Quantity: 4}}}, false, false, false, 0},
		{"no resale signal", models.ExtractionResult{Offers: qualifyingResult().Offers}, false, false, false, 3},
	}

	for _, c := range cases {
		d := Evaluate(testEvent, c.result, c.alerted)
		if d.Matches != c.wantMatches || d.Notify != c.wantNotify || d.TotalQuantity != c.wantTotal {
			t.Errorf("%s: got %+v", c.name, d)
		}
	}
}

func TestProcessAlertsOnce(t *testing.T) {
	n := &fakeNotifier{}
	rec := &fakeRecorder{}
	s, store := newTestService(n)
	s.WithRecorder(rec)

	outcome, d, err := s.Process(context.Background(), testEvent, qualifyingResult())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != models.OutcomeAlerted || d.TotalQuantity != 3 {
		t.Errorf("outcome=%s decision=%+v", outcome, d)
	}
	if len(n.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(n.sent))
	}
	if !strings.Contains(n.sent[0], "Matches: £45 — 1 ticket | £48 — 2 tickets") {
		t.Errorf("unexpected message:\n%s", n.sent[0])
	}
	if !strings.Contains(n.sent[0], "Time Found (UK): 01 Jul 2025, 13:00:00") {
		t.Errorf("expected UK timestamp in message:\n%s", n.sent[0])
	}
	if !store.IsAlerted(testEvent.URL) {
		t.Error("expected ALERTED state")
	}
	if len(rec.alerts) != 1 {
		t.Errorf("expected alert recorded, got %d", len(rec.alerts))
	}

	outcome, _, _ = s.Process(context.Background(), testEvent, qualifyingResult())
	if outcome != models.OutcomeSuppressed || len(n.sent) != 1 {
		t.Errorf("expected suppression, got %s with %d messages", outcome, len(n.sent))
	}
}

func TestProcessReAlertsAfterReset(t *testing.T) {
	n := &fakeNotifier{}
	s, store := newTestService(n)
	ctx := context.Background()

	s.Process(ctx, testEvent, qualifyingResult())

	outcome, _, _ := s.Process(ctx, testEvent, models.ExtractionResult{HasResaleSignal: true, Offers: []models.Offer{}})
	if outcome != models.OutcomeNoMatch {
		t.Errorf("outcome = %s, expected no_match", outcome)
	}
	if store.IsAlerted(testEvent.URL) {
		t.Error("expected state reset after a sweep without qualifying offers")
	}

	s.Process(ctx, testEvent, qualifyingResult())
	if len(n.sent) != 2 {
		t.Errorf("expected two notifications, got %d", len(n.sent))
	}
}

func TestProcessNoResaleResets(t *testing.T) {
	n := &fakeNotifier{}
	s, store := newTestService(n)
	store.SetAlerted(testEvent.URL, true)

	outcome, _, _ := s.Process(context.Background(), testEvent, models.ExtractionResult{Offers: []models.Offer{}})
	if outcome != models.OutcomeNoResale || store.IsAlerted(testEvent.URL) {
		t.Errorf("outcome=%s alerted=%v", outcome, store.IsAlerted(testEvent.URL))
	}
}

func TestProcessBlockedKeepsState(t *testing.T) {
	n := &fakeNotifier{}
	s, store := newTestService(n)
	ctx := context.Background()
	blocked := models.ExtractionResult{Blocked: true, BlockReason: "captcha", Offers: []models.Offer{}}

	store.SetAlerted(testEvent.URL, true)
	outcome, _, _ := s.Process(ctx, testEvent, blocked)
	if outcome != models.OutcomeBlocked || !store.IsAlerted(testEvent.URL) {
		t.Errorf("blocked result changed state: outcome=%s", outcome)
	}
	s.Process(ctx, testEvent, blocked)
	if s.BlockStreak(testEvent.URL) != 2 {
		t.Errorf("BlockStreak = %d, expected 2", s.BlockStreak(testEvent.URL))
	}

	store.SetAlerted(testEvent.URL, false)
	outcome, _, _ = s.Process(ctx, testEvent, qualifyingResult())
	if outcome != models.OutcomeAlerted || len(n.sent) != 1 {
		t.Errorf("expected alert after a blocked sweep, got %s", outcome)
	}
	if s.BlockStreak(testEvent.URL) != 0 {
		t.Errorf("expected block streak reset, got %d", s.BlockStreak(testEvent.URL))
	}
}

func TestProcessNotifyFailureStaysNotAlerted(t *testing.T) {
	n := &fakeNotifier{err: errors.New("discord down")}
	s, store := newTestService(n)
	ctx := context.Background()

	outcome, _, err := s.Process(ctx, testEvent, qualifyingResult())
	if outcome != models.OutcomeNotifyFailed || err == nil {
		t.Errorf("outcome=%s err=%v", outcome, err)
	}
	if store.IsAlerted(testEvent.URL) {
		t.Error("failed delivery must not mark the event alerted")
	}

	n.err = nil
	outcome, _, _ = s.Process(ctx, testEvent, qualifyingResult())
	if outcome != models.OutcomeAlerted || len(n.sent) != 1 {
		t.Errorf("expected retry on next sweep to alert, got %s", outcome)
	}
}

func TestEnabled(t *testing.T) {
	s, _ := newTestService(&fakeNotifier{})

	e := testEvent
	e.EnabledUntil = "2025-06-30"
	if s.Enabled(e) {
		t.Error("expected event past its window to be disabled")
	}
	e.EnabledUntil = "2025-07-01"
	if !s.Enabled(e) {
		t.Error("expected event on its last day to be enabled")
	}
	e.EnabledUntil = "soon"
	if !s.Enabled(e) {
		t.Error("expected malformed window to fail open")
	}
}
