package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const eventsYAML = `
events:
  - url: https://www.ticketmaster.co.uk/oasis/event/1
    artist: Oasis
    date: Sat 5 Jul 2025
    location: Wembley Stadium
    max_price: 250
    min_quantity: 4
  - url: https://www.ticketmaster.co.uk/other/event/2
    artist: Other
    date: Sat 18 Jul 2026
    location: Co-op Live
    max_price: 2000
    enabled_until: "2026-07-18"
`

func TestParseEvents(t *testing.T) {
	events, err := ParseEvents([]byte(eventsYAML), 2, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].MinQuantity != 4 {
		t.Errorf("explicit min_quantity lost: %d", events[0].MinQuantity)
	}
	if events[1].MinQuantity != 2 {
		t.Errorf("expected default min_quantity 2, got %d", events[1].MinQuantity)
	}
	if events[1].EnabledUntil != "2026-07-18" || events[1].DateLabel != "Sat 18 Jul 2026" {
		t.Errorf("unexpected event %+v", events[1])
	}
}

func TestParseEventsValidation(t *testing.T) {
	cases := map[string]string{
		"missing url":   "events:\n  - artist: A\n    max_price: 10\n",
		"relative url":  "events:\n  - url: /event/1\n    max_price: 10\n",
		"zero price":    "events:\n  - url: https://example.com/e\n    max_price: 0\n",
		"bad quantity":  "events:\n  - url: https://example.com/e\n    max_price: 10\n    min_quantity: -1\n",
		"duplicate url": "events:\n  - url: https://example.com/e\n    max_price: 10\n  - url: https://example.com/e\n    max_price: 20\n",
		"not yaml":      "events: [",
	}
	for name, doc := range cases {
		if _, err := ParseEvents([]byte(doc), 2, quietLogger()); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseEventsEmpty(t *testing.T) {
	_, err := ParseEvents([]byte("events: []\n"), 2, quietLogger())
	if !errors.Is(err, ErrNoEvents) {
		t.Errorf("expected ErrNoEvents, got %v", err)
	}
}

func TestParseEventsKeepsMalformedWindow(t *testing.T) {
	doc := "events:\n  - url: https://example.com/e\n    max_price: 10\n    enabled_until: 18/07/2026\n"
	events, err := ParseEvents([]byte(doc), 2, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if events[0].EnabledUntil != "18/07/2026" {
		t.Errorf("expected malformed window kept, got %q", events[0].EnabledUntil)
	}
}

func TestLoadEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	if err := os.WriteFile(path, []byte(eventsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	events, err := LoadEvents(path, 2, quietLogger())
	if err != nil || len(events) != 2 {
		t.Fatalf("LoadEvents = %d events, %v", len(events), err)
	}

	if _, err := LoadEvents(filepath.Join(t.TempDir(), "missing.yaml"), 2, quietLogger()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEventEnabled(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatal(err)
	}

	// 23:30 UTC on the 18th is already the 19th in London (BST)
	lateUTC := time.Date(2026, 7, 18, 23, 30, 0, 0, time.UTC)

	cases := []struct {
		name          string
		until         string
		now           time.Time
		wantEnabled   bool
		wantMalformed bool
	}{
		{"no window", "", lateUTC, true, false},
		{"day after in UK", "2026-07-18", time.Date(2026, 7, 19, 9, 0, 0, 0, london), false, false},
		{"last day in UK", "2026-07-18", time.Date(2026, 7, 18, 22, 59, 0, 0, london), true, false},
		{"crosses midnight in UK only", "2026-07-18", lateUTC, false, false},
		{"future", "2026-12-31", lateUTC, true, false},
		{"malformed", "18/07/2026", lateUTC, true, true},
		{"partial date", "2026-7-18", lateUTC, true, true},
	}

	for _, c := range cases {
		enabled, malformed := EventEnabled(c.until, c.now, london)
		if enabled != c.wantEnabled || malformed != c.wantMalformed {
			t.Errorf("%s: got enabled=%v malformed=%v, expected %v/%v", c.name, enabled, malformed, c.wantEnabled, c.wantMalformed)
		}
	}
}

func TestParseDurations(t *testing.T) {
	got, err := ParseDurations("5s, 15s")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []time.Duration{5 * time.Second, 15 * time.Second}) {
		t.Errorf("ParseDurations = %v", got)
	}
	if _, err := ParseDurations("5s,soon"); err == nil {
		t.Error("expected error for bad duration")
	}
	if _, err := ParseDurations("-5s"); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MIN_TICKETS", "3")
	t.Setenv("RETRY_DELAYS", "1s,2s,4s")
	t.Setenv("RENDERER", "HTTP")
	t.Setenv("STATUS_CHANNEL_ID", "")
	t.Setenv("CHANNEL_ID", "123")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinTickets != 3 || cfg.Renderer != RendererHTTP || len(cfg.RetryDelays) != 3 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.StatusChannel() != "123" {
		t.Errorf("StatusChannel = %q, expected fallback to CHANNEL_ID", cfg.StatusChannel())
	}
	if cfg.BetweenEventsDelay != 2*time.Second || cfg.BetweenEventsJitter != 3*time.Second {
		t.Errorf("unexpected inter-event delay defaults %v/%v", cfg.BetweenEventsDelay, cfg.BetweenEventsJitter)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"renderer":     {"RENDERER", "carrier-pigeon"},
		"min tickets":  {"MIN_TICKETS", "0"},
		"retry delays": {"RETRY_DELAYS", "soon"},
		"timezone":     {"TIMEZONE", "Mars/Olympus"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := FromEnv(); err == nil {
				t.Errorf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
