package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"resalewatch/models"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrNoEvents is returned when the event table is empty
var ErrNoEvents = errors.New("no events configured")

var enabledUntilRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type eventsFile struct {
	Events []models.EventConfig `yaml:"events"`
}

// LoadEvents reads and validates the YAML event table at path.
// Events without min_quantity get defaultMinQuantity.
func LoadEvents(path string, defaultMinQuantity int, logger *logrus.Logger) ([]models.EventConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file %s: %w", path, err)
	}
	return ParseEvents(data, defaultMinQuantity, logger)
}

// ParseEvents decodes and validates an event table
func ParseEvents(data []byte, defaultMinQuantity int, logger *logrus.Logger) ([]models.EventConfig, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var file eventsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	if len(file.Events) == 0 {
		return nil, ErrNoEvents
	}

	seen := make(map[string]int, len(file.Events))
	events := make([]models.EventConfig, 0, len(file.Events))
	for i, e := range file.Events {
		if e.URL == "" {
			return nil, fmt.Errorf("event %d: url is required", i+1)
		}
		u, err := url.Parse(e.URL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("event %d: url %q must be absolute", i+1, e.URL)
		}
		if e.MaxPrice <= 0 {
			return nil, fmt.Errorf("event %d (%s): max_price must be greater than 0", i+1, e.Label())
		}
		if e.MinQuantity == 0 {
			e.MinQuantity = defaultMinQuantity
		}
		if e.MinQuantity < 1 {
			return nil, fmt.Errorf("event %d (%s): min_quantity must be at least 1", i+1, e.Label())
		}
		if prev, dup := seen[e.URL]; dup {
			return nil, fmt.Errorf("event %d: duplicate url %s (also event %d)", i+1, e.URL, prev)
		}
		seen[e.URL] = i + 1

		if e.EnabledUntil != "" && !enabledUntilRegex.MatchString(e.EnabledUntil) {
			logger.WithFields(logrus.Fields{
				"event":         e.Label(),
				"enabled_until": e.EnabledUntil,
			}).Warn("⚠️ enabled_until is not YYYY-MM-DD, event stays enabled")
		}

		events = append(events, e)
	}

	return events, nil
}

// EventEnabled reports whether an event with the given enabled_until is
// active on now's calendar date in loc. An empty value is always enabled; a
// malformed value is enabled and flagged.
func EventEnabled(enabledUntil string, now time.Time, loc *time.Location) (enabled, malformed bool) {
	if enabledUntil == "" {
		return true, false
	}
	if !enabledUntilRegex.MatchString(enabledUntil) {
		return true, true
	}
	if loc == nil {
		loc = time.UTC
	}
	// YYYY-MM-DD orders lexicographically
	today := now.In(loc).Format("2006-01-02")
	return today <= enabledUntil, false
}
