package models

import (
	"time"

	"github.com/google/uuid"
)

// SweepStatus represents the status of a sweep over all events
type SweepStatus string

const (
	SweepStatusRunning   SweepStatus = "running"
	SweepStatusCompleted SweepStatus = "completed"
	SweepStatusFailed    SweepStatus = "failed"
)

// Outcome is what happened to one event during a sweep
type Outcome string

const (
	OutcomeDisabled     Outcome = "disabled"
	OutcomeError        Outcome = "error"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeNoResale     Outcome = "no_resale"
	OutcomeNoMatch      Outcome = "no_match"
	OutcomeSuppressed   Outcome = "suppressed"
	OutcomeAlerted      Outcome = "alerted"
	OutcomeNotifyFailed Outcome = "notify_failed"
)

// EventReport records one event's result within a sweep
type EventReport struct {
	URL           string    `json:"url"`
	Label         string    `json:"label"`
	Outcome       Outcome   `json:"outcome"`
	Attempts      int       `json:"attempts"`
	Offers        int       `json:"offers"`
	Qualifying    int       `json:"qualifying"`
	TotalQuantity int       `json:"total_quantity"`
	BlockReason   string    `json:"block_reason,omitempty"`
	Error         string    `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// SweepReport represents one full sequential pass over the configured events
type SweepReport struct {
	ID          string        `json:"id"`
	Trigger     string        `json:"trigger"`
	Status      SweepStatus   `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Events      []EventReport `json:"events"`
}

// NewSweepReport creates a running sweep report
func NewSweepReport(trigger string) *SweepReport {
	return &SweepReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    SweepStatusRunning,
		StartedAt: time.Now(),
	}
}

// Add appends an event report
func (s *SweepReport) Add(r EventReport) {
	s.Events = append(s.Events, r)
}

// Complete marks the sweep as completed
func (s *SweepReport) Complete() {
	s.Status = SweepStatusCompleted
	now := time.Now()
	s.CompletedAt = &now
}

// Fail marks the sweep as failed
func (s *SweepReport) Fail(reason string) {
	s.Status = SweepStatusFailed
	s.Error = reason
	now := time.Now()
	s.CompletedAt = &now
}

// Duration returns how long the sweep ran (or has been running)
func (s *SweepReport) Duration() time.Duration {
	end := time.Now()
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(s.StartedAt)
}

// Counts tallies event outcomes
func (s *SweepReport) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, e := range s.Events {
		counts[e.Outcome]++
	}
	return counts
}
