package scraper

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"resalewatch/models"
)

type scriptedCheck struct {
	results []models.ExtractionResult
	errs    []error
	calls   int
}

func (s *scriptedCheck) check(_ context.Context, _, _ string) (models.ExtractionResult, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var res models.ExtractionResult
	if i < len(s.results) {
		res = s.results[i]
	}
	return res, err
}

func recordSleeps(slept *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
}

var usable = models.ExtractionResult{
	HasResaleSignal: true,
	Offers:          []models.Offer{{PriceRaw: "£45", PriceValue: 45, Quantity: 1}},
}

func TestFetchWithRetryBlockedNeverRetries(t *testing.T) {
	s := &scriptedCheck{results: []models.ExtractionResult{{Blocked: true, BlockReason: "queue"}}}
	var slept []time.Duration
	policy := &RetryPolicy{Delays: []time.Duration{5 * time.Second, 15 * time.Second}, Sleep: recordSleeps(&slept)}

	out, err := FetchWithRetry(context.Background(), s.check, "u", "l", policy, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if s.calls != 1 || out.Attempts != 1 || len(slept) != 0 {
		t.Errorf("calls=%d attempts=%d slept=%v, expected a single attempt", s.calls, out.Attempts, slept)
	}
	if !out.Result.Blocked {
		t.Error("expected blocked result")
	}
}

func TestFetchWithRetryRecoversAfterEmptyAndError(t *testing.T) {
	s := &scriptedCheck{
		results: []models.ExtractionResult{{}, {}, usable},
		errs:    []error{nil, errors.New("timeout"), nil},
	}
	var slept []time.Duration
	policy := &RetryPolicy{Delays: []time.Duration{5 * time.Second, 15 * time.Second}, Sleep: recordSleeps(&slept)}

	out, err := FetchWithRetry(context.Background(), s.check, "u", "l", policy, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if out.Attempts != 3 {
		t.Errorf("Attempts = %d, expected 3", out.Attempts)
	}
	if !reflect.DeepEqual(slept, []time.Duration{5 * time.Second, 15 * time.Second}) {
		t.Errorf("slept %v, expected short then long delay", slept)
	}
	if !out.Result.Usable() {
		t.Errorf("expected usable result, got %+v", out.Result)
	}
}

func TestFetchWithRetryStopsWhenUsable(t *testing.T) {
	s := &scriptedCheck{results: []models.ExtractionResult{usable}}
	var slept []time.Duration
	policy := &RetryPolicy{Delays: []time.Duration{time.Second}, Sleep: recordSleeps(&slept)}

	out, err := FetchWithRetry(context.Background(), s.check, "u", "l", policy, quietLogger())
	if err != nil || out.Attempts != 1 || s.calls != 1 {
		t.Errorf("attempts=%d calls=%d err=%v", out.Attempts, s.calls, err)
	}
}

func TestFetchWithRetryReturnsFinalError(t *testing.T) {
	boom := errors.New("render failed")
	s := &scriptedCheck{errs: []error{boom, boom, boom}}
	var slept []time.Duration
	policy := &RetryPolicy{Delays: []time.Duration{time.Second, 2 * time.Second}, Sleep: recordSleeps(&slept)}

	out, err := FetchWithRetry(context.Background(), s.check, "u", "l", policy, quietLogger())
	if !errors.Is(err, boom) {
		t.Errorf("expected final error, got %v", err)
	}
	if out.Attempts != policy.MaxAttempts() {
		t.Errorf("Attempts = %d, expected %d", out.Attempts, policy.MaxAttempts())
	}
}

func TestFetchWithRetryEarlierErrorIsForgotten(t *testing.T) {
	s := &scriptedCheck{
		results: []models.ExtractionResult{{}, {HasResaleSignal: true}},
		errs:    []error{errors.New("flaky"), nil},
	}
	var slept []time.Duration
	policy := &RetryPolicy{Delays: []time.Duration{time.Second}, Sleep: recordSleeps(&slept)}

	out, err := FetchWithRetry(context.Background(), s.check, "u", "l", policy, quietLogger())
	if err != nil {
		t.Errorf("expected nil error when the last attempt rendered, got %v", err)
	}
	if !out.Result.HasResaleSignal || len(out.Result.Offers) != 0 {
		t.Errorf("expected the last (empty) result, got %+v", out.Result)
	}
}

func TestFetchWithRetryHonoursCancellation(t *testing.T) {
	s := &scriptedCheck{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := &RetryPolicy{Delays: []time.Duration{time.Hour}}
	_, err := FetchWithRetry(ctx, s.check, "u", "l", policy, quietLogger())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if s.calls != 1 {
		t.Errorf("calls = %d, expected 1", s.calls)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts() != 3 {
		t.Errorf("MaxAttempts = %d, expected 3", p.MaxAttempts())
	}
	if p.Delays[0] >= p.Delays[1] {
		t.Errorf("expected a short then a longer delay, got %v", p.Delays)
	}
}
