package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var planNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestBackoff_DoublesEachAttempt(t *testing.T) {
	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute}
	for attempts, w := range want {
		if got := Backoff(attempts); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempts, got, w)
		}
	}
	if Backoff(100) != Backoff(maxBackoffExponent) {
		t.Error("expected backoff to be capped")
	}
}

func TestPlan_TransientBacksOffUntilExhausted(t *testing.T) {
	err := errors.New("connection refused")
	var prevGap time.Duration
	for attempts := 1; attempts < 3; attempts++ {
		p := Plan(err, attempts, 3, planNow, 0)
		if p.Decision != Retry {
			t.Fatalf("attempt %d: decision = %v, want retry", attempts, p.Decision)
		}
		gap := p.NextAttemptAt.Sub(planNow)
		if gap != time.Duration(1<<attempts)*time.Minute {
			t.Errorf("attempt %d: gap = %v", attempts, gap)
		}
		if gap <= prevGap {
			t.Errorf("attempt %d: gap %v did not grow past %v", attempts, gap, prevGap)
		}
		prevGap = gap
	}

	if p := Plan(err, 3, 3, planNow, 0); p.Decision != Fail {
		t.Errorf("decision at max attempts = %v, want fail", p.Decision)
	}
}

func TestPlan_PermanentFailsImmediately(t *testing.T) {
	p := Plan(NoData("hunter"), 1, 3, planNow, 0)
	if p.Decision != Fail || p.Class != Permanent {
		t.Errorf("got %v/%v, want fail/permanent", p.Decision, p.Class)
	}
}

func TestPlan_RateLimitedIgnoresAttempts(t *testing.T) {
	err := fmt.Errorf("find email: %w", NewRateLimited("hunter", errors.New("slow down")))
	p := Plan(err, 3, 3, planNow, 30*time.Minute)
	if p.Decision != Cooldown {
		t.Fatalf("decision = %v, want cooldown", p.Decision)
	}
	if got := p.NextAttemptAt.Sub(planNow); got != 30*time.Minute {
		t.Errorf("cooldown = %v, want 30m", got)
	}
}

func TestPlan_RateLimitedHonorsRetryAt(t *testing.T) {
	pe := NewRateLimited("hunter", errors.New("monthly quota exhausted"))
	pe.RetryAt = planNow.Add(72 * time.Hour)
	p := Plan(pe, 1, 3, planNow, 0)
	if !p.NextAttemptAt.Equal(pe.RetryAt) {
		t.Errorf("next attempt = %v, want %v", p.NextAttemptAt, pe.RetryAt)
	}
}
