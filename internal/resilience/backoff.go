package resilience

import "time"

// DefaultCooldown is how long a rate-limited item waits, regardless of attempts.
const DefaultCooldown = 30 * time.Minute

// maxBackoffExponent keeps 2^attempts minutes from overflowing.
const maxBackoffExponent = 20

// Backoff returns the queue retry delay after the given number of attempts:
// 2^attempts minutes.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxBackoffExponent {
		attempts = maxBackoffExponent
	}
	return time.Duration(1<<attempts) * time.Minute
}

// Decision is what a queue does with a failed item.
type Decision int

const (
	// Retry returns the item to pending after exponential backoff.
	Retry Decision = iota
	// Cooldown returns the item to pending after a fixed rate-limit cooldown.
	Cooldown
	// Fail marks the item failed; it is never retried.
	Fail
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Cooldown:
		return "cooldown"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// RetryPlan is the scheduled outcome of a failed attempt.
type RetryPlan struct {
	Decision      Decision
	Class         Class
	NextAttemptAt time.Time
}

// Plan decides the fate of an item whose attempt number `attempts`
// (already counted) failed with err. Permanent errors and exhausted budgets
// fail; rate limits cool down without regard to the attempt count;
// anything else backs off 2^attempts minutes.
func Plan(err error, attempts, maxAttempts int, now time.Time, cooldown time.Duration) RetryPlan {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	class := Classify(err)
	switch class {
	case Permanent:
		return RetryPlan{Decision: Fail, Class: class}
	case RateLimited:
		next := now.Add(cooldown)
		if at, ok := RetryAt(err); ok && at.After(now) {
			next = at
		}
		return RetryPlan{Decision: Cooldown, Class: class, NextAttemptAt: next}
	}

	if attempts >= maxAttempts {
		return RetryPlan{Decision: Fail, Class: class}
	}
	return RetryPlan{Decision: Retry, Class: class, NextAttemptAt: now.Add(Backoff(attempts))}
}
