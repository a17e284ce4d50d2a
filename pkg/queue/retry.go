package queue

import (
	"math"
	"time"
)

// RetryPolicy describes exponential backoff between attempts of the same task.
type RetryPolicy struct {
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
}

// Delay returns the wait before the retry that follows the given failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return Backoff(attempt, p.InitialDelay, p.Multiplier, p.MaxDelay)
}

func (p RetryPolicy) valid() bool {
	return p.InitialDelay > 0 && p.Multiplier >= 1 && p.MaxDelay >= p.InitialDelay
}

// Backoff computes initial * multiplier^(attempt-1), capped at maxDelay.
// Attempts below 1 are treated as the first attempt.
func Backoff(attempt int, initial time.Duration, multiplier float64, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}
