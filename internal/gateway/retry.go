package gateway

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// networkErrorPattern matches error text that indicates connectivity loss
// rather than a misbehaving provider.
var networkErrorPattern = regexp.MustCompile(
	`(?i)\b(ECONN[A-Z_]*|ENET[A-Z_]*|EHOST[A-Z_]*|ETIMEDOUT|ENOTFOUND|EAI_AGAIN|offline|network)\b`)

func isNetworkError(err error) bool {
	return err != nil && networkErrorPattern.MatchString(err.Error())
}

// RetryPolicy controls how provider probes are retried with exponential
// backoff. Apply actions are interactive, so the defaults stay short.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 200ms initial delay, 2x
// multiplier, 2s max delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     2 * time.Second,
	}
}

// isRetryable classifies provider errors by message. Transient network and
// timeout failures retry; auth and validation failures do not. Unknown
// errors default to retryable.
func (p *RetryPolicy) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if isNetworkError(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure") {
		return true
	}
	if strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") {
		return false
	}
	return true
}

// NextDelay returns the backoff delay for the given attempt (1-indexed).
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn up to MaxAttempts times, sleeping between retries.
// Returns nil on success or the last error when attempts are exhausted or
// the error is not retryable.
func (p *RetryPolicy) Execute(fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !p.isRetryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}
		time.Sleep(p.NextDelay(attempt))
	}
	return lastErr
}
