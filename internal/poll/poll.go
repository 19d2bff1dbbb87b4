// Package poll holds caller-driven wait loops. Nothing here runs in the
// background: every helper blocks the caller until it has an answer.
package poll

import (
	"context"
	"time"
)

// Eventually checks that the condition becomes true within the given period.
func Eventually(ctx context.Context, condition func() bool, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
			if condition() {
				return true
			}
		}
	}

	return false
}

// Consistently checks that the condition is always true for the given period.
func Consistently(ctx context.Context, condition func() bool, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
			if !condition() {
				return false
			}
		}
	}

	return true
}

// Until checks the condition immediately and then every pollInterval until
// it holds or ctx is done, returning ctx.Err() in the latter case. A ctx
// that is already done fails without checking the condition.
func Until(ctx context.Context, condition func(context.Context) bool, pollInterval time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if condition(ctx) {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if condition(ctx) {
				return nil
			}
		}
	}
}
