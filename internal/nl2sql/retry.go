package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/NopparootSuree/AI-Agent/internal/failure"
)

type retryPolicy struct {
	timeout time.Duration
	backoff time.Duration
}

// transportError marks failures that happened before a complete response was
// read: timeouts, refused or reset connections, truncated bodies. Only these
// are retried.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func transport(err error) error {
	return &transportError{err: err}
}

// completeWithRetry runs attempt with a per-attempt timeout and at most one
// retry. The whole call is bounded by twice the per-attempt timeout.
func completeWithRetry(ctx context.Context, policy retryPolicy, attempt func(context.Context) (string, error)) (string, int, error) {
	callCtx, cancel := context.WithTimeout(ctx, 2*policy.timeout)
	defer cancel()

	attempts := 0
	operation := func() (string, error) {
		attempts++
		attemptCtx, cancelAttempt := context.WithTimeout(callCtx, policy.timeout)
		defer cancelAttempt()

		text, err := attempt(attemptCtx)
		if err == nil {
			return text, nil
		}
		var transportErr *transportError
		if ctx.Err() != nil || !errors.As(err, &transportErr) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.backoff), 1), callCtx)
	text, err := backoff.RetryWithData(operation, retry)
	if err != nil {
		return "", attempts, modelUnavailable(err, attempts)
	}
	return text, attempts, nil
}

func modelUnavailable(err error, attempts int) error {
	detail := "language model did not return a usable answer"
	if attempts > 1 {
		detail = fmt.Sprintf("%s after %d attempts", detail, attempts)
	}
	return failure.Wrap(failure.ModelUnavailable, err, detail)
}
