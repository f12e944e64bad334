// Package provider contains the usage API adapters. Each adapter fetches
// one provider's raw usage response and normalizes it into the common
// sample shape; authentication and request shaping live here, not in the
// aggregation core.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bond/tokenash/internal/model"
)

// DateRange is an inclusive calendar-day range in the reference timezone.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days iterates the range one day at a time.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Adapter is the contract the aggregator consumes. FetchUsage returns the
// provider-specific raw JSON; Normalize converts it into samples.
type Adapter interface {
	ID() model.Provider
	FetchUsage(ctx context.Context, r DateRange) (json.RawMessage, error)
	Normalize(raw json.RawMessage) ([]model.Sample, error)
}

// Classification errors. The retry policy keys off these: authentication
// and malformed-response failures are not transient and are never retried.
var (
	ErrUnauthorized      = errors.New("authentication failed")
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is a non-2xx response from a provider API.
type StatusError struct {
	Provider model.Provider
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d", e.Provider, e.Code)
}

// Retryable reports whether a fetch error is worth a single retry:
// network failures, timeouts, 429 and 5xx responses. Authentication and
// malformed-response errors are permanent for the run.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
