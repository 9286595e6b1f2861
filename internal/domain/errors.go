package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreUnavailable marks persistent store failures that dedup and
	// run bookkeeping degrade around.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicate is returned when (normalizedTitle, postedDate) already exists.
	ErrDuplicate = errors.New("duplicate delivery record")
	// ErrSlotClaimed signals another invocation already owns the slot. Not a failure.
	ErrSlotClaimed = errors.New("slot already claimed")
	// ErrConfig wraps startup configuration problems; these are fatal.
	ErrConfig = errors.New("invalid configuration")
)

// FetchError describes a failed feed fetch. Transient errors are retried
// within one fetch; permanent ones are not.
type FetchError struct {
	Source     string
	Transient  bool
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s: http %d", e.Source, kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Source, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// BreakerOpenError is the synthetic failure for a source whose breaker is open.
type BreakerOpenError struct {
	Source string
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("fetch %s: circuit open", e.Source)
}

// DeliveryError is returned by delivery sinks.
type DeliveryError struct {
	StatusCode  int
	Retryable   bool
	RateLimited bool
	RetryAfter  time.Duration // server hint, set when rate limited
	Err         error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.RateLimited:
		return fmt.Sprintf("delivery rate limited: %v", e.Err)
	case e.Retryable:
		return fmt.Sprintf("delivery failed (retryable): %v", e.Err)
	default:
		return fmt.Sprintf("delivery rejected: %v", e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsTransientFetch reports whether err is a retryable fetch failure.
func IsTransientFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// IsRetryableDelivery reports whether a delivery may be retried in-process.
// Rate limiting is deferred to the next run rather than retried here.
func IsRetryableDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Retryable && !de.RateLimited
}
