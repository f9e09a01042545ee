package detection

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNoUsableDetection   = errors.New("no usable detection")
	ErrMatchingFailure     = errors.New("matching failure")
	ErrNotificationFailure = errors.New("notification failure")

	ErrBatchEmpty    = fmt.Errorf("%w: at least one detection request is required", ErrValidation)
	ErrBatchTooLarge = fmt.Errorf("%w: batch size exceeds limit", ErrValidation)
)

type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindValidation          ErrorKind = "validation"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindNoUsableDetection   ErrorKind = "no_usable_detection"
	KindMatchingFailure     ErrorKind = "matching_failure"
	KindNotificationFailure ErrorKind = "notification_failure"
	KindInternal            ErrorKind = "internal"
)

// KindOf classifies err into one of the pipeline error kinds.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrNoUsableDetection):
		return KindNoUsableDetection
	case errors.Is(err, ErrMatchingFailure):
		return KindMatchingFailure
	case errors.Is(err, ErrNotificationFailure):
		return KindNotificationFailure
	default:
		return KindInternal
	}
}
