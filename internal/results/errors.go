package results

import (
	"errors"
	"fmt"
)

// ErrUnbandedPercentage is returned when a percentage matches no configured band.
var ErrUnbandedPercentage = errors.New("percentage matches no band")

// MalformedResponseError means the grading response is not a mapping at all.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed grading response: %s: %v", e.Reason, e.Err)
	}
	return "malformed grading response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// UnresolvableCopyError describes a raw entry that could not be turned into a copy.
type UnresolvableCopyError struct {
	Key    string
	Reason string
	Err    error
}

func (e *UnresolvableCopyError) Error() string {
	msg := fmt.Sprintf("copy %q: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnresolvableCopyError) Unwrap() error { return e.Err }

// InconsistentBandConfigurationError is returned by NewAggregator for unusable bands.
type InconsistentBandConfigurationError struct {
	Reason string
}

func (e *InconsistentBandConfigurationError) Error() string {
	return "inconsistent band configuration: " + e.Reason
}
