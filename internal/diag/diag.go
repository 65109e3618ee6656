// Package diag defines the failure taxonomy of the animation runtime and a
// reporter that records failures for debugging.
//
// Capacity and missing-data failures are recoverable: callers receive an
// *Error, degrade the feature and keep the frame going. Reports are kept in a
// fixed-size ring buffer; High severity reports are additionally pushed to a
// throttled user-visible channel unless the reporter runs in final-build mode.
package diag

import (
	"errors"
	"fmt"
)

// Reason is a symbolic failure code.
type Reason string

const (
	ReasonCapacityExhausted Reason = "capacity-exhausted"
	ReasonClipMissing       Reason = "clip-missing"
	ReasonGestureNotFound   Reason = "gesture-not-found"
	ReasonNoFreeInstance    Reason = "no-free-instance"
	ReasonLockedOut         Reason = "locked-out"
	ReasonMalformedTree     Reason = "malformed-tree"
	ReasonBadCacheData      Reason = "bad-cache-data"
)

// Severity controls how loudly a failure is surfaced.
type Severity uint8

const (
	// SeverityLow reports go to the ring buffer only.
	SeverityLow Severity = iota
	// SeverityNormal reports are also logged.
	SeverityNormal
	// SeverityHigh reports are logged and pushed to the loud channel.
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityNormal:
		return "normal"
	case SeverityHigh:
		return "high"
	default:
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
}

// Error is a typed failure result.
type Error struct {
	Reason    Reason
	Severity  Severity
	Character string
	Gesture   string
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Gesture != "" {
		msg += " gesture=" + e.Gesture
	}
	if e.Character != "" {
		msg += " character=" + e.Character
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by reason so errors.Is(err, &Error{Reason: r})
// works as a reason check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// New builds an *Error.
func New(reason Reason, sev Severity, err error) *Error {
	return &Error{Reason: reason, Severity: sev, Err: err}
}

// WithGesture returns a copy tagged with a character and gesture id.
func (e *Error) WithGesture(character, gesture string) *Error {
	c := *e
	c.Character = character
	c.Gesture = gesture
	return &c
}

// ReasonOf extracts the reason of the first *Error in err's chain.
func ReasonOf(err error) (Reason, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}

// HasReason reports whether err carries the given reason.
func HasReason(err error, reason Reason) bool {
	r, ok := ReasonOf(err)
	return ok && r == reason
}
