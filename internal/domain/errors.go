package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned when an operation needs an account and none is connected.
	ErrNotConnected = errors.New("no account connected")
	// ErrEnumeration is returned when the asset id list cannot be fetched at all.
	ErrEnumeration = errors.New("asset enumeration failed")
	// ErrRecordUnavailable marks a single asset whose detail or holding could not be read.
	ErrRecordUnavailable = errors.New("asset record unavailable")
	// ErrMutationRejected is returned when the registry declined or reverted a call.
	ErrMutationRejected = errors.New("mutation rejected")
	// ErrMutationTimeout is returned when finality was not observed in time.
	ErrMutationTimeout = errors.New("mutation finality timeout")
	// ErrMutationInFlight is returned when a mutation with the same key is still pending.
	ErrMutationInFlight = errors.New("mutation already in flight")
	// ErrDataIntegrity is returned when registry data breaks a derived invariant.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrInvalidQuery is returned when an explorer query is neither an address nor an id.
	ErrInvalidQuery = errors.New("invalid query format")
	// ErrNotFound is returned when an asset id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when action arguments are incomplete or out of range.
	ErrInvalidInput = errors.New("invalid input")
)

const reasonEllipsis = "..."

// MutationError carries the registry-supplied reason of a failed mutation.
type MutationError struct {
	Kind   error
	Reason string
	cause  error
}

// NewMutationError wraps cause under kind and keeps a display reason
// truncated to maxReason runes.
func NewMutationError(kind, cause error, maxReason int) *MutationError {
	reason := ""
	if cause != nil {
		reason = TruncateReason(cause.Error(), maxReason)
	}
	return &MutationError{Kind: kind, Reason: reason, cause: cause}
}

func (e *MutationError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Reason)
}

// Is makes errors.Is match the kind sentinel.
func (e *MutationError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *MutationError) Unwrap() error {
	return e.cause
}

// TruncateReason shortens s to at most max runes followed by an ellipsis.
func TruncateReason(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + reasonEllipsis
}

// IntegrityError reports a registry value outside its allowed range.
func IntegrityError(id AssetID, format string, args ...any) error {
	return errors.Wrapf(ErrDataIntegrity, "asset %s: %s", id, fmt.Sprintf(format, args...))
}

// RecordUnavailable reports a failed per-asset read. The result matches
// both ErrRecordUnavailable and cause.
func RecordUnavailable(id AssetID, what string, cause error) error {
	return fmt.Errorf("%w: asset %s %s: %w", ErrRecordUnavailable, id, what, cause)
}

// EnumerationFailed reports a failed id enumeration. The result matches
// both ErrEnumeration and cause.
func EnumerationFailed(cause error) error {
	return fmt.Errorf("%w: %w", ErrEnumeration, cause)
}
