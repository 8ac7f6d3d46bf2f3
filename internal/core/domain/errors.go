package domain

import "errors"

var (
	ErrComponentTimeout         = errors.New("component timeout")
	ErrComponentError           = errors.New("component error")
	ErrNoComponentAvailable     = errors.New("no component available")
	ErrResourceExhausted        = errors.New("resource exhausted")
	ErrMaxFallbackDepthExceeded = errors.New("max fallback depth exceeded")
	ErrEmergencyFallbackFailure = errors.New("emergency fallback failure")

	ErrCircuitOpen       = errors.New("circuit open")
	ErrComponentExists   = errors.New("component already registered")
	ErrComponentNotFound = errors.New("component not found")
	ErrTierChange        = errors.New("tier is immutable after registration")
)

// Recoverable reports whether the fallback system is expected to absorb err.
func Recoverable(err error) bool {
	return errors.Is(err, ErrComponentTimeout) ||
		errors.Is(err, ErrComponentError) ||
		errors.Is(err, ErrNoComponentAvailable) ||
		errors.Is(err, ErrResourceExhausted) ||
		errors.Is(err, ErrMaxFallbackDepthExceeded) ||
		errors.Is(err, ErrCircuitOpen)
}
