package thread

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	// ErrResourceExhausted indicates that no arena slot is free, or that a
	// record does not fit its slot.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrInvalidState indicates an operation the current state forbids.
	ErrInvalidState = errors.New("invalid state")

	// ErrEngineRejected indicates the native engine refused an operation.
	ErrEngineRejected = errors.New("engine rejected operation")

	// ErrNotBound indicates use of a closed socket.
	ErrNotBound = errors.New("socket not bound")

	// ErrAddressInUse indicates a local endpoint already bound.
	ErrAddressInUse = errors.New("address in use")

	// ErrPayloadTooLarge indicates a datagram larger than the socket buffer.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrStopped indicates the engine run loop has exited.
	ErrStopped = errors.New("engine stopped")

	// ErrResourcesInUse indicates a Resources value already backs an engine.
	ErrResourcesInUse = fmt.Errorf("%w: resources already in use", ErrResourceExhausted)

	// ErrInvalidConfig indicates an invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// EngineError wraps a failure reported by the native engine.
type EngineError struct {
	// Op is the operation that failed.
	Op string

	// Err is the native cause.
	Err error
}

// Error implements error.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrEngineRejected, e.Err)
}

// Unwrap returns both ErrEngineRejected and the native cause.
func (e *EngineError) Unwrap() []error {
	return []error{ErrEngineRejected, e.Err}
}

func rejected(op string, err error) error {
	if err == nil {
		return nil
	}
	// Façade errors pass through unchanged.
	for _, sentinel := range []error{ErrResourceExhausted, ErrInvalidState, ErrNotBound, ErrAddressInUse, ErrPayloadTooLarge} {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return &EngineError{Op: op, Err: err}
}
