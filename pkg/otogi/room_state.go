package otogi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StateContent is the JSON object body of one room state event.
type StateContent map[string]any

// Clone returns a shallow copy of c. Nested values are shared.
func (c StateContent) Clone() StateContent {
	cloned := make(StateContent, len(c))
	for key, value := range c {
		cloned[key] = value
	}

	return cloned
}

// StateAddress identifies one room state entry.
type StateAddress struct {
	// RoomID is the canonical room identifier.
	RoomID string
	// EventType namespaces the stored state.
	EventType string
	// StateKey selects one entry under EventType. Empty is a valid key.
	StateKey string
}

// Validate checks that mandatory address fields are present.
func (a StateAddress) Validate() error {
	if a.RoomID == "" {
		return fmt.Errorf("validate state address: missing room id")
	}
	if a.EventType == "" {
		return fmt.Errorf("validate state address: missing event type")
	}

	return nil
}

// String renders the address as room/type/key for logs and errors.
func (a StateAddress) String() string {
	return a.RoomID + "/" + a.EventType + "/" + a.StateKey
}

// RoomStateClient reads and writes room state events.
//
// GetState must return an error matching ErrStateNotFound when no event exists
// at the address.
type RoomStateClient interface {
	// GetState returns the content stored at address.
	GetState(ctx context.Context, address StateAddress) (StateContent, error)
	// SetState replaces the content stored at address.
	SetState(ctx context.Context, address StateAddress, content StateContent) error
}

// RoomResolver maps human room names and aliases to canonical room ids.
type RoomResolver interface {
	// ResolveRoom returns the room id for name, or an error matching
	// ErrRoomNotFound when name is unknown.
	ResolveRoom(ctx context.Context, name string) (string, error)
}

// RoomStateOperation identifies one room state client operation.
type RoomStateOperation string

const (
	// RoomStateOperationGet identifies GetState calls.
	RoomStateOperationGet RoomStateOperation = "get_state"
	// RoomStateOperationSet identifies SetState calls.
	RoomStateOperationSet RoomStateOperation = "set_state"
	// RoomStateOperationResolve identifies ResolveRoom calls.
	RoomStateOperationResolve RoomStateOperation = "resolve_room"
)

// RoomStateErrorKind classifies remote room state failures.
type RoomStateErrorKind string

const (
	// RoomStateErrorKindNotFound indicates the addressed state does not exist.
	RoomStateErrorKindNotFound RoomStateErrorKind = "not_found"
	// RoomStateErrorKindForbidden indicates the session may not access the room.
	RoomStateErrorKindForbidden RoomStateErrorKind = "forbidden"
	// RoomStateErrorKindRateLimited indicates server-side rate limiting.
	RoomStateErrorKindRateLimited RoomStateErrorKind = "rate_limited"
	// RoomStateErrorKindTemporary indicates a transient server failure.
	RoomStateErrorKindTemporary RoomStateErrorKind = "temporary"
	// RoomStateErrorKindUnknown indicates an unclassified failure.
	RoomStateErrorKindUnknown RoomStateErrorKind = "unknown"
)

// RoomStateError carries structured metadata for one remote state failure.
type RoomStateError struct {
	// Operation identifies which client operation failed.
	Operation RoomStateOperation
	// Kind classifies the failure.
	Kind RoomStateErrorKind
	// Address identifies the state entry involved when known.
	Address StateAddress
	// StatusCode carries the transport status code when known.
	StatusCode int
	// Code carries the protocol error code (for example M_NOT_FOUND) when known.
	Code string
	// RetryAfter carries the server's suggested retry delay for rate-limited failures when known.
	RetryAfter time.Duration
	// Cause is the wrapped transport error.
	Cause error
}

// Error returns one operator-readable failure summary.
func (e *RoomStateError) Error() string {
	if e == nil {
		return "<nil>"
	}

	fields := make([]string, 0, 6)
	if operation := strings.TrimSpace(string(e.Operation)); operation != "" {
		fields = append(fields, "operation="+operation)
	}
	if kind := strings.TrimSpace(string(e.Kind)); kind != "" {
		fields = append(fields, "kind="+kind)
	}
	if e.Address.RoomID != "" {
		fields = append(fields, "address="+e.Address.String())
	}
	if e.StatusCode != 0 {
		fields = append(fields, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if code := strings.TrimSpace(e.Code); code != "" {
		fields = append(fields, "code="+code)
	}
	if e.RetryAfter > 0 {
		fields = append(fields, "retry_after="+e.RetryAfter.String())
	}

	summary := "room state error"
	if len(fields) > 0 {
		summary += ": " + strings.Join(fields, " ")
	}
	if e.Cause == nil {
		return summary
	}

	return summary + ": " + e.Cause.Error()
}

// Unwrap returns the wrapped root cause.
func (e *RoomStateError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// Is lets not-found failures match ErrStateNotFound.
func (e *RoomStateError) Is(target error) bool {
	if e == nil {
		return false
	}

	return target == ErrStateNotFound && e.Kind == RoomStateErrorKindNotFound
}

// AsRoomStateError extracts one RoomStateError from wrapped error chains.
func AsRoomStateError(err error) (*RoomStateError, bool) {
	if err == nil {
		return nil, false
	}

	var stateErr *RoomStateError
	if errors.As(err, &stateErr) {
		return stateErr, true
	}

	return nil, false
}

// AsRoomStateRateLimit extracts retry delay metadata from rate-limited state errors.
//
// It returns (0, true) when rate-limited but no retry-after hint is known.
func AsRoomStateRateLimit(err error) (time.Duration, bool) {
	stateErr, ok := AsRoomStateError(err)
	if !ok || stateErr.Kind != RoomStateErrorKindRateLimited {
		return 0, false
	}

	return stateErr.RetryAfter, true
}

// IsStateNotFound reports whether err means the addressed state is absent.
func IsStateNotFound(err error) bool {
	return errors.Is(err, ErrStateNotFound)
}
