package otogi

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRoomStateErrorMatchesNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
		},
		{
			name: "bare sentinel",
			err:  ErrStateNotFound,
			want: true,
		},
		{
			name: "wrapped not found kind",
			err: fmt.Errorf("outer: %w", &RoomStateError{
				Operation:  RoomStateOperationGet,
				Kind:       RoomStateErrorKindNotFound,
				StatusCode: 404,
				Code:       "M_NOT_FOUND",
			}),
			want: true,
		},
		{
			name: "server failure",
			err: &RoomStateError{
				Operation:  RoomStateOperationGet,
				Kind:       RoomStateErrorKindTemporary,
				StatusCode: 500,
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := IsStateNotFound(testCase.err); got != testCase.want {
				t.Fatalf("IsStateNotFound(%v) = %v, want %v", testCase.err, got, testCase.want)
			}
		})
	}
}

func TestAsRoomStateErrorPreservesUnwrap(t *testing.T) {
	t.Parallel()

	rootCause := errors.New("connection reset")
	err := fmt.Errorf("put: %w", &RoomStateError{
		Operation: RoomStateOperationSet,
		Kind:      RoomStateErrorKindUnknown,
		Address: StateAddress{
			RoomID:    "!room:localhost",
			EventType: "opsdroid.database",
		},
		Cause: rootCause,
	})

	stateErr, ok := AsRoomStateError(err)
	if !ok {
		t.Fatal("AsRoomStateError = false, want true")
	}
	if stateErr.Operation != RoomStateOperationSet {
		t.Fatalf("operation = %s, want %s", stateErr.Operation, RoomStateOperationSet)
	}
	if !errors.Is(err, rootCause) {
		t.Fatalf("errors.Is(err, rootCause) = false, want true (err=%v)", err)
	}
	if errors.Is(err, ErrStateNotFound) {
		t.Fatal("unknown kind must not match ErrStateNotFound")
	}
	if !strings.Contains(err.Error(), "address=!room:localhost/opsdroid.database/") {
		t.Fatalf("error = %q, want address field", err.Error())
	}
}

func TestStateAddressValidate(t *testing.T) {
	t.Parallel()

	if err := (StateAddress{EventType: "opsdroid.database"}).Validate(); err == nil {
		t.Fatal("expected missing room id error")
	}
	if err := (StateAddress{RoomID: "!room"}).Validate(); err == nil {
		t.Fatal("expected missing event type error")
	}
	if err := (StateAddress{RoomID: "!room", EventType: "opsdroid.database"}).Validate(); err != nil {
		t.Fatalf("validate empty state key: %v", err)
	}
}

func TestStateContentCloneIsShallow(t *testing.T) {
	t.Parallel()

	nested := map[string]any{"hello": "world"}
	original := StateContent{"twim": nested}
	cloned := original.Clone()
	cloned["extra"] = true

	if _, exists := original["extra"]; exists {
		t.Fatal("clone shares top-level map with original")
	}
	if cloned["twim"].(map[string]any)["hello"] != "world" {
		t.Fatalf("cloned nested value = %v, want world", cloned["twim"])
	}
}

func TestAsRoomStateRateLimit(t *testing.T) {
	t.Parallel()

	limited := fmt.Errorf("put: %w", &RoomStateError{
		Operation:  RoomStateOperationSet,
		Kind:       RoomStateErrorKindRateLimited,
		Code:       "M_LIMIT_EXCEEDED",
		RetryAfter: 1500 * time.Millisecond,
	})
	retryAfter, ok := AsRoomStateRateLimit(limited)
	if !ok {
		t.Fatal("AsRoomStateRateLimit ok = false, want true")
	}
	if retryAfter != 1500*time.Millisecond {
		t.Fatalf("retry after = %v, want 1.5s", retryAfter)
	}
	if !strings.Contains(limited.Error(), "retry_after=1.5s") {
		t.Fatalf("error %q does not mention retry_after", limited)
	}

	if _, ok := AsRoomStateRateLimit(&RoomStateError{Kind: RoomStateErrorKindTemporary}); ok {
		t.Fatal("temporary failure reported as rate limit")
	}
	if _, ok := AsRoomStateRateLimit(errors.New("plain")); ok {
		t.Fatal("plain error reported as rate limit")
	}
}
