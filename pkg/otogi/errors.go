package otogi

import "errors"

var (
	// ErrStateNotFound indicates that no state event exists at one address.
	ErrStateNotFound = errors.New("otogi: room state not found")
	// ErrRoomNotFound indicates that a room name or alias could not be resolved.
	ErrRoomNotFound = errors.New("otogi: room not found")
	// ErrInvalidValue indicates that a value cannot be stored under the configured layout.
	ErrInvalidValue = errors.New("otogi: invalid value")
	// ErrBackendAlreadyRegistered indicates duplicate backend type registration.
	ErrBackendAlreadyRegistered = errors.New("otogi: backend already registered")
)
