package roomdb

import (
	"context"
	"fmt"
	"sync"

	"otogi-roomdb/pkg/otogi"
)

const testRoomID = "!notaroomid"

type stateCall struct {
	op      otogi.RoomStateOperation
	address otogi.StateAddress
	content otogi.StateContent
}

// fakeStateClient is an in-memory room state store that records every call.
type fakeStateClient struct {
	mu     sync.Mutex
	state  map[otogi.StateAddress]otogi.StateContent
	getErr error
	setErr error
	calls  []stateCall
}

func newFakeStateClient() *fakeStateClient {
	return &fakeStateClient{state: make(map[otogi.StateAddress]otogi.StateContent)}
}

func (f *fakeStateClient) seed(address otogi.StateAddress, content otogi.StateContent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state[address] = content
}

func (f *fakeStateClient) GetState(_ context.Context, address otogi.StateAddress) (otogi.StateContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, stateCall{op: otogi.RoomStateOperationGet, address: address})
	if f.getErr != nil {
		return nil, f.getErr
	}
	content, exists := f.state[address]
	if !exists {
		return nil, &otogi.RoomStateError{
			Operation:  otogi.RoomStateOperationGet,
			Kind:       otogi.RoomStateErrorKindNotFound,
			Address:    address,
			StatusCode: 404,
			Code:       "M_NOT_FOUND",
		}
	}

	return content.Clone(), nil
}

func (f *fakeStateClient) SetState(_ context.Context, address otogi.StateAddress, content otogi.StateContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, stateCall{op: otogi.RoomStateOperationSet, address: address, content: content.Clone()})
	if f.setErr != nil {
		return f.setErr
	}
	f.state[address] = content.Clone()

	return nil
}

func (f *fakeStateClient) recorded() []stateCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]stateCall(nil), f.calls...)
}

func (f *fakeStateClient) writes() []stateCall {
	writes := make([]stateCall, 0)
	for _, call := range f.recorded() {
		if call.op == otogi.RoomStateOperationSet {
			writes = append(writes, call)
		}
	}

	return writes
}

// fakeRooms resolves names from a static table and counts lookups.
type fakeRooms struct {
	mu      sync.Mutex
	rooms   map[string]string
	lookups int
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{rooms: map[string]string{"main": testRoomID}}
}

func (f *fakeRooms) ResolveRoom(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups++
	roomID, exists := f.rooms[name]
	if !exists {
		return "", fmt.Errorf("room %s: %w", name, otogi.ErrRoomNotFound)
	}

	return roomID, nil
}

func (f *fakeRooms) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lookups
}

func stateAt(stateKey string) otogi.StateAddress {
	return otogi.StateAddress{
		RoomID:    testRoomID,
		EventType: DefaultEventType,
		StateKey:  stateKey,
	}
}
