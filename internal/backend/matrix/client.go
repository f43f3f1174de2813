package matrix

import (
	"context"
	"fmt"
	"log/slog"

	"otogi-roomdb/pkg/otogi"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// StateClientOption mutates state client configuration.
type StateClientOption func(*StateClient)

// WithStateClientLogger injects a structured logger.
func WithStateClientLogger(logger *slog.Logger) StateClientOption {
	return func(client *StateClient) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// StateClient reads and writes room state through a Matrix homeserver.
type StateClient struct {
	client *mautrix.Client
	logger *slog.Logger
}

// NewStateClient wraps an authenticated mautrix client.
func NewStateClient(client *mautrix.Client, options ...StateClientOption) (*StateClient, error) {
	if client == nil {
		return nil, fmt.Errorf("new matrix state client: nil client")
	}

	stateClient := &StateClient{
		client: client,
		logger: slog.Default(),
	}
	for _, option := range options {
		option(stateClient)
	}

	return stateClient, nil
}

// GetState fetches the content of one state event.
//
// Missing events yield a RoomStateError matching otogi.ErrStateNotFound.
func (c *StateClient) GetState(ctx context.Context, address otogi.StateAddress) (otogi.StateContent, error) {
	if err := address.Validate(); err != nil {
		return nil, fmt.Errorf("matrix get state: %w", err)
	}

	content := otogi.StateContent{}
	err := c.client.StateEvent(ctx, id.RoomID(address.RoomID), stateEventType(address.EventType), address.StateKey, &content)
	if err != nil {
		return nil, mapMatrixError(otogi.RoomStateOperationGet, address, err)
	}
	if content == nil {
		content = otogi.StateContent{}
	}

	return content, nil
}

// SetState sends content as the new state event at address.
func (c *StateClient) SetState(ctx context.Context, address otogi.StateAddress, content otogi.StateContent) error {
	if err := address.Validate(); err != nil {
		return fmt.Errorf("matrix set state: %w", err)
	}
	if content == nil {
		content = otogi.StateContent{}
	}

	resp, err := c.client.SendStateEvent(ctx, id.RoomID(address.RoomID), stateEventType(address.EventType), address.StateKey, content)
	if err != nil {
		return mapMatrixError(otogi.RoomStateOperationSet, address, err)
	}

	eventID := ""
	if resp != nil {
		eventID = string(resp.EventID)
	}
	c.logger.DebugContext(ctx, "matrix state event sent", "address", address.String(), "event_id", eventID)

	return nil
}

// Close releases idle homeserver connections.
func (c *StateClient) Close() error {
	if c.client.Client != nil {
		c.client.Client.CloseIdleConnections()
	}

	return nil
}

func stateEventType(eventType string) event.Type {
	return event.Type{Type: eventType, Class: event.StateEventType}
}

var _ otogi.RoomStateClient = (*StateClient)(nil)
