package roomdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"otogi-roomdb/pkg/otogi"
)

// Option mutates database construction configuration.
type Option func(*Database)

// WithConfig replaces the default addressing configuration.
func WithConfig(cfg Config) Option {
	return func(database *Database) {
		database.cfg = cfg
	}
}

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(database *Database) {
		if logger != nil {
			database.logger = logger
		}
	}
}

// WithRoomIDPredicate replaces the canonical room id check.
//
// Rooms matching the predicate are used as-is; others go through the resolver.
func WithRoomIDPredicate(predicate func(room string) bool) Option {
	return func(database *Database) {
		if predicate != nil {
			database.isRoomID = predicate
		}
	}
}

// Database stores key/value data in room state events.
//
// Each Put is an unlocked read followed by at most one write, so concurrent
// writers to the same state entry can lose updates.
type Database struct {
	client   otogi.RoomStateClient
	rooms    otogi.RoomResolver
	cfg      Config
	isRoomID func(room string) bool
	logger   *slog.Logger

	connected atomic.Bool
}

// New creates a database over an injected state client and room resolver.
func New(client otogi.RoomStateClient, rooms otogi.RoomResolver, options ...Option) (*Database, error) {
	if client == nil {
		return nil, fmt.Errorf("new room state database: nil state client")
	}
	if rooms == nil {
		return nil, fmt.Errorf("new room state database: nil room resolver")
	}

	database := &Database{
		client:   client,
		rooms:    rooms,
		cfg:      DefaultConfig(),
		isRoomID: DefaultRoomIDPredicate,
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(database)
	}
	if err := database.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new room state database: %w", err)
	}

	database.logger.Debug("loaded room state database",
		"database", database.Name(),
		"event_type", database.cfg.EventType,
		"mode", database.cfg.Mode.String(),
	)

	return database, nil
}

// Name returns the stable database identifier.
func (d *Database) Name() string {
	return "roomstate"
}

// Config returns the addressing configuration.
func (d *Database) Config() Config {
	return d.cfg
}

// Connect marks the database connected. It performs no I/O and never fails.
func (d *Database) Connect(ctx context.Context) error {
	d.connected.Store(true)
	d.logger.InfoContext(ctx,
		"plugged into room state",
		"database", d.Name(),
		"default_room", d.cfg.DefaultRoom,
		"event_type", d.cfg.EventType,
		"mode", d.cfg.Mode.String(),
	)

	return nil
}

// Connected reports whether Connect has been called.
func (d *Database) Connected() bool {
	return d.connected.Load()
}

// Get returns the value stored for key in the default room.
func (d *Database) Get(ctx context.Context, key string) (any, bool, error) {
	return d.GetRoom(ctx, "", key)
}

// GetRoom returns the value stored for key in room.
//
// An empty room means the configured default room. Missing state and missing
// keys both report found=false with a nil error. In per-key mode the value is
// the whole state content as map[string]any. Numbers decode as float64, except
// integers beyond float64 precision, which decode as int64.
func (d *Database) GetRoom(ctx context.Context, room string, key string) (any, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("roomdb get: empty key")
	}

	address, err := d.resolveAddress(ctx, room, key)
	if err != nil {
		return nil, false, fmt.Errorf("roomdb get %s: %w", key, err)
	}
	d.logger.DebugContext(ctx, "getting key from room state", "key", key, "address", address.String())

	content, err := d.readState(ctx, address)
	if err != nil {
		return nil, false, fmt.Errorf("roomdb get %s: %w", key, err)
	}
	if len(content) == 0 {
		return nil, false, nil
	}

	if d.cfg.Mode == ModeSingleKey {
		value, exists := content[key]
		return value, exists, nil
	}

	return map[string]any(content), true, nil
}

// Put inserts or merges value for key in the default room.
func (d *Database) Put(ctx context.Context, key string, value any) error {
	return d.PutRoom(ctx, "", key, value)
}

// PutRoom inserts or merges value for key in room.
//
// The incoming mapping ({key: value} in single-key mode, value itself in
// per-key mode) replaces same-named top-level keys of the stored content.
// Nested mappings are replaced, not merged. No write is issued when the
// merged content equals the stored content.
func (d *Database) PutRoom(ctx context.Context, room string, key string, value any) error {
	if key == "" {
		return fmt.Errorf("roomdb put: empty key")
	}

	incoming, err := d.incomingContent(key, value)
	if err != nil {
		return fmt.Errorf("roomdb put %s: %w", key, err)
	}

	address, err := d.resolveAddress(ctx, room, key)
	if err != nil {
		return fmt.Errorf("roomdb put %s: %w", key, err)
	}
	d.logger.DebugContext(ctx, "putting key into room state", "key", key, "address", address.String())

	current, err := d.readState(ctx, address)
	if err != nil {
		return fmt.Errorf("roomdb put %s: %w", key, err)
	}

	merged := overlay(current, incoming)
	if sameContent(merged, current) {
		d.logger.DebugContext(ctx, "room state unchanged, skipping write", "key", key, "address", address.String())
		return nil
	}

	if err := d.client.SetState(ctx, address, merged); err != nil {
		return fmt.Errorf("roomdb put %s: set state %s: %w", key, address, err)
	}

	return nil
}

// Delete removes the value stored for key in the default room.
func (d *Database) Delete(ctx context.Context, key string) error {
	return d.DeleteRoom(ctx, "", key)
}

// DeleteRoom removes the value stored for key in room.
//
// Room state entries cannot be removed, so per-key mode overwrites the entry
// with an empty mapping. Nothing is written when there is nothing to remove.
func (d *Database) DeleteRoom(ctx context.Context, room string, key string) error {
	if key == "" {
		return fmt.Errorf("roomdb delete: empty key")
	}

	address, err := d.resolveAddress(ctx, room, key)
	if err != nil {
		return fmt.Errorf("roomdb delete %s: %w", key, err)
	}
	d.logger.DebugContext(ctx, "deleting key from room state", "key", key, "address", address.String())

	current, err := d.readState(ctx, address)
	if err != nil {
		return fmt.Errorf("roomdb delete %s: %w", key, err)
	}

	var remaining otogi.StateContent
	switch d.cfg.Mode {
	case ModeSingleKey:
		if _, exists := current[key]; !exists {
			return nil
		}
		remaining = current.Clone()
		delete(remaining, key)
	default:
		if len(current) == 0 {
			return nil
		}
		remaining = otogi.StateContent{}
	}

	if err := d.client.SetState(ctx, address, remaining); err != nil {
		return fmt.Errorf("roomdb delete %s: set state %s: %w", key, address, err)
	}

	return nil
}

func (d *Database) incomingContent(key string, value any) (otogi.StateContent, error) {
	canonical, err := canonicalValue(value)
	if err != nil {
		return nil, err
	}

	if d.cfg.Mode == ModeSingleKey {
		return otogi.StateContent{key: canonical}, nil
	}

	mapping, ok := canonical.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value must be a mapping, got %T: %w", value, otogi.ErrInvalidValue)
	}

	return otogi.StateContent(mapping), nil
}

// readState returns the stored content, treating missing state as empty.
func (d *Database) readState(ctx context.Context, address otogi.StateAddress) (otogi.StateContent, error) {
	content, err := d.client.GetState(ctx, address)
	if err != nil {
		if otogi.IsStateNotFound(err) {
			return otogi.StateContent{}, nil
		}
		return nil, fmt.Errorf("get state %s: %w", address, err)
	}

	canonical, err := canonicalContent(content)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", address, err)
	}

	return canonical, nil
}

var _ otogi.Database = (*Database)(nil)
