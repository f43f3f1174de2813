package roomdb

import (
	"context"
	"fmt"
	"strings"

	"otogi-roomdb/pkg/otogi"
)

// DefaultRoomIDPredicate reports whether room is a canonical Matrix room id.
func DefaultRoomIDPredicate(room string) bool {
	return strings.HasPrefix(room, "!")
}

func (d *Database) resolveAddress(ctx context.Context, room string, key string) (otogi.StateAddress, error) {
	roomID, err := d.resolveRoomID(ctx, room)
	if err != nil {
		return otogi.StateAddress{}, err
	}

	return otogi.StateAddress{
		RoomID:    roomID,
		EventType: d.cfg.EventType,
		StateKey:  d.stateKeyFor(key),
	}, nil
}

func (d *Database) resolveRoomID(ctx context.Context, room string) (string, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		room = d.cfg.DefaultRoom
	}
	if d.isRoomID(room) {
		return room, nil
	}

	roomID, err := d.rooms.ResolveRoom(ctx, room)
	if err != nil {
		return "", fmt.Errorf("resolve room %s: %w", room, err)
	}
	if roomID == "" {
		return "", fmt.Errorf("resolve room %s: %w", room, otogi.ErrRoomNotFound)
	}

	return roomID, nil
}

func (d *Database) stateKeyFor(key string) string {
	if d.cfg.Mode == ModeSingleKey {
		return ""
	}
	if d.cfg.FixedStateKey != "" {
		return d.cfg.FixedStateKey
	}

	return key
}
