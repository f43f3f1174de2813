package matrix

import (
	"context"
	"fmt"
	"strings"

	"otogi-roomdb/pkg/otogi"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// RoomDirectory resolves configured room names and aliases to room ids.
type RoomDirectory struct {
	client *mautrix.Client
	rooms  map[string]string
}

// NewRoomDirectory creates a directory over configured name -> alias or id entries.
func NewRoomDirectory(client *mautrix.Client, rooms map[string]string) (*RoomDirectory, error) {
	if client == nil {
		return nil, fmt.Errorf("new matrix room directory: nil client")
	}

	cloned := make(map[string]string, len(rooms))
	for name, target := range rooms {
		cloned[name] = target
	}

	return &RoomDirectory{client: client, rooms: cloned}, nil
}

// ResolveRoom maps a configured name, bare alias, or room id to a room id.
func (d *RoomDirectory) ResolveRoom(ctx context.Context, name string) (string, error) {
	target, configured := d.rooms[name]
	if !configured {
		target = name
	}

	switch {
	case strings.HasPrefix(target, "!"):
		return target, nil
	case strings.HasPrefix(target, "#"):
		return d.resolveAlias(ctx, target)
	default:
		return "", fmt.Errorf("matrix resolve room %s: %w", name, otogi.ErrRoomNotFound)
	}
}

func (d *RoomDirectory) resolveAlias(ctx context.Context, alias string) (string, error) {
	resp, err := d.client.ResolveAlias(ctx, id.RoomAlias(alias))
	if err != nil {
		mapped := mapMatrixError(otogi.RoomStateOperationResolve, otogi.StateAddress{}, err)
		if otogi.IsStateNotFound(mapped) {
			return "", fmt.Errorf("matrix resolve alias %s: %w", alias, otogi.ErrRoomNotFound)
		}
		return "", fmt.Errorf("matrix resolve alias %s: %w", alias, mapped)
	}
	if resp == nil || resp.RoomID == "" {
		return "", fmt.Errorf("matrix resolve alias %s: %w", alias, otogi.ErrRoomNotFound)
	}

	return string(resp.RoomID), nil
}

var _ otogi.RoomResolver = (*RoomDirectory)(nil)
