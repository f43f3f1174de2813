package sqlitestate

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"otogi-roomdb/pkg/otogi"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// connectionPragmas is applied by the driver to every pooled connection.
const connectionPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// Store persists room state events and room aliases in SQLite.
type Store struct {
	sqlDB *sql.DB
	rooms map[string]string
	now   func() time.Time
}

// Open opens a room state SQLite store and applies the bundled schema.
//
// rooms maps configured room names to aliases or room ids.
func Open(path string, rooms map[string]string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?" + connectionPragmas
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cloned := make(map[string]string, len(rooms))
	for name, target := range rooms {
		cloned[name] = target
	}

	return &Store{
		sqlDB: sqlDB,
		rooms: cloned,
		now:   time.Now,
	}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetState loads the content stored at address.
func (s *Store) GetState(ctx context.Context, address otogi.StateAddress) (otogi.StateContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if err := address.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite get state: %w", err)
	}

	var raw string
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT content
FROM room_state
WHERE room_id = ? AND event_type = ? AND state_key = ?
`, address.RoomID, address.EventType, address.StateKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &otogi.RoomStateError{
			Operation: otogi.RoomStateOperationGet,
			Kind:      otogi.RoomStateErrorKindNotFound,
			Address:   address,
			Cause:     err,
		}
	}
	if err != nil {
		return nil, &otogi.RoomStateError{
			Operation: otogi.RoomStateOperationGet,
			Kind:      otogi.RoomStateErrorKindUnknown,
			Address:   address,
			Cause:     err,
		}
	}

	content := otogi.StateContent{}
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&content); err != nil {
		return nil, fmt.Errorf("sqlite get state %s: decode content: %w", address, err)
	}
	if content == nil {
		content = otogi.StateContent{}
	}

	return content, nil
}

// SetState replaces the content stored at address.
func (s *Store) SetState(ctx context.Context, address otogi.StateAddress, content otogi.StateContent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := address.Validate(); err != nil {
		return fmt.Errorf("sqlite set state: %w", err)
	}
	if content == nil {
		content = otogi.StateContent{}
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("sqlite set state %s: encode content: %w", address, err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO room_state (
	room_id,
	event_type,
	state_key,
	content,
	updated_at
) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(room_id, event_type, state_key) DO UPDATE SET
	content = excluded.content,
	updated_at = excluded.updated_at
`,
		address.RoomID,
		address.EventType,
		address.StateKey,
		string(encoded),
		s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return &otogi.RoomStateError{
			Operation: otogi.RoomStateOperationSet,
			Kind:      otogi.RoomStateErrorKindUnknown,
			Address:   address,
			Cause:     err,
		}
	}

	return nil
}

// SetAlias points alias at roomID, replacing any previous mapping.
func (s *Store) SetAlias(ctx context.Context, alias string, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	alias = strings.TrimSpace(alias)
	roomID = strings.TrimSpace(roomID)
	if alias == "" {
		return fmt.Errorf("alias is required")
	}
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO room_aliases (alias, room_id) VALUES (?, ?)
ON CONFLICT(alias) DO UPDATE SET room_id = excluded.room_id
`, alias, roomID)
	if err != nil {
		return fmt.Errorf("set alias %s: %w", alias, err)
	}

	return nil
}

// ResolveRoom maps a configured name, alias, or room id to a room id.
func (s *Store) ResolveRoom(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}

	target, configured := s.rooms[name]
	if !configured {
		target = name
	}
	if strings.HasPrefix(target, "!") {
		return target, nil
	}

	var roomID string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT room_id FROM room_aliases WHERE alias = ?`, target).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sqlite resolve room %s: %w", name, otogi.ErrRoomNotFound)
	}
	if err != nil {
		return "", &otogi.RoomStateError{
			Operation: otogi.RoomStateOperationResolve,
			Kind:      otogi.RoomStateErrorKindUnknown,
			Cause:     err,
		}
	}

	return roomID, nil
}

var (
	_ otogi.RoomStateClient = (*Store)(nil)
	_ otogi.RoomResolver    = (*Store)(nil)
)
