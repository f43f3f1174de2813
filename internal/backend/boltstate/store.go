package boltstate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"otogi-roomdb/pkg/otogi"

	bbolt "go.etcd.io/bbolt"
)

const (
	boltFileMode     os.FileMode = 0o600
	stateBucketName              = "room_state"
	aliasBucketName              = "room_aliases"
	addressSeparator             = "\x00"
)

var (
	boltTimeout    = 5 * time.Second
	errStoreClosed = errors.New("boltstate: store is closed")
)

// Store persists room state events and room aliases in one bbolt file.
//
// bbolt allows a single writer and many readers; only the closed flag is
// guarded here.
type Store struct {
	db     *bbolt.DB
	rooms  map[string]string
	closed atomic.Bool
}

// Open opens or creates the bbolt file at path.
//
// rooms maps configured room names to aliases or room ids.
func Open(path string, rooms map[string]string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create boltdb directory: %w", err)
	}

	db, err := bbolt.Open(cleanPath, boltFileMode, &bbolt.Options{Timeout: boltTimeout})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{stateBucketName, aliasBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize boltdb buckets: %w", err)
	}

	cloned := make(map[string]string, len(rooms))
	for name, target := range rooms {
		cloned[name] = target
	}

	return &Store{db: db, rooms: cloned}, nil
}

// Close releases the bbolt file lock. The file is kept.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.closed.Swap(true) {
		return nil
	}

	return s.db.Close()
}

// GetState loads the content stored at address.
func (s *Store) GetState(ctx context.Context, address otogi.StateAddress) (otogi.StateContent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := address.Validate(); err != nil {
		return nil, fmt.Errorf("bolt get state: %w", err)
	}

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", stateBucketName)
		}
		if value := bucket.Get(stateKey(address)); value != nil {
			raw = append([]byte(nil), value...)
		}
		return nil
	})
	if err != nil {
		return nil, &otogi.RoomStateError{
			Operation: otogi.RoomStateOperationGet,
			Kind:      otogi.RoomStateErrorKindUnknown,
			Address:   address,
			Cause:     err,
		}
	}
	if raw == nil {
		return nil, &otogi.RoomStateError{
			Operation: otogi.RoomStateOperationGet,
			Kind:      otogi.RoomStateErrorKindNotFound,
			Address:   address,
		}
	}

	content := otogi.StateContent{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&content); err != nil {
		return nil, fmt.Errorf("bolt get state %s: decode content: %w", address, err)
	}
	if content == nil {
		content = otogi.StateContent{}
	}

	return content, nil
}

// SetState replaces the content stored at address.
func (s *Store) SetState(ctx context.Context, address otogi.StateAddress, content otogi.StateContent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := address.Validate(); err != nil {
		return fmt.Errorf("bolt set state: %w", err)
	}
	if content == nil {
		content = otogi.StateContent{}
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("bolt set state %s: encode content: %w", address, err)
	}

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(stateBucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", stateBucketName)
		}
		return bucket.Put(stateKey(address), encoded)
	}); err != nil {
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
	if err := s.ready(ctx); err != nil {
		return err
	}

	alias = strings.TrimSpace(alias)
	roomID = strings.TrimSpace(roomID)
	if alias == "" {
		return fmt.Errorf("alias is required")
	}
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(aliasBucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", aliasBucketName)
		}
		return bucket.Put([]byte(alias), []byte(roomID))
	})
}

// ResolveRoom maps a configured name, alias, or room id to a room id.
func (s *Store) ResolveRoom(ctx context.Context, name string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}

	target, configured := s.rooms[name]
	if !configured {
		target = name
	}
	if strings.HasPrefix(target, "!") {
		return target, nil
	}

	var roomID string
	if err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(aliasBucketName))
		if bucket == nil {
			return fmt.Errorf("bucket %q missing", aliasBucketName)
		}
		roomID = string(bucket.Get([]byte(target)))
		return nil
	}); err != nil {
		return "", fmt.Errorf("bolt resolve room %s: %w", name, err)
	}
	if roomID == "" {
		return "", fmt.Errorf("bolt resolve room %s: %w", name, otogi.ErrRoomNotFound)
	}

	return roomID, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil || s.closed.Load() {
		return errStoreClosed
	}

	return nil
}

// stateKey joins the address fields with NUL, which cannot occur in room ids
// or event types.
func stateKey(address otogi.StateAddress) []byte {
	return []byte(address.RoomID + addressSeparator + address.EventType + addressSeparator + address.StateKey)
}

var (
	_ otogi.RoomStateClient = (*Store)(nil)
	_ otogi.RoomResolver    = (*Store)(nil)
)
