package roomdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultEventType is the state event type used when none is configured.
	DefaultEventType = "opsdroid.database"
	// DefaultRoom is the room name used when callers do not override it.
	DefaultRoom = "main"
)

// AddressingMode selects how application keys map onto state entries.
type AddressingMode int

const (
	// ModeSingleKey stores every key of a room in one mapping at state key "".
	ModeSingleKey AddressingMode = iota
	// ModePerKey stores each key in its own state entry.
	ModePerKey
)

// String returns the configuration token for m.
func (m AddressingMode) String() string {
	switch m {
	case ModeSingleKey:
		return "single_key"
	case ModePerKey:
		return "per_key"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Config is the immutable addressing configuration of one Database.
type Config struct {
	// DefaultRoom is a room name, alias, or canonical id used when no room is given.
	DefaultRoom string
	// EventType namespaces every state entry written by the database.
	EventType string
	// Mode selects single-key or per-key addressing.
	Mode AddressingMode
	// FixedStateKey replaces the application key as state key in per-key mode.
	FixedStateKey string
}

// DefaultConfig returns single-key addressing in room "main".
func DefaultConfig() Config {
	return Config{
		DefaultRoom: DefaultRoom,
		EventType:   DefaultEventType,
		Mode:        ModeSingleKey,
	}
}

// Validate checks that cfg can address state entries.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DefaultRoom) == "" {
		return fmt.Errorf("default_room is required")
	}
	if strings.TrimSpace(c.EventType) == "" {
		return fmt.Errorf("state_key is required")
	}
	switch c.Mode {
	case ModeSingleKey:
		if c.FixedStateKey != "" {
			return fmt.Errorf("fixed state key requires per-key mode")
		}
	case ModePerKey:
	default:
		return fmt.Errorf("unsupported addressing mode %s", c.Mode)
	}

	return nil
}

type fileConfig struct {
	DefaultRoom    *string         `json:"default_room"`
	SingleStateKey json.RawMessage `json:"single_state_key"`
	StateKey       *string         `json:"state_key"`
	EventType      *string         `json:"event_type"`
}

// ParseConfig decodes a JSON database configuration on top of DefaultConfig.
//
// An empty payload yields the defaults. single_state_key accepts true
// (single-key mode), false or "" (per-key mode keyed by application key), or a
// string (per-key mode with that fixed state key).
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}

	var parsed fileConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	if parsed.DefaultRoom != nil {
		cfg.DefaultRoom = strings.TrimSpace(*parsed.DefaultRoom)
	}
	if parsed.StateKey != nil {
		cfg.EventType = strings.TrimSpace(*parsed.StateKey)
	}
	if parsed.EventType != nil {
		cfg.EventType = strings.TrimSpace(*parsed.EventType)
	}
	if err := applySingleStateKey(&cfg, parsed.SingleStateKey); err != nil {
		return Config{}, fmt.Errorf("parse single_state_key: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applySingleStateKey(cfg *Config, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var flag bool
	if err := json.Unmarshal(trimmed, &flag); err == nil {
		if flag {
			cfg.Mode = ModeSingleKey
		} else {
			cfg.Mode = ModePerKey
		}
		cfg.FixedStateKey = ""
		return nil
	}

	var fixed string
	if err := json.Unmarshal(trimmed, &fixed); err != nil {
		return fmt.Errorf("must be a boolean or string")
	}
	cfg.Mode = ModePerKey
	cfg.FixedStateKey = strings.TrimSpace(fixed)

	return nil
}
