package sqlitestate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// BackendType is the backend type token used in configuration.
	BackendType = "sqlite"
)

type runtimeConfig struct {
	Path  string            `json:"path"`
	Rooms map[string]string `json:"rooms"`
}

type parsedRuntimeConfig struct {
	path  string
	rooms map[string]string
}

// BuildRuntimeFromConfig opens a store from one backend config payload.
func BuildRuntimeFromConfig(name string, logger *slog.Logger, rawConfig []byte) (*Store, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("parse sqlite runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := Open(cfg.path, cfg.rooms)
	if err != nil {
		return nil, fmt.Errorf("open sqlite state store: %w", err)
	}

	logger.Info("sqlite backend configured",
		"backend", name,
		"path", cfg.path,
		"rooms", len(cfg.rooms),
	)

	return store, nil
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := parsedRuntimeConfig{
		path:  strings.TrimSpace(parsed.Path),
		rooms: make(map[string]string, len(parsed.Rooms)),
	}
	if cfg.path == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("path is required")
	}
	for name, target := range parsed.Rooms {
		name = strings.TrimSpace(name)
		target = strings.TrimSpace(target)
		if name == "" {
			return parsedRuntimeConfig{}, fmt.Errorf("rooms: empty room name")
		}
		if target == "" {
			return parsedRuntimeConfig{}, fmt.Errorf("rooms.%s: empty target", name)
		}
		cfg.rooms[name] = target
	}

	return cfg, nil
}
