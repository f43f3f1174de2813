package matrix

import (
	"fmt"
	"log/slog"
	"net/http"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

const (
	// BackendType is the backend type token used in configuration.
	BackendType = "matrix"
)

// BuildRuntimeFromConfig builds a state client and room directory from one
// backend config payload.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (*StateClient, *RoomDirectory, error) {
	cfg, err := parseRuntimeConfig(rawConfig, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("parse matrix runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := newMautrixClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	stateClient, err := NewStateClient(client, WithStateClientLogger(logger.With("backend", name)))
	if err != nil {
		return nil, nil, fmt.Errorf("new matrix state client: %w", err)
	}
	directory, err := NewRoomDirectory(client, cfg.rooms)
	if err != nil {
		return nil, nil, fmt.Errorf("new matrix room directory: %w", err)
	}

	logger.Info("matrix backend configured",
		"backend", name,
		"homeserver", cfg.homeserver,
		"user_id", cfg.userID,
		"rooms", len(cfg.rooms),
	)

	return stateClient, directory, nil
}

func newMautrixClient(cfg parsedRuntimeConfig) (*mautrix.Client, error) {
	client, err := mautrix.NewClient(cfg.homeserver, id.UserID(cfg.userID), cfg.accessToken)
	if err != nil {
		return nil, fmt.Errorf("new mautrix client: %w", err)
	}
	client.Client = &http.Client{Timeout: cfg.requestTimeout}

	return client, nil
}
