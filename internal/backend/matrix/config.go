package matrix

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultRequestTimeout = 30 * time.Second

type runtimeConfig struct {
	Homeserver     string            `json:"homeserver"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"access_token"`
	Rooms          map[string]string `json:"rooms"`
	RequestTimeout string            `json:"request_timeout"`
}

// envOverrides holds secrets that should not live in the config file.
type envOverrides struct {
	Homeserver  string `env:"ROOMDB_MATRIX_HOMESERVER"`
	AccessToken string `env:"ROOMDB_MATRIX_ACCESS_TOKEN"`
}

type parsedRuntimeConfig struct {
	homeserver     string
	userID         string
	accessToken    string
	rooms          map[string]string
	requestTimeout time.Duration
}

// parseRuntimeConfig decodes raw and applies environment overrides.
//
// A nil environ reads the process environment.
func parseRuntimeConfig(raw []byte, environ map[string]string) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Environment: environ}); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := parsedRuntimeConfig{
		homeserver:     strings.TrimSpace(parsed.Homeserver),
		userID:         strings.TrimSpace(parsed.UserID),
		accessToken:    strings.TrimSpace(parsed.AccessToken),
		rooms:          make(map[string]string, len(parsed.Rooms)),
		requestTimeout: defaultRequestTimeout,
	}
	if homeserver := strings.TrimSpace(overrides.Homeserver); homeserver != "" {
		cfg.homeserver = homeserver
	}
	if token := strings.TrimSpace(overrides.AccessToken); token != "" {
		cfg.accessToken = token
	}

	for name, target := range parsed.Rooms {
		name = strings.TrimSpace(name)
		target = strings.TrimSpace(target)
		if name == "" {
			return parsedRuntimeConfig{}, fmt.Errorf("rooms: empty room name")
		}
		if !strings.HasPrefix(target, "!") && !strings.HasPrefix(target, "#") {
			return parsedRuntimeConfig{}, fmt.Errorf("rooms.%s: %q is neither a room id nor an alias", name, target)
		}
		cfg.rooms[name] = target
	}

	if timeout := strings.TrimSpace(parsed.RequestTimeout); timeout != "" {
		parsedTimeout, err := time.ParseDuration(timeout)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		if parsedTimeout <= 0 {
			return parsedRuntimeConfig{}, fmt.Errorf("parse request_timeout: must be > 0")
		}
		cfg.requestTimeout = parsedTimeout
	}

	if cfg.homeserver == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("homeserver is required")
	}
	homeserverURL, err := url.Parse(cfg.homeserver)
	if err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("parse homeserver: %w", err)
	}
	if homeserverURL.Scheme != "http" && homeserverURL.Scheme != "https" {
		return parsedRuntimeConfig{}, fmt.Errorf("homeserver must be an http or https url")
	}
	if cfg.accessToken == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("access_token is required")
	}

	return cfg, nil
}
