package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"otogi-roomdb/internal/backend"
	"otogi-roomdb/pkg/roomdb"

	"github.com/caarlos0/env/v11"
)

const (
	envConfigFile           = "ROOMDB_CONFIG_FILE"
	defaultConfigFilePath   = "config/roomdb.json"
	alternateConfigFilePath = "bin/config/roomdb.json"
)

type appConfig struct {
	logLevel slog.Level
	backend  backend.Definition
	database roomdb.Config
}

type fileConfig struct {
	LogLevel string           `json:"log_level"`
	Backend  fileBackendEntry `json:"backend"`
	Database json.RawMessage  `json:"database"`
}

type fileBackendEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// envConfig holds process environment overrides applied after the config file.
type envConfig struct {
	LogLevel    string `env:"ROOMDB_LOG_LEVEL"`
	DefaultRoom string `env:"ROOMDB_DEFAULT_ROOM"`
}

type commandName string

const (
	commandGet    commandName = "get"
	commandPut    commandName = "put"
	commandDelete commandName = "delete"
)

type command struct {
	name  commandName
	key   string
	value json.RawMessage
	room  string
}

func run(args []string, stdout io.Writer) error {
	cmd, err := parseCommand(args)
	if err != nil {
		return err
	}

	registry, err := backend.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin backend registry: %w", err)
	}

	cfg, err := loadConfig(registry, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := registry.Build(ctx, cfg.backend, logger)
	if err != nil {
		return fmt.Errorf("build backend: %w", err)
	}
	defer func() {
		if err := runtime.Shutdown(); err != nil {
			logger.Warn("backend shutdown failed", "error", err)
		}
	}()

	database, err := buildDatabase(ctx, runtime, cfg, logger)
	if err != nil {
		return err
	}

	return executeCommand(ctx, database, cmd, stdout)
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, usageError("missing command")
	}

	cmd := command{name: commandName(strings.ToLower(strings.TrimSpace(args[0])))}
	rest := args[1:]
	switch cmd.name {
	case commandGet, commandDelete:
		if len(rest) < 1 || len(rest) > 2 {
			return command{}, usageError(fmt.Sprintf("%s takes <key> [room]", cmd.name))
		}
		cmd.key = rest[0]
		if len(rest) == 2 {
			cmd.room = rest[1]
		}
	case commandPut:
		if len(rest) < 2 || len(rest) > 3 {
			return command{}, usageError("put takes <key> <json-value> [room]")
		}
		cmd.key = rest[0]
		if !json.Valid([]byte(rest[1])) {
			return command{}, usageError(fmt.Sprintf("put value %q is not valid json", rest[1]))
		}
		cmd.value = json.RawMessage(rest[1])
		if len(rest) == 3 {
			cmd.room = rest[2]
		}
	default:
		return command{}, usageError(fmt.Sprintf("unknown command %q", args[0]))
	}

	if strings.TrimSpace(cmd.key) == "" {
		return command{}, usageError("key is required")
	}

	return cmd, nil
}

func usageError(reason string) error {
	return fmt.Errorf("%s; usage: roomdb get <key> [room] | put <key> <json-value> [room] | delete <key> [room]", reason)
}

func loadConfig(registry *backend.Registry, environ map[string]string) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := applyEnvOverrides(&cfg, environ); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,
		database: roomdb.DefaultConfig(),
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	enabled := true
	if parsed.Backend.Enabled != nil {
		enabled = *parsed.Backend.Enabled
	}
	if len(parsed.Backend.Config) == 0 {
		return fmt.Errorf("parse backend.config: required")
	}
	cfg.backend = backend.Definition{
		Name:    strings.TrimSpace(parsed.Backend.Name),
		Type:    strings.TrimSpace(parsed.Backend.Type),
		Enabled: enabled,
		Config:  append([]byte(nil), parsed.Backend.Config...),
	}

	database, err := roomdb.ParseConfig(parsed.Database)
	if err != nil {
		return fmt.Errorf("parse database: %w", err)
	}
	cfg.database = database

	return nil
}

// applyEnvOverrides applies ROOMDB_* variables. A nil environ reads the
// process environment.
func applyEnvOverrides(cfg *appConfig, environ map[string]string) error {
	if cfg == nil {
		return fmt.Errorf("apply env overrides: nil config")
	}

	var overrides envConfig
	if err := env.ParseWithOptions(&overrides, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if rawLevel := strings.TrimSpace(overrides.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse ROOMDB_LOG_LEVEL: %w", err)
		}
		cfg.logLevel = level
	}
	if room := strings.TrimSpace(overrides.DefaultRoom); room != "" {
		cfg.database.DefaultRoom = room
	}

	return nil
}

func validateAppConfig(cfg appConfig, registry *backend.Registry) error {
	if registry == nil {
		return fmt.Errorf("nil backend registry")
	}
	if cfg.backend.Name == "" {
		return fmt.Errorf("backend.name is required")
	}
	if cfg.backend.Type == "" {
		return fmt.Errorf("backend[%s].type is required", cfg.backend.Name)
	}
	if !cfg.backend.Enabled {
		return fmt.Errorf("backend[%s] is disabled", cfg.backend.Name)
	}

	known := false
	for _, backendType := range registry.Types() {
		if backendType == cfg.backend.Type {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("backend[%s].type: unsupported type %s", cfg.backend.Name, cfg.backend.Type)
	}
	if err := cfg.database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func buildDatabase(
	ctx context.Context,
	runtime backend.Runtime,
	cfg appConfig,
	logger *slog.Logger,
) (*roomdb.Database, error) {
	database, err := roomdb.New(
		runtime.Client,
		runtime.Rooms,
		roomdb.WithConfig(cfg.database),
		roomdb.WithLogger(logger.With("backend", runtime.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("new room state database: %w", err)
	}
	if err := database.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect room state database: %w", err)
	}

	return database, nil
}

func executeCommand(ctx context.Context, database *roomdb.Database, cmd command, stdout io.Writer) error {
	switch cmd.name {
	case commandGet:
		value, found, err := database.GetRoom(ctx, cmd.room, cmd.key)
		if err != nil {
			return fmt.Errorf("get %s in room %q: %w", cmd.key, targetRoom(database, cmd), err)
		}
		if !found {
			value = nil
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", cmd.key, err)
		}
		if _, err := fmt.Fprintln(stdout, string(encoded)); err != nil {
			return fmt.Errorf("write %s: %w", cmd.key, err)
		}
	case commandPut:
		decoder := json.NewDecoder(bytes.NewReader(cmd.value))
		decoder.UseNumber()
		var value any
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("decode value for %s: %w", cmd.key, err)
		}
		if err := database.PutRoom(ctx, cmd.room, cmd.key, value); err != nil {
			return fmt.Errorf("put %s in room %q: %w", cmd.key, targetRoom(database, cmd), err)
		}
	case commandDelete:
		if err := database.DeleteRoom(ctx, cmd.room, cmd.key); err != nil {
			return fmt.Errorf("delete %s in room %q: %w", cmd.key, targetRoom(database, cmd), err)
		}
	default:
		return fmt.Errorf("unsupported command %q", cmd.name)
	}

	return nil
}

// targetRoom names the room a command addresses, for error context.
func targetRoom(database *roomdb.Database, cmd command) string {
	if cmd.room != "" {
		return cmd.room
	}

	return database.Config().DefaultRoom
}
