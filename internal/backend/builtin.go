package backend

import (
	"context"
	"fmt"
	"log/slog"

	"otogi-roomdb/internal/backend/boltstate"
	"otogi-roomdb/internal/backend/matrix"
	"otogi-roomdb/internal/backend/sqlitestate"
)

// NewBuiltinRegistry constructs the backend registry with all built-in backends.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry([]Descriptor{
		{
			Type: matrix.BackendType,
			Builder: func(
				_ context.Context,
				definition Definition,
				builderLogger *slog.Logger,
			) (Runtime, error) {
				stateClient, directory, err := matrix.BuildRuntimeFromConfig(
					definition.Name,
					builderLogger,
					definition.Config,
				)
				if err != nil {
					return Runtime{}, fmt.Errorf("build matrix runtime from config: %w", err)
				}

				return Runtime{
					Client: stateClient,
					Rooms:  directory,
					Close:  stateClient.Close,
				}, nil
			},
		},
		{
			Type: boltstate.BackendType,
			Builder: func(
				_ context.Context,
				definition Definition,
				builderLogger *slog.Logger,
			) (Runtime, error) {
				store, err := boltstate.BuildRuntimeFromConfig(
					definition.Name,
					builderLogger,
					definition.Config,
				)
				if err != nil {
					return Runtime{}, fmt.Errorf("build bolt runtime from config: %w", err)
				}

				return Runtime{
					Client: store,
					Rooms:  store,
					Close:  store.Close,
				}, nil
			},
		},
		{
			Type: sqlitestate.BackendType,
			Builder: func(
				_ context.Context,
				definition Definition,
				builderLogger *slog.Logger,
			) (Runtime, error) {
				store, err := sqlitestate.BuildRuntimeFromConfig(
					definition.Name,
					builderLogger,
					definition.Config,
				)
				if err != nil {
					return Runtime{}, fmt.Errorf("build sqlite runtime from config: %w", err)
				}

				return Runtime{
					Client: store,
					Rooms:  store,
					Close:  store.Close,
				}, nil
			},
		},
	})
}
