package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"otogi-roomdb/pkg/otogi"
)

// Definition describes one configured backend entry.
type Definition struct {
	// Name is the stable configured backend instance identifier.
	Name string
	// Type identifies which builder should construct this runtime.
	Type string
	// Enabled controls whether this definition is active.
	Enabled bool
	// Config stores backend-type-specific JSON payload.
	Config []byte
}

// Runtime contains one fully built backend runtime instance.
type Runtime struct {
	// Name is the configured backend instance identifier.
	Name string
	// Client reads and writes room state.
	Client otogi.RoomStateClient
	// Rooms resolves room names and aliases to room ids.
	Rooms otogi.RoomResolver
	// Close releases backend resources. It may be nil.
	Close func() error
}

// Shutdown releases runtime resources when the backend provided a closer.
func (r Runtime) Shutdown() error {
	if r.Close == nil {
		return nil
	}
	if err := r.Close(); err != nil {
		return fmt.Errorf("close backend %s: %w", r.Name, err)
	}

	return nil
}

// BuilderFunc builds one runtime from one configured backend definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds one backend type token to a runtime builder.
type Descriptor struct {
	// Type is the backend type token from configuration (for example "matrix").
	Type string
	// Builder constructs one runtime instance for this backend type.
	Builder BuilderFunc
}

// Registry maps backend types to runtime builders.
type Registry struct {
	builders map[string]BuilderFunc
	types    []string
}

// NewRegistry creates one immutable backend registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	builders := make(map[string]BuilderFunc, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if descriptor.Builder == nil {
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := builders[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: %w", descriptor.Type, otogi.ErrBackendAlreadyRegistered)
		}

		builders[descriptor.Type] = descriptor.Builder
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{
		builders: builders,
		types:    types,
	}, nil
}

// Types returns all registered backend types in deterministic sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	types := make([]string, len(r.types))
	copy(types, r.types)

	return types
}

// Build builds one backend definition.
//
// Disabled definitions are rejected; the host runs exactly one backend.
func (r *Registry) Build(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	if r == nil {
		return Runtime{}, fmt.Errorf("build backend: nil registry")
	}
	if definition.Name == "" {
		return Runtime{}, fmt.Errorf("build backend: empty name")
	}
	if !definition.Enabled {
		return Runtime{}, fmt.Errorf("build backend %s: disabled", definition.Name)
	}
	if definition.Type == "" {
		return Runtime{}, fmt.Errorf("build backend %s: empty type", definition.Name)
	}

	builder, exists := r.builders[definition.Type]
	if !exists {
		return Runtime{}, fmt.Errorf("build backend %s type %s: unsupported type", definition.Name, definition.Type)
	}
	if logger == nil {
		logger = slog.Default()
	}

	runtime, err := builder(ctx, definition, logger)
	if err != nil {
		return Runtime{}, fmt.Errorf("build backend %s type %s: %w", definition.Name, definition.Type, err)
	}
	if runtime.Client == nil {
		_ = runtime.Shutdown()
		return Runtime{}, fmt.Errorf("build backend %s type %s: nil state client", definition.Name, definition.Type)
	}
	if runtime.Rooms == nil {
		_ = runtime.Shutdown()
		return Runtime{}, fmt.Errorf("build backend %s type %s: nil room resolver", definition.Name, definition.Type)
	}
	if runtime.Name == "" {
		runtime.Name = definition.Name
	}

	return runtime, nil
}
