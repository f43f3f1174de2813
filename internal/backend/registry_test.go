package backend

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"otogi-roomdb/pkg/otogi"
)

type stubStateClient struct{}

func (stubStateClient) GetState(context.Context, otogi.StateAddress) (otogi.StateContent, error) {
	return otogi.StateContent{}, nil
}

func (stubStateClient) SetState(context.Context, otogi.StateAddress, otogi.StateContent) error {
	return nil
}

type stubRooms struct{}

func (stubRooms) ResolveRoom(context.Context, string) (string, error) {
	return "!stub", nil
}

func stubBuilder(_ context.Context, definition Definition, _ *slog.Logger) (Runtime, error) {
	if definition.Name == "broken" {
		return Runtime{}, errors.New("broken build")
	}

	return Runtime{Client: stubStateClient{}, Rooms: stubRooms{}}, nil
}

func TestNewRegistryRejectsInvalidDescriptors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		descriptors []Descriptor
		wantErr     error
	}{
		{name: "empty type", descriptors: []Descriptor{{Builder: stubBuilder}}},
		{name: "nil builder", descriptors: []Descriptor{{Type: "stub"}}},
		{
			name: "duplicate type",
			descriptors: []Descriptor{
				{Type: "stub", Builder: stubBuilder},
				{Type: "stub", Builder: stubBuilder},
			},
			wantErr: otogi.ErrBackendAlreadyRegistered,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegistry(testCase.descriptors)
			if err == nil {
				t.Fatal("expected registry error")
			}
			if testCase.wantErr != nil && !errors.Is(err, testCase.wantErr) {
				t.Fatalf("error = %v, want %v", err, testCase.wantErr)
			}
		})
	}
}

func TestRegistryBuild(t *testing.T) {
	t.Parallel()

	closed := 0
	registry, err := NewRegistry([]Descriptor{
		{Type: "stub", Builder: stubBuilder},
		{
			Type: "half",
			Builder: func(context.Context, Definition, *slog.Logger) (Runtime, error) {
				return Runtime{
					Client: stubStateClient{},
					Close: func() error {
						closed++
						return nil
					},
				}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	runtime, err := registry.Build(context.Background(), Definition{
		Name:    "main",
		Type:    "stub",
		Enabled: true,
		Config:  []byte("{}"),
	}, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if runtime.Name != "main" {
		t.Fatalf("runtime name = %q, want main", runtime.Name)
	}
	if err := runtime.Shutdown(); err != nil {
		t.Fatalf("shutdown without closer failed: %v", err)
	}

	failures := []Definition{
		{Name: "", Type: "stub", Enabled: true},
		{Name: "off", Type: "stub", Enabled: false},
		{Name: "untyped", Enabled: true},
		{Name: "unknown", Type: "irc", Enabled: true},
		{Name: "broken", Type: "stub", Enabled: true},
		{Name: "half", Type: "half", Enabled: true},
	}
	for _, definition := range failures {
		if _, err := registry.Build(context.Background(), definition, slog.Default()); err == nil {
			t.Fatalf("build %+v error = nil, want error", definition)
		}
	}
	if closed != 1 {
		t.Fatalf("closed = %d, want 1 for rejected runtime", closed)
	}
}

func TestRegistryTypesSorted(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry([]Descriptor{
		{Type: "zulip", Builder: stubBuilder},
		{Type: "matrix", Builder: stubBuilder},
	})
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	types := registry.Types()
	if len(types) != 2 || types[0] != "matrix" || types[1] != "zulip" {
		t.Fatalf("types = %v, want [matrix zulip]", types)
	}

	var nilRegistry *Registry
	if nilRegistry.Types() != nil {
		t.Fatal("nil registry types must be nil")
	}
}
