package otogi

import "context"

// Database is the key/value persistence contract plugins expose to the host.
//
// Get reports found=false with a nil error when the key holds no value.
type Database interface {
	// Name returns a stable database identifier.
	Name() string
	// Connect binds the database to its host session. It performs no I/O.
	Connect(ctx context.Context) error
	// Get returns the value stored for key in the default room.
	Get(ctx context.Context, key string) (value any, found bool, err error)
	// Put inserts or merges value for key in the default room.
	Put(ctx context.Context, key string, value any) error
	// Delete removes the value stored for key in the default room.
	Delete(ctx context.Context, key string) error
}
