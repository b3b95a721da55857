// internal/database/store.go
package database

import (
	"context"
	"fmt"
)

// Store persists the ordered device list.
type Store interface {
	// Load returns the saved devices in their saved order.
	Load(ctx context.Context) ([]Device, error)
	// Save replaces the saved list with devices.
	Save(ctx context.Context, devices []Device) error

	// Close the underlying storage
	Close() error
}

// Options selects and configures a Store implementation.
type Options struct {
	Type string
	Path string
	DSN  string
}

// Open creates the store named by opts.Type.
func Open(opts Options) (Store, error) {
	switch opts.Type {
	case "", "boltdb":
		return NewBoltStore(opts.Path)
	case "json":
		return NewJSONStore(opts.Path)
	case "postgres":
		return NewPostgresStore(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", opts.Type)
	}
}
