// Package provider defines the config source abstraction.
//
// A Provider loads raw configuration bytes and optionally watches the
// source for changes. The file provider is the only implementation;
// the interface keeps the loader testable without touching disk.
package provider

import (
	"context"
)

// Provider abstracts config sources.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes and signals via the returned channel.
	// The channel receives a value when config changes.
	// Cancel the context to stop watching.
	// Returns nil channel if watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}
