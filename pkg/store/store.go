package store

import (
	"github.com/llmkube/console/pkg/discovery"
)

// Store defines the interface for cache persistence. The discovery engine
// writes one envelope (the full stack set plus a timestamp) after each
// cluster pass and reads it once at process start.
type Store interface {
	SaveSnapshot(env *discovery.Envelope) error
	LoadSnapshot() (*discovery.Envelope, error)

	// Lifecycle
	Close() error
}
