// Package pub provides the interface for snapshot row publishing.
package pub

import (
	"context"

	"github.com/grassrootseconomics/supply-snapshot/pkg/snapshot"
)

// Pub defines the interface for publishing completed snapshot rows to
// external systems.
type Pub interface {
	// Send publishes a row to the configured destination.
	Send(context.Context, snapshot.Row) error

	// Close closes the publisher and releases any resources.
	Close()
}
