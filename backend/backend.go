package backend

import (
	"context"

	"pnp-bridge/models"
)

// Snapshot holds hardware state values returned by a state query, keyed by
// the selector that produced them.
type Snapshot map[string]interface{}

// MotionBackend is the downstream motion-control boundary. It is the
// system's sole source of physical truth; everything above it only caches.
type MotionBackend interface {
	// Execute submits an assembled instruction sequence atomically.
	Execute(ctx context.Context, seq models.InstructionSequence) error
	// QueryState fetches current values for the given selectors.
	QueryState(ctx context.Context, selectors []string) (Snapshot, error)
	// EmergencyStop halts the machine immediately.
	EmergencyStop(ctx context.Context) error
}
