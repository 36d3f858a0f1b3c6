// Package notify mirrors queue snapshots to an external pub/sub channel so
// lobby displays that cannot hold an SSE connection still see updates.
package notify

import (
	"context"
	"log/slog"

	"queue-system/config"
	"queue-system/models"
)

// Notifier pushes a scope's snapshot to the external channel. Failures are
// the notifier's problem: delivery here is best-effort and never blocks the
// serving path.
type Notifier interface {
	PublishSnapshot(ctx context.Context, scope models.ServiceScope, snap models.Snapshot) error
	Close()
}

// New selects the provider from configuration: PubNub when a key pair is
// present, otherwise the no-op.
func New(cfg *config.Config) Notifier {
	if cfg.NotifierConfigured() {
		slog.Info("snapshot mirror enabled", "provider", "pubnub")
		return NewPubNub(cfg)
	}
	slog.Info("snapshot mirror disabled, no provider keys configured")
	return Noop{}
}
