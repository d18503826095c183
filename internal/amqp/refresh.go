package amqp

import (
	"context"
	"log/slog"
)

// Invalidator drops state derived from the dataset. *service.Service implements it.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// InvalidateOnRefresh returns a Handler that invalidates inv for every
// message and then calls onRefresh, if set.
func InvalidateOnRefresh(inv Invalidator, onRefresh func(), logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, msg *RefreshMessage) error {
		inv.Invalidate(ctx)
		if onRefresh != nil {
			onRefresh()
		}
		logger.InfoContext(ctx, "Dataset refreshed, derived state invalidated",
			"id", msg.ID,
			"reason", msg.Reason,
			"published_at", msg.Timestamp)
		return nil
	}
}
