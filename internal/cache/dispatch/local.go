package dispatch

import (
	"context"
	"log/slog"

	"platbook/internal/cache/models"
)

// Local logs refresh requests instead of publishing them. Used when no
// brokers are configured, so single-node runs still surface what would have
// been requested.
type Local struct {
	logger *slog.Logger
}

func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{logger: logger}
}

func (l *Local) Dispatch(ctx context.Context, req models.RefreshRequest) error {
	l.logger.InfoContext(ctx, "refresh requested",
		slog.String("property_id", req.PropertyID.String()),
		slog.Int("fields", len(req.Fields)),
		slog.String("reason", req.Reason))
	return nil
}
