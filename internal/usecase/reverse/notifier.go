package reverse

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fundmatch/internal/domain"
)

// LogNotifier records notifications in the service log. Delivery to LPs is
// handled downstream by whatever tails it.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.logger.Info("LP notification",
		zap.String("lp_id", note.LPID),
		zap.String("fund_id", note.FundID),
		zap.Int("fund_version", note.FundVersion),
		zap.Float64("score", note.Score),
	)
	return nil
}
