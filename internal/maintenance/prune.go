package maintenance

import (
	"context"
	"log/slog"
	"time"

	sl "account_service/internal/lib/logger"
)

type TokenPruner interface {
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

// RunTokenPruner periodically deletes expired durable token rows. The cache
// mirrors expire on their own via TTL. Failures are logged and the loop
// keeps running; it exits when ctx is cancelled.
func RunTokenPruner(ctx context.Context, log *slog.Logger, store TokenPruner, interval time.Duration) {
	const op = "maintenance.RunTokenPruner"

	log = log.With(slog.String("op", op))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("token pruner stopped")
			return
		case <-ticker.C:
			deleted, err := store.DeleteExpiredTokens(ctx)
			if err != nil {
				log.Error("token pruning failed", sl.Err(err))
				continue
			}

			log.Info("pruned expired tokens", slog.Int64("deleted", deleted))
		}
	}
}
