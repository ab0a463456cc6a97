// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes codes that expired before now.
type Purger interface {
	PurgeExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}

// RunJanitor purges expired codes every interval until ctx is done.
func RunJanitor(ctx context.Context, p Purger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.PurgeExpiredCodes(ctx, now)
			if err != nil {
				slog.Error("verification_purge_failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("verification_purged", "count", n)
			}
		}
	}
}
