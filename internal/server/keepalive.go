package server

import (
	"context"
	"net/http"
	"time"

	"github.com/subdex/subdex/internal/config"
)

// StartKeepalive periodically GETs pingURL until ctx is cancelled. Free-tier
// hosts idle processes out after a quiet period; pinging our own public URL
// keeps the process warm. A failed ping is logged and retried on the next
// tick, never fatal.
func StartKeepalive(ctx context.Context, pingURL string, interval time.Duration) {
	if pingURL == "" || interval <= 0 {
		return
	}
	logger := config.GetLogger()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, pingURL, nil)
				if err != nil {
					logger.Warn().Err(err).Str("url", pingURL).Msg("Keepalive request could not be built")
					continue
				}
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					logger.Warn().Err(err).Str("url", pingURL).Msg("Keepalive ping failed")
					continue
				}
				resp.Body.Close()
				logger.Debug().Int("status", resp.StatusCode).Msg("Keepalive ping sent")
			}
		}
	}()
}
