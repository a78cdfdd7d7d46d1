package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// Nil functions are skipped.
type StatsSource struct {
	ReportCountsByStatus func() map[string]int
	DictionarySize       func() int
	QueueDepth           func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.ReportCountsByStatus != nil {
		for status, count := range src.ReportCountsByStatus() {
			ReportsByStatus.WithLabelValues(status).Set(float64(count))
		}
	}
	if src.DictionarySize != nil {
		DictionaryTerms.Set(float64(src.DictionarySize()))
	}
	if src.QueueDepth != nil {
		WorkerQueueDepth.Set(float64(src.QueueDepth()))
	}
}
