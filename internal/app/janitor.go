package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor periodically sweeps calls that were never answered or never
// hung up, so the registry is not left with orphaned ringing calls.
type Janitor struct {
	engine   *Engine
	interval time.Duration
}

func NewJanitor(engine *Engine, interval time.Duration) *Janitor {
	return &Janitor{engine: engine, interval: interval}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.janitor").Msg("janitor stopped")
			return
		case <-ticker.C:
			if n := j.engine.SweepStale(); n > 0 {
				log.Info().Str("module", "app.janitor").Int("ended", n).Msg("swept stale calls")
			}
		}
	}
}
