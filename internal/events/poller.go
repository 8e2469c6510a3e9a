package events

import (
	"context"
	"time"

	"github.com/ziadkadry99/cineforum/internal/logging"
)

// Poller periodically closes voting on events past their deadline.
type Poller struct {
	svc      *Service
	interval time.Duration
}

// NewPoller creates a poller. A non-positive interval defaults to 60s.
func NewPoller(svc *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{svc: svc, interval: interval}
}

// Run checks once immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	log := logging.With().Str("component", "event-poller").Logger()
	log.Info().Dur("interval", p.interval).Msg("deadline poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("deadline poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	n, err := p.svc.CloseExpiredVoting(ctx, p.svc.now())
	if err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("deadline check failed")
	}
	if n > 0 {
		logging.Info().Int("events", n).Msg("voting closed by deadline")
	}
}
