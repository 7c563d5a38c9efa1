package feed

import (
	"context"
	"log"
	"time"

	"depin-engine-backend/internal/engine"
)

// Updater is the decision cycle the poller drives. The oracle
// integration satisfies it.
type Updater interface {
	Update(ctx context.Context, sources []Source) (accepted bool, aggregate int64, err error)
}

// Poller ticks the oracle integration against the configured sources.
type Poller struct {
	updater  Updater
	sources  []Source
	interval time.Duration
	enabled  bool
}

// NewPoller creates a poller. A non-positive interval disables it.
func NewPoller(updater Updater, sources []Source, interval time.Duration, enabled bool) *Poller {
	return &Poller{
		updater:  updater,
		sources:  sources,
		interval: interval,
		enabled:  enabled && interval > 0 && len(sources) > 0,
	}
}

// Run drives update cycles until the context is canceled.
func (p *Poller) Run(ctx context.Context) {
	if !p.enabled {
		log.Println("Feed poller is disabled. Not starting.")
		return
	}
	log.Println("Starting feed poller...")

	p.tick(ctx)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Feed poller shutting down.")
			return
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.interval)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	accepted, aggregate, err := p.updater.Update(ctx, p.sources)
	switch {
	case engine.KindOf(err) == engine.KindTooEarly:
		// The on-chain interval has not elapsed yet; nothing happened.
	case err != nil:
		log.Printf("Feed update cycle failed: %v", err)
	case accepted:
		log.Printf("Feed update accepted, value is now %d", aggregate)
	default:
		log.Printf("Feed update rejected out of tolerance, aggregate was %d", aggregate)
	}
}
