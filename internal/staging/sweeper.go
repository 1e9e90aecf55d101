package staging

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSpec runs the sweep every ten minutes.
const DefaultSweepSpec = "@every 10m"

// Sweeper periodically drops expired entries from a Purger backend.
type Sweeper struct {
	purger Purger
	cron   *cron.Cron
	log    zerolog.Logger
	now    func() time.Time
}

// NewSweeper creates a sweeper that calls purger on the given cron spec.
func NewSweeper(purger Purger, spec string, log zerolog.Logger) (*Sweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	s := &Sweeper{
		purger: purger,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		log:    log,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("Staging sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("NewSweeper: invalid spec %q: %w", spec, err)
	}
	return s, nil
}

// Sweep purges expired entries once.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.purger.Purge(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("Sweep: %w", err)
	}
	if n > 0 {
		s.log.Info().Int("purged", n).Msg("Expired staging entries removed")
	}
	return n, nil
}

// Start begins the schedule in its own goroutine.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
