package scheduling

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper runs the periodic housekeeping jobs: completing appointments whose
// date has passed and dropping idle booking flows.
type Sweeper struct {
	svc     *Service
	flows   *FlowStore
	logger  zerolog.Logger
	timeout time.Duration
}

func NewSweeper(svc *Service, flows *FlowStore, logger zerolog.Logger) *Sweeper {
	return &Sweeper{svc: svc, flows: flows, logger: logger, timeout: time.Minute}
}

// Run performs one sweep.
func (w *Sweeper) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	completed, err := w.svc.CompletePastAppointments(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Int("completed", completed).Msg("sweep: complete past appointments")
	}
	purged := w.flows.Purge()
	if completed > 0 || purged > 0 {
		w.logger.Info().Int("completed", completed).Int("flows_purged", purged).Msg("sweep finished")
	}
}

// Schedule registers the sweep on a new cron scheduler using spec, for
// example "@every 15m". The caller starts and stops the scheduler.
func (w *Sweeper) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { w.Run(context.Background()) }); err != nil {
		return nil, err
	}
	return c, nil
}
