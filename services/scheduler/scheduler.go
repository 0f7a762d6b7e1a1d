package schedsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
	"github.com/greesoft/canteen/core/term"
)

// RecordGenerator creates the pending records of a day.
type RecordGenerator interface {
	GenerateDaily(ctx context.Context, gr record.GenerateRecords) (record.GenerateResult, error)
}

// Scheduler runs the daily record generation on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	gen     RecordGenerator
	logger  core.Logger
	timeout time.Duration
}

func New(conf *core.Config, gen RecordGenerator, logger core.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(conf.Location()),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		gen:     gen,
		logger:  logger,
		timeout: 5 * time.Minute,
	}
	if _, err := s.cron.AddFunc(conf.Canteen.DailyRecordsSchedule, s.GenerateToday); err != nil {
		return nil, errors.Wrapf(err, "scheduling daily records at %q", conf.Canteen.DailyRecordsSchedule)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for the running one, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// GenerateToday creates today's records for every class. Days outside the active term are skipped.
func (s *Scheduler) GenerateToday() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.gen.GenerateDaily(ctx, record.GenerateRecords{})
	if err != nil {
		if errors.Cause(err) == term.ErrNoCurrent {
			s.logger.Info("daily records: no active term covers today, skipping")
			return
		}
		s.logger.Error(fmt.Sprintf("daily records: %v", err), err)
		return
	}
	s.logger.Info(
		fmt.Sprintf("daily records: %d created, %d skipped", res.CreatedRecords, len(res.SkippedRecords)),
		map[string]interface{}{"date": res.Date.Format(core.DayLayout)},
	)
}
