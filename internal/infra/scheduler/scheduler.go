package scheduler

import (
	"context"
	"time"

	"tanda_circle_engine/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SweepScheduler runs the grace-period sweep on a cron cadence. The sweep
// is timer-driven, never request-driven, and safe to run concurrently with
// live contribution submissions: the per-cycle lock inside the service
// resolves ties in favor of any contribution recorded before the sweep's
// read.
type SweepScheduler struct {
	cronEngine    *cron.Cron
	circleService app.CircleService
	logger        *logrus.Logger
	cronSpecSweep string
}

func NewSweepScheduler(circleService app.CircleService, logger *logrus.Logger, cronSpecSweep string) *SweepScheduler {
	return &SweepScheduler{
		cronEngine:    cron.New(cron.WithLocation(time.Local)),
		circleService: circleService,
		logger:        logger,
		cronSpecSweep: cronSpecSweep,
	}
}

func (s *SweepScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpecSweep, func() {
		s.logger.Debug("grace-period sweep triggered")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.circleService.SweepDueCycles(ctx); err != nil {
			s.logger.WithError(err).Error("grace-period sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cronEngine.Start()
	s.logger.WithField("cron", s.cronSpecSweep).Info("sweep scheduler started")
	return nil
}

func (s *SweepScheduler) Stop() {
	s.logger.Info("stopping sweep scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.logger.Info("sweep scheduler stopped")
}
