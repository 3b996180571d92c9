package feedback

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cognicore/redline/pkg/redline/internalerr"
)

// DefaultCalibrationSchedule runs calibration every 30 minutes.
const DefaultCalibrationSchedule = "*/30 * * * *"

// Scheduler runs threshold calibration on a cron cadence, keeping it out
// of the request path.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler validates the schedule and wires it to the service. The
// schedule is a standard 5-field cron expression (minute hour day-of-month
// month day-of-week); empty means DefaultCalibrationSchedule.
func NewScheduler(svc *Service, schedule string, log *zap.Logger) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultCalibrationSchedule
	}
	if log == nil {
		log = zap.NewNop()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("%w: calibration schedule %q: %v", internalerr.ErrInvalidConfig, schedule, err)
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		report, err := svc.Calibrate(context.Background())
		if err != nil {
			log.Warn("scheduled calibration failed", zap.Error(err))
			return
		}
		log.Info("scheduled calibration finished",
			zap.Int("evaluated", report.Evaluated),
			zap.Int("flagged", report.Flagged),
			zap.Int("changed", report.Changed))
	}); err != nil {
		return nil, err
	}

	log.Info("calibration scheduled", zap.String("cron", schedule))
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins scheduling.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop ends scheduling and waits for a running calibration to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
