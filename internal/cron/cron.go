package cron

import (
	"fmt"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/mailbridge/mailbridge/internal/logger"
	"github.com/mailbridge/mailbridge/internal/tracing"
)

// Schedules owned by the manager. The poll interval comes from
// configuration; the retention sweep is fixed at once a day.
const sweepSchedule = "@every 24h"

// CronManager drives the relay's two timers: the poll cycle and the
// daily retention sweep. The SkipIfStillRunning chain guarantees a
// slow cycle is never overlapped by the next tick.
type CronManager struct {
	log    logger.Logger
	cron   *cronv3.Cron
	jobIDs map[string]cronv3.EntryID
}

func NewCronManager(log logger.Logger) *CronManager {
	return &CronManager{
		log:    log,
		jobIDs: make(map[string]cronv3.EntryID),
	}
}

// Start registers and starts both jobs. pollIntervalSeconds drives
// the cycle cadence; runCycle and runSweep are invoked with panic
// recovery.
func (cm *CronManager) Start(pollIntervalSeconds int, runCycle func(), runSweep func()) error {
	cronOptions := []cronv3.Option{
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)

	pollSchedule := fmt.Sprintf("@every %ds", pollIntervalSeconds)
	id, err := c.AddFunc(pollSchedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		runCycle()
	})
	if err != nil {
		return err
	}
	cm.jobIDs["poll"] = id
	cm.log.Infof("Registered poll job with schedule: %s", pollSchedule)

	id, err = c.AddFunc(sweepSchedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		runSweep()
	})
	if err != nil {
		return err
	}
	cm.jobIDs["retention_sweep"] = id
	cm.log.Infof("Registered retention sweep job with schedule: %s", sweepSchedule)

	c.Start()
	cm.cron = c
	return nil
}

// Stop cancels both schedules. It does not wait for an in-flight job;
// a running cycle completes or fails on its own.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		cm.cron.Stop()
	}
}
