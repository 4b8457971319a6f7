package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/heureca/wppgateway/pkg/common"
)

// UsageRetentionDays is how long per-session usage rows are kept. Quotas only
// ever read today's row; older rows exist for reporting.
const UsageRetentionDays = 90

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		go a.schedSystemMonitorTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		a.schedUsageRetentionTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

func (a *Application) schedSystemMonitorTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	if a.collector != nil {
		a.collector.SampleSystem()
	}
}

func (a *Application) schedUsageRetentionTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	cutoff := common.DateString(time.Now().AddDate(0, 0, -UsageRetentionDays))
	if err := a.ledger.PurgeUsageBefore(context.Background(), cutoff); err != nil {
		zap.L().Error("usage retention purge failed", zap.Error(err))
		return
	}
	zap.L().Info("usage retention purge completed", zap.String("cutoff", cutoff))
}
