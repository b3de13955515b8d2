/*
scheduler.go - Scheduled negative-balance risk monitor

PURPOSE:
  Periodically projects each monitored owner's balance and notifies when
  the projection goes negative in some month.

DESIGN:
  - Runs on a cron schedule (robfig/cron, default "@daily")
  - Each run projects every owner independently; one owner's failure is
    logged and does not stop the others
  - Alerts go through notify.Notifier (email or log)

USAGE:
  monitor, err := NewRiskMonitor(svc, notifier, logger, cfg.Monitor)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - ledger/service.go: Project
  - notify/notify.go: Notifier implementations
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/engine"
	"github.com/warp/cashflow-engine/ledger"
	"github.com/warp/cashflow-engine/notify"
)

// RiskMonitor checks the monitored owners' projections on a schedule.
type RiskMonitor struct {
	Service  *ledger.Service
	Notifier notify.Notifier
	Owners   []engine.OwnerID
	Months   int
	Schedule string

	logger logrus.FieldLogger
	cron   *cron.Cron
	entry  cron.EntryID
	mu     sync.Mutex
}

// RunResult summarizes one monitor run.
type RunResult struct {
	Checked  int
	AtRisk   int
	Failures int
}

// NewRiskMonitor creates a monitor and registers it on its schedule.
func NewRiskMonitor(svc *ledger.Service, n notify.Notifier, logger logrus.FieldLogger, cfg config.MonitorConfig) (*RiskMonitor, error) {
	owners := make([]engine.OwnerID, 0, len(cfg.Owners))
	for _, o := range cfg.Owners {
		owners = append(owners, engine.OwnerID(o))
	}
	rm := &RiskMonitor{
		Service:  svc,
		Notifier: n,
		Owners:   owners,
		Months:   cfg.Months,
		Schedule: cfg.Schedule,
		logger:   logger.WithField("component", "risk_monitor"),
		cron:     cron.New(),
	}
	id, err := rm.cron.AddFunc(rm.Schedule, func() { rm.RunOnce(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", rm.Schedule, err)
	}
	rm.entry = id
	return rm, nil
}

// Start begins the schedule.
func (rm *RiskMonitor) Start() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.cron.Start()
	rm.logger.WithFields(logrus.Fields{
		"schedule": rm.Schedule, "owners": len(rm.Owners), "next_run": rm.NextRun(),
	}).Info("risk monitor started")
}

// Stop stops the schedule and waits for a running check to finish.
func (rm *RiskMonitor) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	<-rm.cron.Stop().Done()
	rm.logger.Info("risk monitor stopped")
}

// NextRun is the next scheduled run, zero before Start.
func (rm *RiskMonitor) NextRun() time.Time {
	return rm.cron.Entry(rm.entry).Next
}

// RunOnce projects every monitored owner and notifies those at risk.
func (rm *RiskMonitor) RunOnce(ctx context.Context) RunResult {
	var res RunResult
	for _, owner := range rm.Owners {
		log := rm.logger.WithField("owner", owner)
		p, err := rm.Service.Project(ctx, owner, engine.Date{}, rm.Months)
		if err != nil {
			log.WithError(err).Error("projection failed")
			res.Failures++
			continue
		}
		res.Checked++
		if !p.AtRisk {
			continue
		}
		res.AtRisk++
		if err := rm.Notifier.NotifyRisk(ctx, notify.RiskAlert{Owner: owner, Projection: p}); err != nil {
			log.WithError(err).Error("risk notification failed")
			res.Failures++
		}
	}
	rm.logger.WithFields(logrus.Fields{
		"checked": res.Checked, "at_risk": res.AtRisk, "failures": res.Failures,
	}).Info("risk check completed")
	return res
}
