/*
scheduler.go - Periodic balance reconciliation

PURPOSE:
  Each driver's balance column is a cache of the movement log. The
  reconciler periodically recomputes every cached balance from the log and
  records what it found, so drift (from manual database edits or an
  interrupted import) is repaired and visible.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on start
  - Keeps the last maxRuns runs in memory for the admin endpoint
  - Each run gets a uuid so its log lines can be correlated

USAGE:
  rec := NewBalanceReconciler(ledger, clock, log)
  rec.Start()
  // ... later
  rec.Stop()

SEE ALSO:
  - handlers.go: Reconcile endpoint (manual reconciliation)
  - freight/ledger.go: Ledger.ReconcileAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/freight-engine/freight"
)

const maxRuns = 20

// ReconcileRun is one pass of the reconciler.
type ReconcileRun struct {
	ID         string              `json:"id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Drivers    int                 `json:"drivers"`
	Drifted    []ReconciliationDTO `json:"drifted"`
	Error      string              `json:"error,omitempty"`
}

// BalanceReconciler handles automated balance reconciliation.
type BalanceReconciler struct {
	Ledger        *freight.Ledger
	Clock         freight.Clock
	Log           logrus.FieldLogger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runs   []ReconcileRun
}

// NewBalanceReconciler creates a new reconciler.
func NewBalanceReconciler(ledger *freight.Ledger, clock freight.Clock, log logrus.FieldLogger) *BalanceReconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if clock == nil {
		clock = freight.SystemClock{}
	}
	return &BalanceReconciler{
		Ledger:        ledger,
		Clock:         clock,
		Log:           log.WithField("component", "reconciler"),
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the periodic runs.
func (br *BalanceReconciler) Start() {
	br.mu.Lock()
	defer br.mu.Unlock()

	if !br.Enabled || br.CheckInterval <= 0 {
		br.Log.Info("reconciler disabled, not starting")
		return
	}
	if br.ticker != nil {
		return
	}

	br.ticker = time.NewTicker(br.CheckInterval)
	br.stop = make(chan struct{})
	br.wg.Add(1)
	go br.run(br.ticker, br.stop)

	br.Log.WithField("interval", br.CheckInterval.String()).Info("reconciler started")
}

// Stop stops the reconciler and waits for an in-flight run.
func (br *BalanceReconciler) Stop() {
	br.mu.Lock()
	ticker, stop := br.ticker, br.stop
	br.ticker, br.stop = nil, nil
	br.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	br.wg.Wait()
	br.Log.Info("reconciler stopped")
}

func (br *BalanceReconciler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer br.wg.Done()

	br.RunOnce(context.Background())
	for {
		select {
		case <-ticker.C:
			br.RunOnce(context.Background())
		case <-stop:
			return
		}
	}
}

// RunOnce reconciles every driver and records the run.
func (br *BalanceReconciler) RunOnce(ctx context.Context) ReconcileRun {
	run := ReconcileRun{ID: uuid.NewString(), StartedAt: br.Clock.Now(), Drifted: []ReconciliationDTO{}}
	log := br.Log.WithField("run_id", run.ID)

	recs, err := br.Ledger.ReconcileAll(ctx)
	if err != nil {
		run.Error = err.Error()
		log.WithError(err).Error("reconciliation failed")
	}
	run.Drivers = len(recs)
	for _, dto := range toReconciliationDTOs(recs) {
		if !dto.Drift.IsZero() {
			run.Drifted = append(run.Drifted, dto)
			log.WithFields(logrus.Fields{
				"driver_id": dto.DriverID,
				"cached":    dto.Cached.String(),
				"computed":  dto.Computed.String(),
			}).Warn("driver balance drift repaired")
		}
	}
	run.FinishedAt = br.Clock.Now()

	br.mu.Lock()
	br.runs = append([]ReconcileRun{run}, br.runs...)
	if len(br.runs) > maxRuns {
		br.runs = br.runs[:maxRuns]
	}
	br.mu.Unlock()

	log.WithFields(logrus.Fields{"drivers": run.Drivers, "drifted": len(run.Drifted)}).Info("reconciliation completed")
	return run
}

// Runs returns the recorded runs, newest first.
func (br *BalanceReconciler) Runs() []ReconcileRun {
	br.mu.Lock()
	defer br.mu.Unlock()
	return append([]ReconcileRun{}, br.runs...)
}
