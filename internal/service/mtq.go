package service

import (
	"time"

	"github.com/credex-network/clearing/internal/models"
	"github.com/sirupsen/logrus"
)

// QueueStore is the ledger surface the minute transaction queue drains.
type QueueStore interface {
	ActiveDaynode() (*models.Daynode, error)
	SetMinuteJobRunning(daynodeID string, running bool) error
	PendingAccounts() ([]models.Account, error)
	MaterializeSearchAccount(accountID string) error
	QueuedCredexes() ([]models.Credex, error)
}

// MTQ is the minute transaction queue: it drains pending accounts and
// accepted credexes into the loop finder once per tick, backing off
// whenever the daily rebase job holds the daynode lock.
type MTQ struct {
	store     QueueStore
	loops     *LoopFinder
	log       *logrus.Logger
	warnAfter time.Duration
	now       func() time.Time
}

// NewMTQ initializes the minute transaction queue
func NewMTQ(store QueueStore, loops *LoopFinder, log *logrus.Logger, warnAfter time.Duration) *MTQ {
	return &MTQ{store: store, loops: loops, log: log, warnAfter: warnAfter, now: time.Now}
}

// Run executes one queue pass. If the daily job's lock flag is set, or a
// previous minute pass is still marked running, the pass is skipped
// entirely; that is the cooperative mutual-exclusion contract, not an
// error. Credexes are fed to the loop finder oldest-accepted-first and a
// failure on one credex never stops the rest of the batch.
func (q *MTQ) Run() error {
	daynode, err := q.store.ActiveDaynode()
	if err != nil {
		return &InvariantViolation{Reason: "no active daynode: " + err.Error()}
	}
	if daynode.DailyJobRunning || daynode.MinuteJobRunning {
		q.log.Debugf("minute pass skipped: daily=%t minute=%t",
			daynode.DailyJobRunning, daynode.MinuteJobRunning)
		return nil
	}

	if err := q.store.SetMinuteJobRunning(daynode.ID, true); err != nil {
		return &StoreError{Op: "set minute job flag", Err: err}
	}
	defer func() {
		if err := q.store.SetMinuteJobRunning(daynode.ID, false); err != nil {
			q.log.Errorf("failed to clear minute job flag on daynode %s: %v", daynode.ID, err)
		}
	}()

	start := q.now()

	accounts, err := q.store.PendingAccounts()
	if err != nil {
		return &StoreError{Op: "list pending accounts", Err: err}
	}
	for _, account := range accounts {
		if err := q.store.MaterializeSearchAccount(account.ID); err != nil {
			q.log.Errorf("failed to materialize account %s: %v", account.ID, err)
			continue
		}
		q.log.Debugf("materialized account %s into search projection", account.ID)
	}

	credexes, err := q.store.QueuedCredexes()
	if err != nil {
		return &StoreError{Op: "list queued credexes", Err: err}
	}
	for _, credex := range credexes {
		params := LoopParams{
			IssuerID:     credex.IssuerID,
			CredexID:     credex.ID,
			Amount:       credex.OutstandingAmount,
			Denomination: credex.Denomination,
			SecuredDenom: credex.SecuredDenom,
			DueDate:      credex.DueDate,
			AcceptorID:   credex.AcceptorID,
			DaynodeID:    daynode.ID,
		}
		if err := q.loops.FindAndClearLoops(params); err != nil {
			q.log.Errorf("loop search failed for credex %s: %v", credex.ID, err)
			continue
		}
	}

	if elapsed := q.now().Sub(start); elapsed > q.warnAfter {
		q.log.Warnf("minute pass took %s for %d credexes", elapsed, len(credexes))
	}
	return nil
}
