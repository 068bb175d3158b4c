package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/credex-network/clearing/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RebaseStore is the ledger surface of the daily rebase job.
type RebaseStore interface {
	ActiveDaynode() (*models.Daynode, error)
	SetDailyJobRunning(daynodeID string, running bool) error
	RollDaynode(expiringID string, next *models.Daynode) error
	DefaultOverdueCredexes(expiringDaynodeID string, asOf time.Time) (int, error)
	ExpireStaleProposals(before time.Time) (int, error)
	RescaleLedger(newDaynodeID string, ratio float64, oldRates, newRates models.RateTable) error
	ParticipantAccounts() ([]models.Account, error)
	FoundationAccount() (*models.Account, error)
}

// DCO is the daily credcoin offering: the job that defaults stale
// instruments, revalues the unit of account from participant contributions,
// rescales every outstanding balance and settles the day's give/receive
// legs against the foundation account.
type DCO struct {
	store        RebaseStore
	secured      *SecuredCalculator
	primary      RateSource
	secondary    RegionalRateSource
	pipeline     CredexPipeline
	backup       BackupTrigger
	log          *logrus.Logger
	pollInterval time.Duration
	now          func() time.Time
}

// NewDCO initializes the daily rebase job
func NewDCO(store RebaseStore, secured *SecuredCalculator, primary RateSource,
	secondary RegionalRateSource, pipeline CredexPipeline, backup BackupTrigger,
	log *logrus.Logger, pollInterval time.Duration) *DCO {
	return &DCO{
		store:        store,
		secured:      secured,
		primary:      primary,
		secondary:    secondary,
		pipeline:     pipeline,
		backup:       backup,
		log:          log,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

// Run executes one full rebase day. Phases are strictly sequential; a
// failure after lock acquisition aborts the remaining phases and the lock
// is released on the way out. No daynode commit happens on failure, so the
// next scheduled invocation safely re-attempts the whole day.
func (d *DCO) Run(ctx context.Context) error {
	// Phase 1: wait for any in-flight minute pass to drain.
	var expiring *models.Daynode
	for {
		daynode, err := d.store.ActiveDaynode()
		if err != nil {
			return &InvariantViolation{Reason: "no active daynode: " + err.Error()}
		}
		if !daynode.MinuteJobRunning {
			expiring = daynode
			break
		}
		d.log.Infof("rebase waiting for minute pass on daynode %s", daynode.ID)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
	if expiring.DailyJobRunning {
		d.log.Warnf("daily job flag already set on daynode %s, skipping", expiring.ID)
		return nil
	}

	// Phase 2: take the daily lock. Phase 13 releases it on every exit
	// path, against whichever daynode is active by then.
	if err := d.store.SetDailyJobRunning(expiring.ID, true); err != nil {
		return &StoreError{Op: "set daily job flag", Err: err}
	}
	defer func() {
		active, err := d.store.ActiveDaynode()
		if err != nil {
			d.log.Errorf("failed to load active daynode for lock release: %v", err)
			return
		}
		if err := d.store.SetDailyJobRunning(active.ID, false); err != nil {
			d.log.Errorf("failed to release daily job flag on daynode %s: %v", active.ID, err)
		}
	}()

	// Phase 3: pre-rebase snapshot of the expiring day.
	if err := d.backup.Backup(ctx, expiring.Date, "end_of_day"); err != nil {
		return &ExternalSourceError{Source: "backup", Err: err}
	}

	// Phase 4: default every overdue unsecured debt.
	defaulted, err := d.store.DefaultOverdueCredexes(expiring.ID, d.now())
	if err != nil {
		return &StoreError{Op: "default sweep", Err: err}
	}
	d.log.Infof("defaulted %d overdue credexes on daynode %s", defaulted, expiring.ID)

	// Phase 5: silently drop proposals older than the prior day.
	cutoff := d.now().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	expired, err := d.store.ExpireStaleProposals(cutoff)
	if err != nil {
		return &StoreError{Op: "expire stale proposals", Err: err}
	}
	d.log.Infof("expired %d stale proposals", expired)

	// Phase 6: fetch and validate the new day's rates.
	newDate := d.now().Format("2006-01-02")
	usdRates, err := d.primary.FetchRates(ctx, newDate)
	if err != nil {
		return &ExternalSourceError{Source: "primary rates", Err: err}
	}
	if d.secondary != nil {
		regional, err := d.secondary.FetchRate(ctx)
		if err != nil {
			d.log.Warnf("secondary rate source failed, dropping %s for %s: %v",
				d.secondary.Denomination(), newDate, err)
		} else {
			usdRates[d.secondary.Denomination()] = regional
		}
	}
	if err := validateUSDRates(usdRates); err != nil {
		return err
	}

	// Phase 7: confirm participants against their securable limits.
	participants, err := d.store.ParticipantAccounts()
	if err != nil {
		return &StoreError{Op: "list participants", Err: err}
	}
	var confirmed []ConfirmedParticipant
	for _, p := range participants {
		securerID, securable, err := d.secured.SecurableAmount(p.ID, p.DCODenom, expiring)
		if err != nil {
			d.log.Warnf("participant %s skipped: %v", p.ID, err)
			continue
		}
		if p.DCOGiveAmount > securable {
			d.log.Infof("participant %s skipped: declared %.6f %s exceeds securable %.6f",
				p.ID, p.DCOGiveAmount, p.DCODenom, securable)
			continue
		}
		confirmed = append(confirmed, ConfirmedParticipant{Account: p, SecurerID: securerID})
	}
	d.log.Infof("confirmed %d of %d participants", len(confirmed), len(participants))

	// Phase 8: new rate table and the network-wide rebase factor.
	table, cxxInXAU, ratio, err := computeRateTable(usdRates, confirmed, expiring)
	if err != nil {
		return err
	}

	// Phase 9: roll the epoch. The new daynode starts active and locked.
	next := &models.Daynode{
		ID:                  uuid.NewString(),
		Date:                newDate,
		Active:              true,
		DailyJobRunning:     true,
		Rates:               table,
		CXXInXAU:            cxxInXAU,
		PriorToCurrentRatio: ratio,
	}
	if err := d.store.RollDaynode(expiring.ID, next); err != nil {
		return &StoreError{Op: "roll daynode", Err: err}
	}
	d.log.Infof("daynode rolled %s -> %s, ratio %.9f", expiring.ID, next.ID, ratio)

	// Phase 10: rescale every balance in the store to the new rates.
	if err := d.store.RescaleLedger(next.ID, ratio, expiring.Rates, table); err != nil {
		return &StoreError{Op: "rescale ledger", Err: err}
	}

	// Phase 11: settle give/receive legs for every confirmed participant.
	if len(confirmed) > 0 {
		if err := d.settle(ctx, next, confirmed, table); err != nil {
			return err
		}
	}

	// Phase 12: post-rebase snapshot of the new day.
	if err := d.backup.Backup(ctx, next.Date, "start_of_day"); err != nil {
		return &ExternalSourceError{Source: "backup", Err: err}
	}
	return nil
}

// settle fans the two settlement legs out concurrently across participants.
// The legs for one participant are ordered create-then-accept; legs across
// participants carry no ordering guarantee. Per-participant failures are
// logged and do not abort the run.
func (d *DCO) settle(ctx context.Context, daynode *models.Daynode, confirmed []ConfirmedParticipant, table models.RateTable) error {
	foundation, err := d.store.FoundationAccount()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &InvariantViolation{Reason: "no foundation account"}
		}
		return &StoreError{Op: "load foundation account", Err: err}
	}

	var totalCXX float64
	for _, p := range confirmed {
		rate, err := table.Rate(p.Account.DCODenom)
		if err != nil {
			return &ValidationError{Entity: p.Account.ID, Reason: err.Error()}
		}
		totalCXX += p.Account.DCOGiveAmount * rate
	}
	perCapita := totalCXX / float64(len(confirmed))
	if perCapita <= 0 || math.IsNaN(perCapita) {
		return &ValidationError{Entity: "daynode " + daynode.ID, Reason: "non-positive per-capita share"}
	}

	var wg sync.WaitGroup
	for _, p := range confirmed {
		wg.Add(1)
		go func(p ConfirmedParticipant) {
			defer wg.Done()
			if err := d.settleParticipant(ctx, p.Account, foundation, perCapita); err != nil {
				d.log.Errorf("settlement failed for participant %s: %v", p.Account.ID, err)
			}
		}(p)
	}
	wg.Wait()
	return nil
}

func (d *DCO) settleParticipant(ctx context.Context, participant models.Account, foundation *models.Account, perCapitaCXX float64) error {
	giveID, err := d.pipeline.Create(ctx, CredexRequest{
		IssuerID:     participant.ID,
		AcceptorID:   foundation.ID,
		Amount:       participant.DCOGiveAmount,
		Denomination: participant.DCODenom,
		SecuredDenom: participant.DCODenom,
		Type:         "DCO_GIVE",
	})
	if err != nil {
		return &ExternalSourceError{Source: "credex pipeline", Err: err}
	}
	if err := d.pipeline.Accept(ctx, giveID, foundation.ID); err != nil {
		return &ExternalSourceError{Source: "credex pipeline", Err: err}
	}

	receiveID, err := d.pipeline.Create(ctx, CredexRequest{
		IssuerID:     foundation.ID,
		AcceptorID:   participant.ID,
		Amount:       perCapitaCXX,
		Denomination: models.DenomCXX,
		SecuredDenom: models.DenomCXX,
		Type:         "DCO_RECEIVE",
	})
	if err != nil {
		return &ExternalSourceError{Source: "credex pipeline", Err: err}
	}
	if err := d.pipeline.Accept(ctx, receiveID, participant.ID); err != nil {
		return &ExternalSourceError{Source: "credex pipeline", Err: err}
	}
	return nil
}
