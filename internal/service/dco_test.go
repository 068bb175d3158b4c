package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/credex-network/clearing/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dcoFixture struct {
	store     *fakeStore
	pipeline  *fakePipeline
	backup    *fakeBackup
	primary   *fakeRateSource
	secondary *fakeRegionalSource
	dco       *DCO
}

func newDCOFixture() *dcoFixture {
	store := newFakeStore()
	store.daynode = &models.Daynode{
		ID:     "day-0",
		Date:   "2026-08-31",
		Active: true,
		Rates: models.RateTable{
			models.DenomCXX: 1,
			models.DenomUSD: 1.5,
		},
		CXXInXAU:            0.001,
		PriorToCurrentRatio: 1,
	}
	store.foundation = &models.Account{ID: "foundation", Type: models.AccountFoundation}

	pipeline := newFakePipeline()
	backup := &fakeBackup{}
	primary := &fakeRateSource{rates: map[models.Denomination]float64{
		models.DenomUSD: 1,
		models.DenomCAD: 1.35,
		models.DenomZAR: 18,
		models.DenomXAU: 0.0005,
	}}
	secondary := &fakeRegionalSource{rate: 26.5}

	secured := NewSecuredCalculator(store, testLogger())
	dco := NewDCO(store, secured, primary, secondary, pipeline, backup, testLogger(), 10*time.Millisecond)
	dco.now = func() time.Time {
		return time.Date(2026, 9, 1, 0, 0, 5, 0, time.UTC)
	}
	return &dcoFixture{store: store, pipeline: pipeline, backup: backup, primary: primary, secondary: secondary, dco: dco}
}

// confirmable registers a participant whose securable limit covers the
// declared contribution.
func (f *dcoFixture) confirmable(id string, gives float64) {
	f.store.accounts[id] = &models.Account{
		ID: id, Status: models.AccountActive,
		DCOGiveAmount: gives, DCODenom: models.DenomUSD,
	}
	f.store.participants = append(f.store.participants, *f.store.accounts[id])
	// Securable well above the declared amount at 1.5 CXX per USD.
	f.store.positions[id+"|USD"] = []models.SecuredPosition{
		{SecurerID: "securer-" + id, NetCXX: gives * 1.5 * 10},
	}
}

func TestDCO_FullRun(t *testing.T) {
	f := newDCOFixture()
	f.confirmable("alice", 2)

	// Scenario D: overdue unsecured debt with nothing defaulted yet.
	overdueDate := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	f.store.credexes["cx-overdue"] = &models.Credex{
		ID: "cx-overdue", IssuerID: "bob", AcceptorID: "alice",
		Denomination: models.DenomUSD, CXXMultiplier: 1.5,
		InitialAmount: 7, OutstandingAmount: 7,
		Status: models.CredexOwes, DueDate: &overdueDate,
	}
	// Stale proposal from two days before.
	f.store.credexes["cx-stale"] = &models.Credex{
		ID: "cx-stale", Status: models.CredexPending,
		CreatedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
	// Scenario C: USD credex at multiplier 1.0 outstanding 100.
	f.store.credexes["cx-usd"] = &models.Credex{
		ID: "cx-usd", Denomination: models.DenomUSD, CXXMultiplier: 1.0,
		InitialAmount: 100, OutstandingAmount: 100, Status: models.CredexOwes,
	}
	// CXX credex rescales by the rebase ratio alone.
	f.store.credexes["cx-cxx"] = &models.Credex{
		ID: "cx-cxx", Denomination: models.DenomCXX, CXXMultiplier: 1,
		InitialAmount: 9, OutstandingAmount: 9, Status: models.CredexOwes,
	}

	err := f.dco.Run(context.Background())
	require.NoError(t, err)

	// Epoch rolled to the new day, lock taken and released.
	assert.Equal(t, "day-0", f.store.rolledFrom)
	assert.Equal(t, "2026-09-01", f.store.daynode.Date)
	assert.False(t, f.store.daynode.DailyJobRunning)
	assert.Equal(t, true, f.store.dailyFlagSets[0])
	assert.Equal(t, false, f.store.dailyFlagSets[len(f.store.dailyFlagSets)-1])

	// Scenario D: full outstanding moved to default, audit edge written.
	// The defaulted balance is then rescaled with everything else, from
	// multiplier 1.5 down to the new 0.5.
	overdue := f.store.credexes["cx-overdue"]
	assert.Equal(t, models.CredexDefaulted, overdue.Status)
	assert.InDelta(t, 7.0/3.0, overdue.DefaultedAmount, 1e-9)
	assert.Zero(t, overdue.OutstandingAmount)
	require.Len(t, f.store.auditEdges, 1)
	assert.Equal(t, models.EdgeDefaultedOn, f.store.auditEdges[0].Kind)
	assert.Equal(t, "day-0", f.store.auditEdges[0].ToID)

	assert.Equal(t, models.CredexExpired, f.store.credexes["cx-stale"].Status)

	// One confirmed participant giving 2 USD at 0.0005 oz per USD fixes
	// one CXX at 0.001 oz, so the new USD rate is 0.5 CXX.
	newRates := f.store.daynode.Rates
	assert.Equal(t, 1.0, newRates[models.DenomCXX])
	assert.InDelta(t, 0.5, newRates[models.DenomUSD], 1e-9)
	assert.True(t, newRates.Has(models.DenomZWG), "secondary denomination included")

	// Rebase ratio: average contribution in prior CXX = 2 * 1.5.
	assert.InDelta(t, 3.0, f.store.rescaleRatio, 1e-9)
	assert.Equal(t, f.store.daynode.ID, f.store.rescaledTo)

	// Scenario C: outstanding 100 at multiplier 1.0 -> 50 at 0.5; CXX
	// value unchanged.
	usd := f.store.credexes["cx-usd"]
	assert.InDelta(t, 50, usd.OutstandingAmount, 1e-9)
	assert.InDelta(t, 0.5, usd.CXXMultiplier, 1e-9)
	assert.InDelta(t, 3, f.store.credexes["cx-cxx"].OutstandingAmount, 1e-9)

	// Settlement: give leg then per-capita receive leg, both accepted.
	require.Len(t, f.pipeline.created, 2)
	byType := map[string]CredexRequest{}
	for _, req := range f.pipeline.created {
		byType[req.Type] = req
	}
	give := byType["DCO_GIVE"]
	assert.Equal(t, "alice", give.IssuerID)
	assert.Equal(t, "foundation", give.AcceptorID)
	assert.InDelta(t, 2, give.Amount, 1e-9)
	assert.Equal(t, models.DenomUSD, give.SecuredDenom)
	receive := byType["DCO_RECEIVE"]
	assert.Equal(t, "foundation", receive.IssuerID)
	assert.Equal(t, models.DenomCXX, receive.Denomination)
	assert.InDelta(t, 1.0, receive.Amount, 1e-9, "per-capita share is one new CXX")
	assert.Len(t, f.pipeline.accepted, 2)

	assert.Equal(t, []string{"2026-08-31_end_of_day", "2026-09-01_start_of_day"}, f.backup.labels)
}

func TestDCO_ExcludesParticipantOverSecurableLimit(t *testing.T) {
	f := newDCOFixture()
	f.confirmable("alice", 2)
	// Scenario B: bob declares 5 USD but can only secure 3.
	f.store.accounts["bob"] = &models.Account{
		ID: "bob", Status: models.AccountActive,
		DCOGiveAmount: 5, DCODenom: models.DenomUSD,
	}
	f.store.participants = append(f.store.participants, *f.store.accounts["bob"])
	f.store.positions["bob|USD"] = []models.SecuredPosition{
		{SecurerID: "securer-bob", NetCXX: 4.5}, // 3 USD at 1.5
	}

	err := f.dco.Run(context.Background())
	require.NoError(t, err)

	for _, req := range f.pipeline.created {
		assert.NotEqual(t, "bob", req.IssuerID, "excluded participant gets no settlement legs")
		if req.Type == "DCO_RECEIVE" {
			assert.Equal(t, "alice", req.AcceptorID)
		}
	}
	require.Len(t, f.pipeline.created, 2, "only the confirmed participant settles")
}

func TestDCO_SecondaryFailureDropsOnlyThatDenomination(t *testing.T) {
	f := newDCOFixture()
	f.confirmable("alice", 2)
	f.secondary.err = fmt.Errorf("regional source down")

	err := f.dco.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, f.store.daynode.Rates.Has(models.DenomZWG))
	assert.True(t, f.store.daynode.Rates.Has(models.DenomUSD))
}

func TestDCO_PrimaryFailureAbortsAndReleasesLock(t *testing.T) {
	f := newDCOFixture()
	f.primary.err = fmt.Errorf("primary source down")

	err := f.dco.Run(context.Background())
	require.Error(t, err)
	var sourceErr *ExternalSourceError
	assert.ErrorAs(t, err, &sourceErr)

	assert.Empty(t, f.store.rolledFrom, "no epoch commit on failure")
	assert.Empty(t, f.store.rescaledTo)
	assert.False(t, f.store.daynode.DailyJobRunning, "lock released on failure")
}

func TestDCO_MalformedRateAbortsRun(t *testing.T) {
	f := newDCOFixture()
	f.primary.rates[models.DenomZAR] = -1

	err := f.dco.Run(context.Background())
	require.Error(t, err)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Empty(t, f.store.rolledFrom)
}

func TestDCO_MissingFoundationIsFatal(t *testing.T) {
	f := newDCOFixture()
	f.confirmable("alice", 2)
	f.store.foundation = nil

	err := f.dco.Run(context.Background())
	require.Error(t, err)
	var invariant *InvariantViolation
	assert.ErrorAs(t, err, &invariant)
	assert.False(t, f.store.daynode.DailyJobRunning)
}

func TestDCO_SkipsWhenAlreadyRunning(t *testing.T) {
	f := newDCOFixture()
	f.store.daynode.DailyJobRunning = true

	err := f.dco.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.store.dailyFlagSets, "skip must not touch the lock")
	assert.Empty(t, f.backup.labels)
}

func TestDCO_WaitsForMinutePassToDrain(t *testing.T) {
	f := newDCOFixture()
	f.store.daynode.MinuteJobRunning = true

	go func() {
		time.Sleep(30 * time.Millisecond)
		f.store.mu.Lock()
		f.store.daynode.MinuteJobRunning = false
		f.store.mu.Unlock()
	}()

	err := f.dco.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "day-0", f.store.rolledFrom)
}

func TestDCO_DrainBarrierHonorsCancellation(t *testing.T) {
	f := newDCOFixture()
	f.store.daynode.MinuteJobRunning = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.dco.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, f.store.dailyFlagSets)
}

func TestDCO_NoParticipantsCarriesAnchorForward(t *testing.T) {
	f := newDCOFixture()

	err := f.dco.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 0.001, f.store.daynode.CXXInXAU, 1e-12)
	assert.InDelta(t, 1.0, f.store.daynode.PriorToCurrentRatio, 1e-12)
	assert.Empty(t, f.pipeline.created)
}
