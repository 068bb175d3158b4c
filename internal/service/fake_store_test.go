package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/credex-network/clearing/internal/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeStore is an in-memory ledger implementing every store interface the
// services consume.
type fakeStore struct {
	mu sync.Mutex

	daynode        *models.Daynode
	accounts       map[string]*models.Account
	pending        []models.Account
	participants   []models.Account
	foundation     *models.Account
	positions      map[string][]models.SecuredPosition // accountID + "|" + denom
	credexes       map[string]*models.Credex
	queued         []models.Credex
	searchEdges    map[string]*models.SearchEdge
	searchAccounts map[string]bool
	loops          []*models.LoopRecord
	auditEdges     []models.Edge
	avatars        map[string]*models.Avatar

	processed       []string
	materialized    []string
	minuteFlagSets  []bool
	dailyFlagSets   []bool
	rolledFrom      string
	rescaledTo      string
	rescaleRatio    float64
	expiredBefore   time.Time
	advancedAvatars []models.Avatar
	completed       []string

	failClearLoop     bool
	failMaterialize   map[string]bool
	failProcess       map[string]bool
	failQueued        bool
	failAdvanceAvatar bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:       make(map[string]*models.Account),
		positions:      make(map[string][]models.SecuredPosition),
		credexes:       make(map[string]*models.Credex),
		searchEdges:    make(map[string]*models.SearchEdge),
		searchAccounts: make(map[string]bool),
		avatars:        make(map[string]*models.Avatar),
	}
}

func (s *fakeStore) ActiveDaynode() (*models.Daynode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.daynode == nil {
		return nil, fmt.Errorf("no active daynode")
	}
	copy := *s.daynode
	return &copy, nil
}

func (s *fakeStore) SetMinuteJobRunning(daynodeID string, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daynode.MinuteJobRunning = running
	s.minuteFlagSets = append(s.minuteFlagSets, running)
	return nil
}

func (s *fakeStore) SetDailyJobRunning(daynodeID string, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daynode.DailyJobRunning = running
	s.dailyFlagSets = append(s.dailyFlagSets, running)
	return nil
}

func (s *fakeStore) PendingAccounts() ([]models.Account, error) {
	return s.pending, nil
}

func (s *fakeStore) MaterializeSearchAccount(accountID string) error {
	if s.failMaterialize[accountID] {
		return fmt.Errorf("materialize failed")
	}
	s.searchAccounts[accountID] = true
	s.materialized = append(s.materialized, accountID)
	return nil
}

func (s *fakeStore) QueuedCredexes() ([]models.Credex, error) {
	if s.failQueued {
		return nil, fmt.Errorf("queue unavailable")
	}
	return s.queued, nil
}

func (s *fakeStore) MarkCredexProcessed(credexID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProcess[credexID] {
		return fmt.Errorf("mark processed failed")
	}
	s.processed = append(s.processed, credexID)
	if c, ok := s.credexes[credexID]; ok {
		c.QueueStatus = models.QueueProcessed
	}
	return nil
}

func (s *fakeStore) CredexQueueStatus(credexID string) (models.QueueStatus, error) {
	if c, ok := s.credexes[credexID]; ok {
		return c.QueueStatus, nil
	}
	return models.QueuePending, nil
}

func (s *fakeStore) SearchCredexExists(credexID string) (bool, error) {
	_, ok := s.searchEdges[credexID]
	return ok, nil
}

func (s *fakeStore) CreateSearchCredex(edge *models.SearchEdge) error {
	copy := *edge
	s.searchEdges[edge.CredexID] = &copy
	return nil
}

func (s *fakeStore) SearchEdges(classification string) ([]models.SearchEdge, error) {
	var edges []models.SearchEdge
	for _, e := range s.searchEdges {
		if e.Classification == classification && e.Outstanding > 0 {
			edges = append(edges, *e)
		}
	}
	return edges, nil
}

func (s *fakeStore) ClearLoop(loop *models.LoopRecord, redeemedIDs []string) error {
	if s.failClearLoop {
		return fmt.Errorf("clear loop failed")
	}
	for _, id := range loop.CredexIDs {
		if c, ok := s.credexes[id]; ok {
			c.RedeemedAmount += loop.ClearedAmount
			c.OutstandingAmount -= loop.ClearedAmount
		}
		if e, ok := s.searchEdges[id]; ok {
			e.Outstanding -= loop.ClearedAmount
		}
	}
	for _, id := range redeemedIDs {
		if c, ok := s.credexes[id]; ok {
			c.Status = models.CredexRedeemed
			c.OutstandingAmount = 0
		}
		delete(s.searchEdges, id)
	}
	s.loops = append(s.loops, loop)
	return nil
}

func (s *fakeStore) AccountByID(id string) (*models.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s not found", id)
	}
	return account, nil
}

func (s *fakeStore) SecuredPositions(accountID string, denom models.Denomination) ([]models.SecuredPosition, error) {
	return s.positions[accountID+"|"+string(denom)], nil
}

func (s *fakeStore) ParticipantAccounts() ([]models.Account, error) {
	return s.participants, nil
}

func (s *fakeStore) FoundationAccount() (*models.Account, error) {
	if s.foundation == nil {
		return nil, sql.ErrNoRows
	}
	return s.foundation, nil
}

func (s *fakeStore) RollDaynode(expiringID string, next *models.Daynode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolledFrom = expiringID
	copy := *next
	s.daynode = &copy
	return nil
}

func (s *fakeStore) DefaultOverdueCredexes(expiringDaynodeID string, asOf time.Time) (int, error) {
	count := 0
	for _, c := range s.credexes {
		if c.Status != models.CredexOwes || c.Secured() || c.DueDate == nil {
			continue
		}
		if !c.DueDate.Before(asOf) || c.DefaultedAmount != 0 {
			continue
		}
		c.DefaultedAmount = c.OutstandingAmount
		c.OutstandingAmount = 0
		c.Status = models.CredexDefaulted
		c.DefaultedDaynodeID = expiringDaynodeID
		s.auditEdges = append(s.auditEdges, models.Edge{
			Kind: models.EdgeDefaultedOn, FromID: c.ID, ToID: expiringDaynodeID,
		})
		delete(s.searchEdges, c.ID)
		count++
	}
	return count, nil
}

func (s *fakeStore) ExpireStaleProposals(before time.Time) (int, error) {
	s.expiredBefore = before
	count := 0
	for _, c := range s.credexes {
		if c.Status == models.CredexPending && c.CreatedAt.Before(before) {
			c.Status = models.CredexExpired
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) RescaleLedger(newDaynodeID string, ratio float64, oldRates, newRates models.RateTable) error {
	s.rescaledTo = newDaynodeID
	s.rescaleRatio = ratio
	for _, c := range s.credexes {
		if c.Denomination == models.DenomCXX {
			c.InitialAmount /= ratio
			c.OutstandingAmount /= ratio
			c.RedeemedAmount /= ratio
			c.DefaultedAmount /= ratio
			c.WrittenOffAmount /= ratio
			continue
		}
		newMult, ok := newRates[c.Denomination]
		if !ok {
			continue
		}
		factor := newMult / c.CXXMultiplier
		c.InitialAmount *= factor
		c.OutstandingAmount *= factor
		c.RedeemedAmount *= factor
		c.DefaultedAmount *= factor
		c.WrittenOffAmount *= factor
		c.CXXMultiplier = newMult
	}
	for _, l := range s.loops {
		l.ClearedAmount /= ratio
	}
	return nil
}

func (s *fakeStore) DueAvatars(date string) ([]models.Avatar, error) {
	var due []models.Avatar
	for _, a := range s.avatars {
		// ISO dates order lexicographically.
		if !a.Complete && a.NextPayDate != "" && a.NextPayDate <= date {
			due = append(due, *a)
		}
	}
	return due, nil
}

func (s *fakeStore) AdvanceAvatar(avatar *models.Avatar) error {
	if s.failAdvanceAvatar {
		return fmt.Errorf("advance failed")
	}
	copy := *avatar
	s.advancedAvatars = append(s.advancedAvatars, copy)
	if stored, ok := s.avatars[avatar.ID]; ok {
		stored.NextPayDate = avatar.NextPayDate
		stored.RemainingPays = avatar.RemainingPays
	}
	return nil
}

func (s *fakeStore) CompleteAvatar(avatarID string) error {
	s.completed = append(s.completed, avatarID)
	if stored, ok := s.avatars[avatarID]; ok {
		stored.Complete = true
		stored.NextPayDate = ""
	}
	return nil
}

// fakePipeline records create/accept calls and can fail per issuer.
type fakePipeline struct {
	mu       sync.Mutex
	created  []CredexRequest
	accepted []string
	nextID   int
	failFor  map[string]bool // issuer IDs whose Create fails
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{failFor: make(map[string]bool)}
}

func (p *fakePipeline) Create(ctx context.Context, req CredexRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[req.IssuerID] {
		return "", fmt.Errorf("pipeline unavailable")
	}
	p.nextID++
	id := fmt.Sprintf("credex-%d", p.nextID)
	p.created = append(p.created, req)
	return id, nil
}

func (p *fakePipeline) Accept(ctx context.Context, credexID, signerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted = append(p.accepted, credexID)
	return nil
}

// fakeBackup records trigger labels.
type fakeBackup struct {
	mu     sync.Mutex
	labels []string
	fail   bool
}

func (b *fakeBackup) Backup(ctx context.Context, dateLabel, suffix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return fmt.Errorf("backup unavailable")
	}
	b.labels = append(b.labels, dateLabel+"_"+suffix)
	return nil
}

// fakeRateSource serves a fixed primary rate map.
type fakeRateSource struct {
	rates map[models.Denomination]float64
	err   error
}

func (f *fakeRateSource) FetchRates(ctx context.Context, date string) (map[models.Denomination]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	rates := make(map[models.Denomination]float64, len(f.rates))
	for k, v := range f.rates {
		rates[k] = v
	}
	return rates, nil
}

// fakeRegionalSource serves the supplementary denomination.
type fakeRegionalSource struct {
	rate float64
	err  error
}

func (f *fakeRegionalSource) FetchRate(ctx context.Context) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

func (f *fakeRegionalSource) Denomination() models.Denomination {
	return models.DenomZWG
}
