package service

import (
	"sort"
	"time"

	"github.com/credex-network/clearing/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// clearEpsilon treats a floating-point outstanding amount at or below this
// bound as fully cleared.
const clearEpsilon = 1e-9

// LoopStore is the ledger surface the loop finder mutates.
type LoopStore interface {
	CredexQueueStatus(credexID string) (models.QueueStatus, error)
	SearchCredexExists(credexID string) (bool, error)
	CreateSearchCredex(edge *models.SearchEdge) error
	SearchEdges(classification string) ([]models.SearchEdge, error)
	ClearLoop(loop *models.LoopRecord, redeemedIDs []string) error
	MarkCredexProcessed(credexID string) error
}

// LoopParams describes one newly accepted credex for loop search. Amount is
// the outstanding value in CXX units.
type LoopParams struct {
	IssuerID     string
	CredexID     string
	Amount       float64
	Denomination models.Denomination
	SecuredDenom models.Denomination // empty for floating/unsecured
	DueDate      *time.Time
	AcceptorID   string
	DaynodeID    string
}

// LoopFinder finds and clears multilateral debt cycles triggered by one
// accepted credex.
type LoopFinder struct {
	store LoopStore
	log   *logrus.Logger
	now   func() time.Time
}

// NewLoopFinder initializes a new loop finder
func NewLoopFinder(store LoopStore, log *logrus.Logger) *LoopFinder {
	return &LoopFinder{store: store, log: log, now: time.Now}
}

// FindAndClearLoops repeatedly searches for a debt cycle of the credex's
// netting classification through the issuer and clears each one found by
// the minimum outstanding amount among its edges. The search terminates
// when no cycle remains; the credex is then marked processed. Clearing is
// zero-sum: every edge in a cycle loses exactly the same amount.
func (f *LoopFinder) FindAndClearLoops(params LoopParams) error {
	status, err := f.store.CredexQueueStatus(params.CredexID)
	if err != nil {
		return &StoreError{Op: "load credex queue status", Err: err}
	}
	if status == models.QueueProcessed {
		return nil
	}

	exists, err := f.store.SearchCredexExists(params.CredexID)
	if err != nil {
		return &StoreError{Op: "check search credex", Err: err}
	}
	if !exists {
		edge := &models.SearchEdge{
			CredexID:       params.CredexID,
			IssuerID:       params.IssuerID,
			AcceptorID:     params.AcceptorID,
			Outstanding:    params.Amount,
			Classification: models.Classification(params.SecuredDenom),
			Denomination:   params.Denomination,
			DueDate:        f.dueDate(params),
		}
		if err := f.store.CreateSearchCredex(edge); err != nil {
			return &StoreError{Op: "create search credex", Err: err}
		}
	}

	classification := models.Classification(params.SecuredDenom)
	for {
		edges, err := f.store.SearchEdges(classification)
		if err != nil {
			return &StoreError{Op: "list search edges", Err: err}
		}

		cycle := findCycle(edges, params.IssuerID)
		if cycle == nil {
			if err := f.store.MarkCredexProcessed(params.CredexID); err != nil {
				return &StoreError{Op: "mark credex processed", Err: err}
			}
			return nil
		}

		valueToClear := cycle[0].Outstanding
		for _, e := range cycle[1:] {
			if e.Outstanding < valueToClear {
				valueToClear = e.Outstanding
			}
		}

		loop := &models.LoopRecord{
			ID:            uuid.NewString(),
			DaynodeID:     params.DaynodeID,
			ClearedAmount: valueToClear,
		}
		var redeemedIDs []string
		for _, e := range cycle {
			loop.CredexIDs = append(loop.CredexIDs, e.CredexID)
			if e.Outstanding-valueToClear <= clearEpsilon {
				redeemedIDs = append(redeemedIDs, e.CredexID)
			}
		}

		if err := f.store.ClearLoop(loop, redeemedIDs); err != nil {
			return &StoreError{Op: "clear loop", Err: err}
		}
		f.log.Infof("cleared loop %s: %d credexes, %.6f CXX each, %d redeemed",
			loop.ID, len(loop.CredexIDs), valueToClear, len(redeemedIDs))
	}
}

// dueDate pins secured credexes to today; they are always immediately
// eligible for netting. Unsecured credexes keep their maturity date.
func (f *LoopFinder) dueDate(params LoopParams) time.Time {
	if params.SecuredDenom != "" || params.DueDate == nil {
		return f.now().Truncate(24 * time.Hour)
	}
	return *params.DueDate
}

// findCycle searches for a closed chain of debt through start, walking
// issuer to acceptor. Edges with older due dates are preferred so the
// longest-standing obligations clear first.
func findCycle(edges []models.SearchEdge, start string) []models.SearchEdge {
	adjacency := make(map[string][]models.SearchEdge)
	for _, e := range edges {
		if e.Outstanding <= clearEpsilon {
			continue
		}
		adjacency[e.IssuerID] = append(adjacency[e.IssuerID], e)
	}
	for _, out := range adjacency {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].DueDate.Equal(out[j].DueDate) {
				return out[i].DueDate.Before(out[j].DueDate)
			}
			return out[i].CredexID < out[j].CredexID
		})
	}

	visited := map[string]bool{start: true}
	var path []models.SearchEdge
	var walk func(node string) bool
	walk = func(node string) bool {
		for _, e := range adjacency[node] {
			if e.AcceptorID == start {
				path = append(path, e)
				return true
			}
			if visited[e.AcceptorID] {
				continue
			}
			visited[e.AcceptorID] = true
			path = append(path, e)
			if walk(e.AcceptorID) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if walk(start) {
		return path
	}
	return nil
}
