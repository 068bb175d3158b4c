package models

import "time"

// LoopRecord is the permanent record of one cleared cycle: which credexes
// participated and how much was removed from each edge. Cleared amounts are
// in CXX units and are rescaled together with credexes on every rebase.
type LoopRecord struct {
	ID            string    `json:"id"`
	DaynodeID     string    `json:"daynode_id"`
	ClearedAmount float64   `json:"cleared_amount"` // per-edge amount removed
	CredexIDs     []string  `json:"credex_ids"`
	CreatedAt     time.Time `json:"created_at"`
}
