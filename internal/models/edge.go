package models

import "fmt"

// EdgeKind enumerates every typed relationship the repository may write.
// Queries never assemble an edge kind from strings at runtime; each kind is
// matched explicitly.
type EdgeKind string

const (
	EdgeSecures      EdgeKind = "SECURES"       // securer account -> credex
	EdgeCreatedOn    EdgeKind = "CREATED_ON"    // credex/account -> daynode
	EdgeDefaultedOn  EdgeKind = "DEFAULTED_ON"  // credex -> daynode
	EdgeDelegate     EdgeKind = "DELEGATE"      // delegate account -> principal account
	EdgeActiveAvatar EdgeKind = "ACTIVE_AVATAR" // avatar -> owner/counterparty accounts
)

// ValidEdgeKind reports whether k is one of the declared kinds.
func ValidEdgeKind(k EdgeKind) bool {
	switch k {
	case EdgeSecures, EdgeCreatedOn, EdgeDefaultedOn, EdgeDelegate, EdgeActiveAvatar:
		return true
	}
	return false
}

// Edge is a directed typed relationship between two stored entities.
type Edge struct {
	Kind   EdgeKind `json:"kind"`
	FromID string   `json:"from_id"`
	ToID   string   `json:"to_id"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s-[%s]->%s", e.FromID, e.Kind, e.ToID)
}
