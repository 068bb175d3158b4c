package models

import "time"

// CredexStatus is the lifecycle state of a credit instrument. Credexes are
// never deleted, only moved to a terminal status.
type CredexStatus string

const (
	CredexPending   CredexStatus = "PENDING"  // proposed, not yet accepted
	CredexOwes      CredexStatus = "OWES"     // accepted, active debt
	CredexRedeemed  CredexStatus = "REDEEMED" // fully cleared through loops
	CredexDefaulted CredexStatus = "DEFAULTED"
	CredexExpired   CredexStatus = "EXPIRED" // proposal never accepted
)

// QueueStatus tracks whether the minute queue has fed a credex to the
// loop finder yet.
type QueueStatus string

const (
	QueuePending   QueueStatus = "PENDING_CREDEX"
	QueueProcessed QueueStatus = "PROCESSED"
)

// Credex represents a single obligation from an issuer to a receiver.
// All amount fields are kept in internal CXX-scaled units; CXXMultiplier is
// the denomination's rate captured at creation and rewritten on each rebase.
type Credex struct {
	ID                 string       `json:"id"`
	IssuerID           string       `json:"issuer_id"`
	AcceptorID         string       `json:"acceptor_id"`
	Denomination       Denomination `json:"denomination"`
	CXXMultiplier      float64      `json:"cxx_multiplier"`
	InitialAmount      float64      `json:"initial_amount"`
	OutstandingAmount  float64      `json:"outstanding_amount"`
	RedeemedAmount     float64      `json:"redeemed_amount"`
	DefaultedAmount    float64      `json:"defaulted_amount"`
	WrittenOffAmount   float64      `json:"written_off_amount"`
	Type               string       `json:"type"`
	SecuredDenom       Denomination `json:"secured_denom,omitempty"` // empty for unsecured
	DueDate            *time.Time   `json:"due_date,omitempty"`      // unsecured only
	Status             CredexStatus `json:"status"`
	QueueStatus        QueueStatus  `json:"queue_status"`
	CreatedDaynodeID   string       `json:"created_daynode_id"`
	DefaultedDaynodeID string       `json:"defaulted_daynode_id,omitempty"`
	AcceptedAt         *time.Time   `json:"accepted_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Secured reports whether the credex is backed by a securer balance.
func (c *Credex) Secured() bool {
	return c.SecuredDenom != ""
}

// Classification returns the netting class of the credex. Secured credexes
// only net against the same secured denomination; unsecured ones net among
// themselves regardless of due date.
func (c *Credex) Classification() string {
	return Classification(c.SecuredDenom)
}

// Classification builds the netting class tag for a secured denomination,
// or the shared unsecured tag when the denomination is empty.
func Classification(securedDenom Denomination) string {
	if securedDenom == "" {
		return "UNSECURED"
	}
	return "SECURED_" + string(securedDenom)
}
