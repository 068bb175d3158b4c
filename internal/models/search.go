package models

import "time"

// SearchEdge is the loop finder's projection of one active debt: a directed
// edge from the issuer (debtor) to the acceptor (creditor), in CXX units.
// Edges leave the projection the moment they are fully cleared.
type SearchEdge struct {
	CredexID       string       `json:"credex_id"`
	IssuerID       string       `json:"issuer_id"`
	AcceptorID     string       `json:"acceptor_id"`
	Outstanding    float64      `json:"outstanding"`
	Classification string       `json:"classification"`
	Denomination   Denomination `json:"denomination"`
	DueDate        time.Time    `json:"due_date"`
}
