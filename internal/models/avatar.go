package models

import "time"

// Avatar is a recurring credex instruction: a template replayed by the daily
// job on its schedule until its remaining-payment counter runs out.
type Avatar struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id"`        // issuing account
	CounterpartyID string       `json:"counterparty_id"` // receiving account
	Amount         float64      `json:"amount"`          // face amount in Denomination units
	Denomination   Denomination `json:"denomination"`
	Secured        bool         `json:"secured"`
	DueSpanDays    int          `json:"due_span_days"` // unsecured maturity, days from creation
	IntervalDays   int          `json:"interval_days"`
	NextPayDate    string       `json:"next_pay_date,omitempty"` // YYYY-MM-DD, empty when finished
	RemainingPays  *int         `json:"remaining_pays,omitempty"` // nil means open-ended
	Complete       bool         `json:"complete"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
