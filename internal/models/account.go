package models

import "time"

// AccountType classifies who operates an account.
type AccountType string

const (
	AccountPersonal   AccountType = "PERSONAL"
	AccountTrust      AccountType = "TRUST"
	AccountOperations AccountType = "OPERATIONS"
	AccountFoundation AccountType = "FOUNDATION"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountPending AccountStatus = "PENDING"
	AccountActive  AccountStatus = "ACTIVE"
)

// Account represents a member account on the credit graph.
type Account struct {
	ID                string        `json:"id"`
	Handle            string        `json:"handle"`
	Type              AccountType   `json:"type"`
	DefaultDenom      Denomination  `json:"default_denom"`
	DCOGiveAmount     float64       `json:"dco_give_amount"` // declared daily contribution, in DCODenom units
	DCODenom          Denomination  `json:"dco_denom"`
	FoundationAudited bool          `json:"foundation_audited"`
	Status            AccountStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
