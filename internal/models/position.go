package models

// SecuredPosition is one counterparty's net secured exposure to an account,
// in CXX units, from the account's perspective: what the counterparty owes
// the account minus what the account owes the counterparty.
type SecuredPosition struct {
	SecurerID string  `json:"securer_id"`
	NetCXX    float64 `json:"net_cxx"`
}
