package models

import "fmt"

// Denomination identifies a unit a credex can be written in. CXX is the
// network's own unit of account; every other denomination is valued
// against it through the active daynode's rate table.
type Denomination string

const (
	DenomCXX Denomination = "CXX"
	DenomUSD Denomination = "USD"
	DenomCAD Denomination = "CAD"
	DenomZAR Denomination = "ZAR"
	DenomXAU Denomination = "XAU"
	DenomZWG Denomination = "ZWG"
)

// TrackedDenominations are the denominations the primary rate source must
// deliver every day. ZWG comes from the regional source and CXX is never
// fetched.
var TrackedDenominations = []Denomination{
	DenomUSD,
	DenomCAD,
	DenomZAR,
	DenomXAU,
}

// RateTable maps denominations to their value in CXX for one daynode.
// CXX itself is always present with rate 1.
type RateTable map[Denomination]float64

// Rate returns the CXX value of one unit of denom, failing fast when the
// table has no entry rather than handing back a zero.
func (t RateTable) Rate(denom Denomination) (float64, error) {
	rate, ok := t[denom]
	if !ok {
		return 0, fmt.Errorf("no rate for denomination %s", denom)
	}
	return rate, nil
}

// Has reports whether the table carries an entry for denom.
func (t RateTable) Has(denom Denomination) bool {
	_, ok := t[denom]
	return ok
}
