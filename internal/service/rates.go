package service

import (
	"context"
	"fmt"
	"math"

	"github.com/credex-network/clearing/internal/models"
)

// RateSource is the primary provider: USD-based rates per denomination,
// keyed by date.
type RateSource interface {
	FetchRates(ctx context.Context, date string) (map[models.Denomination]float64, error)
}

// RegionalRateSource supplies one supplementary denomination from a
// secondary provider. A failure here drops only that denomination for the
// day.
type RegionalRateSource interface {
	FetchRate(ctx context.Context) (float64, error)
	Denomination() models.Denomination
}

// ConfirmedParticipant is an account whose declared daily contribution
// passed the securable-limit check.
type ConfirmedParticipant struct {
	Account   models.Account
	SecurerID string
}

// validateUSDRates checks every fetched rate is a well-formed positive
// number and the gold anchor is present.
func validateUSDRates(usdRates map[models.Denomination]float64) error {
	anchor, ok := usdRates[models.DenomXAU]
	if !ok || anchor <= 0 || math.IsNaN(anchor) || math.IsInf(anchor, 0) {
		return &ValidationError{Entity: string(models.DenomXAU), Reason: "missing or malformed gold anchor rate"}
	}
	for denom, rate := range usdRates {
		if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			return &ValidationError{Entity: string(denom), Reason: fmt.Sprintf("malformed rate %v", rate)}
		}
	}
	return nil
}

// computeRateTable derives the new day's full rate table through the gold
// anchor. Every confirmed contribution is converted to gold ounces; their
// average fixes the gold value of one CXX, and each denomination's CXX
// multiplier follows by inversion. priorToCurrentRatio is the average
// confirmed contribution per participant valued in the expiring day's CXX.
// With no confirmed participants the expiring anchor carries forward and
// the ratio is 1.
func computeRateTable(usdRates map[models.Denomination]float64, confirmed []ConfirmedParticipant, expiring *models.Daynode) (models.RateTable, float64, float64, error) {
	if err := validateUSDRates(usdRates); err != nil {
		return nil, 0, 0, err
	}
	xauPerUSD := usdRates[models.DenomXAU]

	xauPerUnit := make(map[models.Denomination]float64, len(usdRates))
	for denom, rate := range usdRates {
		xauPerUnit[denom] = xauPerUSD / rate
	}

	cxxInXAU := expiring.CXXInXAU
	ratio := 1.0
	if len(confirmed) > 0 {
		var totalXAU, totalPriorCXX float64
		for _, p := range confirmed {
			perUnit, ok := xauPerUnit[p.Account.DCODenom]
			if !ok {
				return nil, 0, 0, &ValidationError{
					Entity: p.Account.ID,
					Reason: fmt.Sprintf("no rate for contribution denomination %s", p.Account.DCODenom),
				}
			}
			totalXAU += p.Account.DCOGiveAmount * perUnit

			priorRate, err := expiring.Rates.Rate(p.Account.DCODenom)
			if err != nil {
				return nil, 0, 0, &ValidationError{Entity: p.Account.ID, Reason: err.Error()}
			}
			totalPriorCXX += p.Account.DCOGiveAmount * priorRate
		}
		n := float64(len(confirmed))
		cxxInXAU = totalXAU / n
		ratio = totalPriorCXX / n
	}
	if cxxInXAU <= 0 {
		return nil, 0, 0, &ValidationError{Entity: "daynode", Reason: "non-positive CXX anchor value"}
	}

	table := make(models.RateTable, len(xauPerUnit)+1)
	for denom, perUnit := range xauPerUnit {
		table[denom] = perUnit / cxxInXAU
	}
	// The unit of account's own rate is exactly 1, never derived.
	table[models.DenomCXX] = 1
	return table, cxxInXAU, ratio, nil
}
