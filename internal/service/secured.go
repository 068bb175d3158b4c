package service

import (
	"math"

	"github.com/credex-network/clearing/internal/models"
	"github.com/sirupsen/logrus"
)

// SecuredStore is the read surface the secured authorization calculator
// needs from the ledger.
type SecuredStore interface {
	AccountByID(id string) (*models.Account, error)
	SecuredPositions(accountID string, denom models.Denomination) ([]models.SecuredPosition, error)
}

// SecuredCalculator computes the maximum amount currently securable against
// an account's net secured position. Pure read; no side effects.
type SecuredCalculator struct {
	store SecuredStore
	log   *logrus.Logger
}

// NewSecuredCalculator initializes a new calculator
func NewSecuredCalculator(store SecuredStore, log *logrus.Logger) *SecuredCalculator {
	return &SecuredCalculator{store: store, log: log}
}

// SecurableAmount returns the best securer for the account in the given
// denomination and the amount securable against it, converted from CXX
// units using the daynode's rate table. Foundation-audited accounts are
// unlimited. When no counterparty offers a positive net position, the
// securer is empty and the amount is zero.
func (c *SecuredCalculator) SecurableAmount(accountID string, denom models.Denomination, daynode *models.Daynode) (string, float64, error) {
	account, err := c.store.AccountByID(accountID)
	if err != nil {
		return "", 0, &StoreError{Op: "load account", Err: err}
	}
	if account.FoundationAudited {
		return "", math.Inf(1), nil
	}

	rate, err := daynode.Rates.Rate(denom)
	if err != nil {
		return "", 0, &ValidationError{Entity: accountID, Reason: err.Error()}
	}

	positions, err := c.store.SecuredPositions(accountID, denom)
	if err != nil {
		return "", 0, &StoreError{Op: "aggregate secured positions", Err: err}
	}

	var best models.SecuredPosition
	for _, p := range positions {
		if p.NetCXX > best.NetCXX {
			best = p
		}
	}
	if best.SecurerID == "" || best.NetCXX <= 0 {
		return "", 0, nil
	}

	amount := best.NetCXX / rate
	c.log.Debugf("securable for %s in %s: %.6f via %s", accountID, denom, amount, best.SecurerID)
	return best.SecurerID, amount, nil
}
