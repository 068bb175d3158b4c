package repository

import (
	"database/sql"
	"fmt"

	"github.com/credex-network/clearing/internal/models"
)

const accountColumns = `
	id, handle, account_type, default_denom, dco_give_amount, dco_denom,
	foundation_audited, status, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Handle, &a.Type, &a.DefaultDenom, &a.DCOGiveAmount,
		&a.DCODenom, &a.FoundationAudited, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AccountByID retrieves one account.
func (r *Repository) AccountByID(id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM clearing.accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	return account, nil
}

// FoundationAccount retrieves the system-operated settlement counterparty.
func (r *Repository) FoundationAccount() (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM clearing.accounts WHERE account_type = $1 LIMIT 1`
	account, err := scanAccount(r.db.QueryRow(query, string(models.AccountFoundation)))
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load foundation account: %w", err)
	}
	return account, nil
}

// PendingAccounts lists accounts not yet materialized into the search
// projection.
func (r *Repository) PendingAccounts() ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM clearing.accounts WHERE status = $1 ORDER BY created_at`
	rows, err := r.db.Query(query, string(models.AccountPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// MaterializeSearchAccount inserts the account into the search projection
// and marks it active, in one transaction.
func (r *Repository) MaterializeSearchAccount(accountID string) error {
	return r.withTx(func(tx *sql.Tx) error {
		insert := `
			INSERT INTO clearing.search_accounts (account_id)
			VALUES ($1)
			ON CONFLICT (account_id) DO NOTHING`
		if _, err := tx.Exec(insert, accountID); err != nil {
			return fmt.Errorf("failed to materialize search account %s: %w", accountID, err)
		}
		activate := `
			UPDATE clearing.accounts
			SET status = $2, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1`
		if _, err := tx.Exec(activate, accountID, string(models.AccountActive)); err != nil {
			return fmt.Errorf("failed to activate account %s: %w", accountID, err)
		}
		return nil
	})
}

// ParticipantAccounts lists active accounts with a positive declared daily
// contribution.
func (r *Repository) ParticipantAccounts() ([]models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM clearing.accounts
		WHERE status = $1 AND dco_give_amount > 0
		ORDER BY created_at`
	rows, err := r.db.Query(query, string(models.AccountActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list participant accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// SecuredPositions aggregates active secured debt of one denomination
// touching the account, grouped by counterparty.
func (r *Repository) SecuredPositions(accountID string, denom models.Denomination) ([]models.SecuredPosition, error) {
	query := `
		SELECT CASE WHEN issuer_id = $1 THEN acceptor_id ELSE issuer_id END AS securer,
		       SUM(CASE WHEN acceptor_id = $1 THEN outstanding_amount ELSE -outstanding_amount END) AS net_cxx
		FROM clearing.credexes
		WHERE status = $2
		  AND secured_denom = $3
		  AND (issuer_id = $1 OR acceptor_id = $1)
		GROUP BY securer`
	rows, err := r.db.Query(query, accountID, string(models.CredexOwes), string(denom))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate secured positions: %w", err)
	}
	defer rows.Close()

	var positions []models.SecuredPosition
	for rows.Next() {
		var p models.SecuredPosition
		if err := rows.Scan(&p.SecurerID, &p.NetCXX); err != nil {
			return nil, fmt.Errorf("failed to scan secured position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
