package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/credex-network/clearing/internal/models"
)

// QueuedCredexes lists accepted credexes the minute queue has not yet fed to
// the loop finder, oldest acceptance first.
func (r *Repository) QueuedCredexes() ([]models.Credex, error) {
	query := `
		SELECT id, issuer_id, acceptor_id, denomination, cxx_multiplier,
		       initial_amount, outstanding_amount, redeemed_amount,
		       defaulted_amount, written_off_amount, credex_type,
		       COALESCE(secured_denom, ''), due_date, status, queue_status,
		       created_daynode_id, accepted_at, created_at, updated_at
		FROM clearing.credexes
		WHERE status = $1 AND queue_status = $2
		ORDER BY accepted_at ASC`
	rows, err := r.db.Query(query, string(models.CredexOwes), string(models.QueuePending))
	if err != nil {
		return nil, fmt.Errorf("failed to list queued credexes: %w", err)
	}
	defer rows.Close()

	var credexes []models.Credex
	for rows.Next() {
		var c models.Credex
		var due sql.NullTime
		var accepted sql.NullTime
		err := rows.Scan(&c.ID, &c.IssuerID, &c.AcceptorID, &c.Denomination,
			&c.CXXMultiplier, &c.InitialAmount, &c.OutstandingAmount,
			&c.RedeemedAmount, &c.DefaultedAmount, &c.WrittenOffAmount,
			&c.Type, &c.SecuredDenom, &due, &c.Status, &c.QueueStatus,
			&c.CreatedDaynodeID, &accepted, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued credex: %w", err)
		}
		if due.Valid {
			d := due.Time
			c.DueDate = &d
		}
		if accepted.Valid {
			a := accepted.Time
			c.AcceptedAt = &a
		}
		credexes = append(credexes, c)
	}
	return credexes, rows.Err()
}

// CredexQueueStatus reads a credex's queue status.
func (r *Repository) CredexQueueStatus(credexID string) (models.QueueStatus, error) {
	var status models.QueueStatus
	query := `SELECT queue_status FROM clearing.credexes WHERE id = $1`
	if err := r.db.QueryRow(query, credexID).Scan(&status); err != nil {
		return "", fmt.Errorf("failed to load queue status for %s: %w", credexID, err)
	}
	return status, nil
}

// MarkCredexProcessed records that the loop finder has finished with a
// credex; re-processing an unchanged graph is then a no-op.
func (r *Repository) MarkCredexProcessed(credexID string) error {
	query := `
		UPDATE clearing.credexes
		SET queue_status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	if _, err := r.db.Exec(query, credexID, string(models.QueueProcessed)); err != nil {
		return fmt.Errorf("failed to mark credex %s processed: %w", credexID, err)
	}
	return nil
}

// DefaultOverdueCredexes moves every overdue unsecured debt into default:
// the full outstanding amount becomes the defaulted amount, the credex is
// removed from the search projection, and a permanent audit edge links it
// to the expiring daynode. Returns the number of credexes defaulted.
func (r *Repository) DefaultOverdueCredexes(expiringDaynodeID string, asOf time.Time) (int, error) {
	var count int
	err := r.withTx(func(tx *sql.Tx) error {
		sweep := `
			UPDATE clearing.credexes
			SET defaulted_amount = outstanding_amount,
			    outstanding_amount = 0,
			    status = $1,
			    defaulted_daynode_id = $2,
			    updated_at = CURRENT_TIMESTAMP
			WHERE status = $3
			  AND secured_denom IS NULL
			  AND due_date < $4::date
			  AND defaulted_amount = 0
			RETURNING id`
		rows, err := tx.Query(sweep, string(models.CredexDefaulted), expiringDaynodeID,
			string(models.CredexOwes), asOf.Format("2006-01-02"))
		if err != nil {
			return fmt.Errorf("failed to sweep overdue credexes: %w", err)
		}
		defer rows.Close()

		var defaulted []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("failed to scan defaulted credex id: %w", err)
			}
			defaulted = append(defaulted, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range defaulted {
			audit := models.Edge{Kind: models.EdgeDefaultedOn, FromID: id, ToID: expiringDaynodeID}
			if err := insertEdge(tx, audit); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM clearing.search_edges WHERE credex_id = $1`, id); err != nil {
				return fmt.Errorf("failed to drop defaulted credex %s from projection: %w", id, err)
			}
		}
		count = len(defaulted)
		return nil
	})
	return count, err
}

// ExpireStaleProposals marks every never-accepted proposal created before
// the cutoff as expired. Credexes are never deleted.
func (r *Repository) ExpireStaleProposals(before time.Time) (int, error) {
	query := `
		UPDATE clearing.credexes
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE status = $2 AND created_at < $3`
	res, err := r.db.Exec(query, string(models.CredexExpired), string(models.CredexPending), before)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale proposals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired proposals: %w", err)
	}
	return int(n), nil
}

// RescaleLedger rescales every amount in the store to the new daynode's
// rates in a single transaction. CXX-denominated records divide by the
// rebase ratio; every other record is recomputed through its multiplier.
// Rows already stamped with the new daynode id are skipped, so a crashed or
// repeated run cannot rescale a record twice.
func (r *Repository) RescaleLedger(newDaynodeID string, ratio float64, oldRates, newRates models.RateTable) error {
	return r.withTx(func(tx *sql.Tx) error {
		cxxCredexes := `
			UPDATE clearing.credexes
			SET initial_amount = initial_amount / $2,
			    outstanding_amount = outstanding_amount / $2,
			    redeemed_amount = redeemed_amount / $2,
			    defaulted_amount = defaulted_amount / $2,
			    written_off_amount = written_off_amount / $2,
			    rescaled_daynode_id = $1,
			    updated_at = CURRENT_TIMESTAMP
			WHERE denomination = $3
			  AND rescaled_daynode_id IS DISTINCT FROM $1`
		if _, err := tx.Exec(cxxCredexes, newDaynodeID, ratio, string(models.DenomCXX)); err != nil {
			return fmt.Errorf("failed to rescale CXX credexes: %w", err)
		}

		for denom, newMult := range newRates {
			if denom == models.DenomCXX {
				continue
			}
			credexes := `
				UPDATE clearing.credexes
				SET initial_amount = initial_amount / cxx_multiplier * $2,
				    outstanding_amount = outstanding_amount / cxx_multiplier * $2,
				    redeemed_amount = redeemed_amount / cxx_multiplier * $2,
				    defaulted_amount = defaulted_amount / cxx_multiplier * $2,
				    written_off_amount = written_off_amount / cxx_multiplier * $2,
				    cxx_multiplier = $2,
				    rescaled_daynode_id = $1,
				    updated_at = CURRENT_TIMESTAMP
				WHERE denomination = $3
				  AND rescaled_daynode_id IS DISTINCT FROM $1`
			if _, err := tx.Exec(credexes, newDaynodeID, newMult, string(denom)); err != nil {
				return fmt.Errorf("failed to rescale %s credexes: %w", denom, err)
			}

			oldMult, ok := oldRates[denom]
			if !ok || oldMult <= 0 {
				// Denomination newly tracked today; no projection rows can
				// exist for it yet.
				continue
			}
			edges := `
				UPDATE clearing.search_edges
				SET outstanding = outstanding / $2 * $3,
				    rescaled_daynode_id = $1
				WHERE denomination = $4
				  AND rescaled_daynode_id IS DISTINCT FROM $1`
			if _, err := tx.Exec(edges, newDaynodeID, oldMult, newMult, string(denom)); err != nil {
				return fmt.Errorf("failed to rescale %s search edges: %w", denom, err)
			}
		}

		cxxEdges := `
			UPDATE clearing.search_edges
			SET outstanding = outstanding / $2,
			    rescaled_daynode_id = $1
			WHERE denomination = $3
			  AND rescaled_daynode_id IS DISTINCT FROM $1`
		if _, err := tx.Exec(cxxEdges, newDaynodeID, ratio, string(models.DenomCXX)); err != nil {
			return fmt.Errorf("failed to rescale CXX search edges: %w", err)
		}

		// Loop records hold pure CXX aggregates, so the ratio applies to the
		// record total and every per-credex cleared amount alike.
		loops := `
			UPDATE clearing.loop_records
			SET cleared_amount = cleared_amount / $2,
			    rescaled_daynode_id = $1
			WHERE rescaled_daynode_id IS DISTINCT FROM $1
			RETURNING id`
		rows, err := tx.Query(loops, newDaynodeID, ratio)
		if err != nil {
			return fmt.Errorf("failed to rescale loop records: %w", err)
		}
		var loopIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan rescaled loop id: %w", err)
			}
			loopIDs = append(loopIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, loopID := range loopIDs {
			loopAmounts := `
				UPDATE clearing.loop_credexes
				SET amount_cleared = amount_cleared / $2
				WHERE loop_id = $1`
			if _, err := tx.Exec(loopAmounts, loopID, ratio); err != nil {
				return fmt.Errorf("failed to rescale loop %s credex amounts: %w", loopID, err)
			}
		}
		return nil
	})
}
