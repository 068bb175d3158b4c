package repository

import (
	"database/sql"
	"fmt"

	"github.com/credex-network/clearing/internal/models"
	"github.com/lib/pq"
)

// SearchCredexExists reports whether a credex is already present in the
// search projection.
func (r *Repository) SearchCredexExists(credexID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM clearing.search_edges WHERE credex_id = $1)`
	if err := r.db.QueryRow(query, credexID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check search credex %s: %w", credexID, err)
	}
	return exists, nil
}

// CreateSearchCredex inserts one debt edge into the search projection.
func (r *Repository) CreateSearchCredex(edge *models.SearchEdge) error {
	query := `
		INSERT INTO clearing.search_edges
			(credex_id, issuer_id, acceptor_id, outstanding, classification, denomination, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (credex_id) DO NOTHING`
	_, err := r.db.Exec(query, edge.CredexID, edge.IssuerID, edge.AcceptorID,
		edge.Outstanding, edge.Classification, string(edge.Denomination),
		edge.DueDate.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to create search credex %s: %w", edge.CredexID, err)
	}
	return nil
}

// SearchEdges lists every uncleared edge of one netting classification.
func (r *Repository) SearchEdges(classification string) ([]models.SearchEdge, error) {
	query := `
		SELECT credex_id, issuer_id, acceptor_id, outstanding, classification, denomination, due_date
		FROM clearing.search_edges
		WHERE classification = $1 AND outstanding > 0`
	rows, err := r.db.Query(query, classification)
	if err != nil {
		return nil, fmt.Errorf("failed to list search edges: %w", err)
	}
	defer rows.Close()

	var edges []models.SearchEdge
	for rows.Next() {
		var e models.SearchEdge
		err := rows.Scan(&e.CredexID, &e.IssuerID, &e.AcceptorID, &e.Outstanding,
			&e.Classification, &e.Denomination, &e.DueDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ClearLoop applies one cleared cycle in a single transaction: every member
// credex is redeemed by the loop's cleared amount on both the ledger and the
// projection, fully redeemed credexes are closed and dropped from the
// projection, and the loop record is written. The same amount leaves each
// edge, so total system value is conserved.
func (r *Repository) ClearLoop(loop *models.LoopRecord, redeemedIDs []string) error {
	return r.withTx(func(tx *sql.Tx) error {
		redeem := `
			UPDATE clearing.credexes
			SET redeemed_amount = redeemed_amount + $2,
			    outstanding_amount = outstanding_amount - $2,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ANY($1)`
		if _, err := tx.Exec(redeem, pq.Array(loop.CredexIDs), loop.ClearedAmount); err != nil {
			return fmt.Errorf("failed to redeem loop credexes: %w", err)
		}

		reduce := `
			UPDATE clearing.search_edges
			SET outstanding = outstanding - $2
			WHERE credex_id = ANY($1)`
		if _, err := tx.Exec(reduce, pq.Array(loop.CredexIDs), loop.ClearedAmount); err != nil {
			return fmt.Errorf("failed to reduce search edges: %w", err)
		}

		if len(redeemedIDs) > 0 {
			close := `
				UPDATE clearing.credexes
				SET status = $2,
				    outstanding_amount = 0,
				    redeemed_amount = initial_amount - defaulted_amount - written_off_amount,
				    updated_at = CURRENT_TIMESTAMP
				WHERE id = ANY($1)`
			if _, err := tx.Exec(close, pq.Array(redeemedIDs), string(models.CredexRedeemed)); err != nil {
				return fmt.Errorf("failed to close redeemed credexes: %w", err)
			}
			drop := `DELETE FROM clearing.search_edges WHERE credex_id = ANY($1)`
			if _, err := tx.Exec(drop, pq.Array(redeemedIDs)); err != nil {
				return fmt.Errorf("failed to drop redeemed search edges: %w", err)
			}
		}

		record := `
			INSERT INTO clearing.loop_records (id, daynode_id, cleared_amount)
			VALUES ($1, $2, $3)`
		if _, err := tx.Exec(record, loop.ID, loop.DaynodeID, loop.ClearedAmount); err != nil {
			return fmt.Errorf("failed to write loop record: %w", err)
		}
		for _, credexID := range loop.CredexIDs {
			member := `
				INSERT INTO clearing.loop_credexes (loop_id, credex_id, amount_cleared)
				VALUES ($1, $2, $3)`
			if _, err := tx.Exec(member, loop.ID, credexID, loop.ClearedAmount); err != nil {
				return fmt.Errorf("failed to write loop member %s: %w", credexID, err)
			}
		}
		return nil
	})
}
