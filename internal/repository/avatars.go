package repository

import (
	"database/sql"
	"fmt"

	"github.com/credex-network/clearing/internal/models"
)

// DueAvatars lists recurring instructions due on or before the given
// network day. The predicate catches up instructions whose replay failed on
// an earlier day, or whose whole daily run was missed.
func (r *Repository) DueAvatars(date string) ([]models.Avatar, error) {
	query := `
		SELECT id, owner_id, counterparty_id, amount, denomination, secured,
		       due_span_days, interval_days,
		       COALESCE(to_char(next_pay_date, 'YYYY-MM-DD'), ''),
		       remaining_pays, complete, created_at, updated_at
		FROM clearing.avatars
		WHERE complete = FALSE AND next_pay_date <= $1::date
		ORDER BY created_at`
	rows, err := r.db.Query(query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list due avatars: %w", err)
	}
	defer rows.Close()

	var avatars []models.Avatar
	for rows.Next() {
		var a models.Avatar
		var remaining sql.NullInt64
		err := rows.Scan(&a.ID, &a.OwnerID, &a.CounterpartyID, &a.Amount,
			&a.Denomination, &a.Secured, &a.DueSpanDays, &a.IntervalDays,
			&a.NextPayDate, &remaining, &a.Complete, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan avatar: %w", err)
		}
		if remaining.Valid {
			n := int(remaining.Int64)
			a.RemainingPays = &n
		}
		avatars = append(avatars, a)
	}
	return avatars, rows.Err()
}

// AdvanceAvatar persists the avatar's new schedule state after a successful
// replay: decremented counter and next payment date (or none).
func (r *Repository) AdvanceAvatar(avatar *models.Avatar) error {
	var next any
	if avatar.NextPayDate != "" {
		next = avatar.NextPayDate
	}
	var remaining any
	if avatar.RemainingPays != nil {
		remaining = *avatar.RemainingPays
	}
	query := `
		UPDATE clearing.avatars
		SET next_pay_date = $2::date, remaining_pays = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	if _, err := r.db.Exec(query, avatar.ID, next, remaining); err != nil {
		return fmt.Errorf("failed to advance avatar %s: %w", avatar.ID, err)
	}
	return nil
}

// CompleteAvatar marks an exhausted instruction complete and removes its
// active-instruction edges.
func (r *Repository) CompleteAvatar(avatarID string) error {
	return r.withTx(func(tx *sql.Tx) error {
		mark := `
			UPDATE clearing.avatars
			SET complete = TRUE, next_pay_date = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1`
		if _, err := tx.Exec(mark, avatarID); err != nil {
			return fmt.Errorf("failed to mark avatar %s complete: %w", avatarID, err)
		}
		edges := `DELETE FROM clearing.edges WHERE kind = $1 AND from_id = $2`
		if _, err := tx.Exec(edges, string(models.EdgeActiveAvatar), avatarID); err != nil {
			return fmt.Errorf("failed to remove avatar %s edges: %w", avatarID, err)
		}
		return nil
	})
}
