package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/credex-network/clearing/internal/models"
)

// ActiveDaynode retrieves the single active daynode.
func (r *Repository) ActiveDaynode() (*models.Daynode, error) {
	dn := &models.Daynode{}
	var rates []byte
	var next sql.NullString
	query := `
		SELECT id, to_char(day, 'YYYY-MM-DD'), active, daily_job_running, minute_job_running,
		       rates, cxx_in_xau, prior_ratio, next_daynode_id, created_at
		FROM clearing.daynodes
		WHERE active = TRUE`
	err := r.db.QueryRow(query).
		Scan(&dn.ID, &dn.Date, &dn.Active, &dn.DailyJobRunning, &dn.MinuteJobRunning,
			&rates, &dn.CXXInXAU, &dn.PriorToCurrentRatio, &next, &dn.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active daynode")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active daynode: %w", err)
	}
	if err := json.Unmarshal(rates, &dn.Rates); err != nil {
		return nil, fmt.Errorf("failed to decode daynode rates: %w", err)
	}
	if next.Valid {
		dn.NextDaynodeID = next.String
	}
	return dn, nil
}

// SetMinuteJobRunning flips the minute-job lock flag on a daynode.
func (r *Repository) SetMinuteJobRunning(daynodeID string, running bool) error {
	query := `UPDATE clearing.daynodes SET minute_job_running = $2 WHERE id = $1`
	if _, err := r.db.Exec(query, daynodeID, running); err != nil {
		return fmt.Errorf("failed to set minute job flag: %w", err)
	}
	return nil
}

// SetDailyJobRunning flips the daily-job lock flag on a daynode.
func (r *Repository) SetDailyJobRunning(daynodeID string, running bool) error {
	query := `UPDATE clearing.daynodes SET daily_job_running = $2 WHERE id = $1`
	if _, err := r.db.Exec(query, daynodeID, running); err != nil {
		return fmt.Errorf("failed to set daily job flag: %w", err)
	}
	return nil
}

// RollDaynode creates the next daynode, deactivates the expiring one and
// links it to its successor, all in one transaction. The new daynode starts
// active with the daily-job lock still held.
func (r *Repository) RollDaynode(expiringID string, next *models.Daynode) error {
	rates, err := json.Marshal(next.Rates)
	if err != nil {
		return fmt.Errorf("failed to encode rates: %w", err)
	}
	return r.withTx(func(tx *sql.Tx) error {
		deactivate := `
			UPDATE clearing.daynodes
			SET active = FALSE, daily_job_running = FALSE, next_daynode_id = $2
			WHERE id = $1`
		if _, err := tx.Exec(deactivate, expiringID, next.ID); err != nil {
			return fmt.Errorf("failed to deactivate daynode %s: %w", expiringID, err)
		}
		insert := `
			INSERT INTO clearing.daynodes
				(id, day, active, daily_job_running, minute_job_running, rates, cxx_in_xau, prior_ratio)
			VALUES ($1, $2, TRUE, TRUE, FALSE, $3, $4, $5)`
		if _, err := tx.Exec(insert, next.ID, next.Date, rates, next.CXXInXAU, next.PriorToCurrentRatio); err != nil {
			return fmt.Errorf("failed to insert daynode %s: %w", next.ID, err)
		}
		return nil
	})
}
