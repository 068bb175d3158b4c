package repository

import (
	"database/sql"
	"fmt"

	"github.com/credex-network/clearing/internal/models"
)

// Repository provides database operations against the clearing ledger.
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *Repository) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertEdge writes a typed relationship edge inside tx. The kind is
// matched against the declared enum; nothing is interpolated into the
// query.
func insertEdge(tx *sql.Tx, edge models.Edge) error {
	if !models.ValidEdgeKind(edge.Kind) {
		return fmt.Errorf("unknown edge kind %q", edge.Kind)
	}
	query := `
		INSERT INTO clearing.edges (kind, from_id, to_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, from_id, to_id) DO NOTHING`
	if _, err := tx.Exec(query, string(edge.Kind), edge.FromID, edge.ToID); err != nil {
		return fmt.Errorf("failed to create %s edge: %w", edge.Kind, err)
	}
	return nil
}
