package service

import (
	"context"
	"time"

	"github.com/credex-network/clearing/internal/models"
)

// CredexRequest is the typed payload for the external credex-creation
// pipeline. Offer acceptance is a separate call; the clearing core never
// builds transport-shaped requests to invoke it.
type CredexRequest struct {
	IssuerID     string
	AcceptorID   string
	Amount       float64 // face amount in Denomination units
	Denomination models.Denomination
	SecuredDenom models.Denomination // empty for unsecured
	DueDate      *time.Time          // unsecured only
	Type         string
}

// CredexPipeline is the external create/accept flow. Both calls are remote
// and may fail; the core treats them as opaque.
type CredexPipeline interface {
	Create(ctx context.Context, req CredexRequest) (credexID string, err error)
	Accept(ctx context.Context, credexID, signerID string) error
}

// BackupTrigger starts an external snapshot of the full store. The core only
// awaits it for ordering between rebase phases.
type BackupTrigger interface {
	Backup(ctx context.Context, dateLabel, suffix string) error
}
