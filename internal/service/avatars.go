package service

import (
	"context"
	"time"

	"github.com/credex-network/clearing/internal/models"
	"github.com/sirupsen/logrus"
)

// AvatarStore is the ledger surface of the recurring instruction processor.
type AvatarStore interface {
	DueAvatars(date string) ([]models.Avatar, error)
	AdvanceAvatar(avatar *models.Avatar) error
	CompleteAvatar(avatarID string) error
}

// AvatarProcessor replays recurring credex instructions that fall due on
// the active daynode's date.
type AvatarProcessor struct {
	store    AvatarStore
	pipeline CredexPipeline
	log      *logrus.Logger
}

// NewAvatarProcessor initializes the recurring instruction processor
func NewAvatarProcessor(store AvatarStore, pipeline CredexPipeline, log *logrus.Logger) *AvatarProcessor {
	return &AvatarProcessor{store: store, pipeline: pipeline, log: log}
}

// Process replays every instruction due on or before the daynode's date. A
// failed replay is logged and the instruction keeps its schedule, so the
// next run picks it up again; other instructions continue regardless.
func (p *AvatarProcessor) Process(ctx context.Context, daynode *models.Daynode) error {
	due, err := p.store.DueAvatars(daynode.Date)
	if err != nil {
		return &StoreError{Op: "list due avatars", Err: err}
	}

	day, err := time.Parse("2006-01-02", daynode.Date)
	if err != nil {
		return &InvariantViolation{Reason: "malformed daynode date " + daynode.Date}
	}

	for _, avatar := range due {
		if err := p.replay(ctx, &avatar, day); err != nil {
			p.log.Errorf("avatar %s replay failed, leaving for next run: %v", avatar.ID, err)
			continue
		}
		// The schedule steps from the instruction's own due date, which can
		// lie behind the daynode when an earlier attempt failed.
		dueDay, err := time.Parse("2006-01-02", avatar.NextPayDate)
		if err != nil {
			dueDay = day
		}
		if err := p.advance(&avatar, dueDay); err != nil {
			p.log.Errorf("failed to advance avatar %s: %v", avatar.ID, err)
		}
	}
	return nil
}

// replay builds the credex request from the instruction template and pushes
// it through the external create/accept pipeline.
func (p *AvatarProcessor) replay(ctx context.Context, avatar *models.Avatar, day time.Time) error {
	req := CredexRequest{
		IssuerID:     avatar.OwnerID,
		AcceptorID:   avatar.CounterpartyID,
		Amount:       avatar.Amount,
		Denomination: avatar.Denomination,
		Type:         "RECURRING",
	}
	if avatar.Secured {
		req.SecuredDenom = avatar.Denomination
	} else {
		dueDate := day.AddDate(0, 0, avatar.DueSpanDays)
		req.DueDate = &dueDate
	}

	credexID, err := p.pipeline.Create(ctx, req)
	if err != nil {
		return &ExternalSourceError{Source: "credex pipeline", Err: err}
	}
	if err := p.pipeline.Accept(ctx, credexID, avatar.CounterpartyID); err != nil {
		return &ExternalSourceError{Source: "credex pipeline", Err: err}
	}
	p.log.Infof("avatar %s replayed as credex %s", avatar.ID, credexID)
	return nil
}

// advance decrements a finite payment counter and schedules the next
// payment one interval after the satisfied due date, or completes the
// instruction when the counter runs out.
func (p *AvatarProcessor) advance(avatar *models.Avatar, dueDay time.Time) error {
	if avatar.RemainingPays != nil {
		remaining := *avatar.RemainingPays - 1
		avatar.RemainingPays = &remaining
		if remaining <= 0 {
			avatar.NextPayDate = ""
		} else {
			avatar.NextPayDate = dueDay.AddDate(0, 0, avatar.IntervalDays).Format("2006-01-02")
		}
	} else {
		avatar.NextPayDate = dueDay.AddDate(0, 0, avatar.IntervalDays).Format("2006-01-02")
	}

	if avatar.NextPayDate == "" && !avatar.Complete {
		if err := p.store.CompleteAvatar(avatar.ID); err != nil {
			return &StoreError{Op: "complete avatar", Err: err}
		}
		avatar.Complete = true
		return nil
	}
	if err := p.store.AdvanceAvatar(avatar); err != nil {
		return &StoreError{Op: "advance avatar", Err: err}
	}
	return nil
}
