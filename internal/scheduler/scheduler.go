package scheduler

import (
	"context"
	"fmt"

	"github.com/credex-network/clearing/internal/models"
	"github.com/credex-network/clearing/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DaynodeReader provides the active epoch to the daily task after the
// rebase has rolled it.
type DaynodeReader interface {
	ActiveDaynode() (*models.Daynode, error)
}

// Scheduler manages the two periodic clearing jobs.
type Scheduler struct {
	cron    *cron.Cron
	mtq     *service.MTQ
	dco     *service.DCO
	avatars *service.AvatarProcessor
	store   DaynodeReader
	log     *logrus.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(mtq *service.MTQ, dco *service.DCO, avatars *service.AvatarProcessor, store DaynodeReader, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		mtq:     mtq,
		dco:     dco,
		avatars: avatars,
		store:   store,
		log:     log,
	}
}

// RegisterAll registers the minute and daily tasks.
func (s *Scheduler) RegisterAll(mtqSpec, dcoSpec string) error {
	if _, err := s.cron.AddFunc(mtqSpec, s.minuteTask); err != nil {
		return fmt.Errorf("register minute task: %w", err)
	}
	if _, err := s.cron.AddFunc(dcoSpec, s.dailyTask); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("scheduler stopped")
}

// RunMinuteNow executes one minute pass immediately (for manual trigger).
func (s *Scheduler) RunMinuteNow() error {
	return s.mtq.Run()
}

// RunDailyNow executes the full daily task immediately (for manual trigger).
func (s *Scheduler) RunDailyNow(ctx context.Context) error {
	if err := s.dco.Run(ctx); err != nil {
		return err
	}
	daynode, err := s.store.ActiveDaynode()
	if err != nil {
		return fmt.Errorf("load active daynode for avatars: %w", err)
	}
	return s.avatars.Process(ctx, daynode)
}

func (s *Scheduler) minuteTask() {
	if err := s.mtq.Run(); err != nil {
		s.log.Errorf("minute pass failed: %v", err)
	}
}

func (s *Scheduler) dailyTask() {
	if err := s.RunDailyNow(context.Background()); err != nil {
		s.log.Errorf("daily rebase failed: %v", err)
	}
}
