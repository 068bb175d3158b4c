package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/credex-network/clearing/internal/middleware"
	"github.com/sirupsen/logrus"
)

// JobRunner triggers the periodic jobs on demand. Satisfied by the
// scheduler.
type JobRunner interface {
	RunMinuteNow() error
	RunDailyNow(ctx context.Context) error
}

// Handler exposes the operational job-trigger endpoints. The member-facing
// API lives in a separate service.
type Handler struct {
	sched JobRunner
	log   *logrus.Logger
}

func NewHandler(sched JobRunner, log *logrus.Logger) *Handler {
	return &Handler{sched: sched, log: log}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// RunMTQ triggers one minute pass immediately.
func (h *Handler) RunMTQ(w http.ResponseWriter, r *http.Request) {
	h.log.Infof("minute pass triggered by %s", middleware.Subject(r.Context()))
	if err := h.sched.RunMinuteNow(); err != nil {
		h.log.Errorf("manual minute pass failed: %v", err)
		http.Error(w, "Minute pass failed", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"completed": true})
}

// RunDCO triggers the full daily task immediately.
func (h *Handler) RunDCO(w http.ResponseWriter, r *http.Request) {
	h.log.Infof("daily rebase triggered by %s", middleware.Subject(r.Context()))
	if err := h.sched.RunDailyNow(r.Context()); err != nil {
		h.log.Errorf("manual daily rebase failed: %v", err)
		http.Error(w, "Daily rebase failed", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]bool{"completed": true})
}
