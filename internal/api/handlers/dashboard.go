package handlers

import (
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/service"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	dashboard *service.DashboardService
	quota     *service.QuotaService
	logger    *zap.Logger
}

func NewDashboardHandler(dashboard *service.DashboardService, quota *service.QuotaService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, quota: quota, logger: logger}
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	stats, err := h.dashboard.Stats(r.Context(), tenant.ID)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Usage returns per-day message counts for the last ?days=N days.
func (h *DashboardHandler) Usage(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeErr(w, r, h.logger, domain.Validationf("days must be a positive integer"))
			return
		}
		days = n
	}

	history, err := h.quota.History(r.Context(), tenant.ID, days)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if history == nil {
		history = []domain.DailyUsage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": history})
}
