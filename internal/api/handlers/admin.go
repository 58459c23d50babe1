package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminHandler struct {
	dashboard *service.DashboardService
	tenants   *service.TenantService
	quota     *service.QuotaService
	sessions  Sessions
	logger    *zap.Logger
}

func NewAdminHandler(dashboard *service.DashboardService, tenants *service.TenantService, quota *service.QuotaService, sessions Sessions, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		dashboard: dashboard,
		tenants:   tenants,
		quota:     quota,
		sessions:  sessions,
		logger:    logger,
	}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.AdminStats(r.Context())
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.dashboard.Users(r.Context())
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if users == nil {
		users = []service.TenantOverview{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type statusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	admin := tenantOf(w, r)
	if admin == nil {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if id == admin.ID && !*req.IsActive {
		writeErr(w, r, h.logger, domain.Validationf("cannot deactivate your own account"))
		return
	}

	if err := h.tenants.SetActive(r.Context(), id, *req.IsActive); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	h.logger.Info("tenant status changed",
		zap.String("tenant_id", id.String()),
		zap.Bool("is_active", *req.IsActive),
		zap.String("by", admin.ID.String()))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": *req.IsActive})
}

type whatsappRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetWhatsApp toggles WhatsApp access. Disabling also ends any live session
// without unlinking the device.
func (h *AdminHandler) SetWhatsApp(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req whatsappRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	if err := h.tenants.SetWAEnabled(r.Context(), id, *req.Enabled); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if !*req.Enabled {
		if _, err := h.sessions.Disconnect(r.Context(), id, domain.ChannelWhatsApp, false); err != nil {
			writeErr(w, r, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "wa_enabled": *req.Enabled})
}

type limitsRequest struct {
	DailyLimit   int64 `json:"daily_limit" validate:"gte=0"`
	MonthlyLimit int64 `json:"monthly_limit" validate:"gte=0"`
}

// SetLimits stores new quota limits and applies them to the live ledger.
func (h *AdminHandler) SetLimits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req limitsRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	limits := domain.QuotaLimits{Daily: req.DailyLimit, Monthly: req.MonthlyLimit}
	if err := h.tenants.SetLimits(r.Context(), id, limits); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	h.quota.SetLimits(id, limits)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "daily_limit": limits.Daily, "monthly_limit": limits.Monthly})
}

func (h *AdminHandler) DisconnectWhatsApp(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	if _, err := h.tenants.Get(r.Context(), id); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	s, err := h.sessions.Disconnect(r.Context(), id, domain.ChannelWhatsApp, false)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

func (h *AdminHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, h.logger, domain.Validationf("invalid user id"))
		return uuid.Nil, false
	}
	return id, true
}
