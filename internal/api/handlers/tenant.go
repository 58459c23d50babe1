package handlers

import (
	"net/http"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/service"
	"go.uber.org/zap"
)

type TenantHandler struct {
	tenants *service.TenantService
	logger  *zap.Logger
}

func NewTenantHandler(tenants *service.TenantService, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{tenants: tenants, logger: logger}
}

type createTenantRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Password string `json:"password" validate:"omitempty,min=8,max=128"`
}

type createTenantResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// Create registers a regular tenant. The API key is only ever returned here.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	tenant, apiKey, err := h.tenants.Create(r.Context(), req.Name, req.Password, domain.RoleUser)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, createTenantResponse{
		ID:     tenant.ID.String(),
		Name:   tenant.Name,
		APIKey: apiKey,
	})
}

type loginRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	TenantID  string      `json:"tenant_id"`
	Role      domain.Role `json:"role"`
}

func (h *TenantHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	token, exp, tenant, err := h.tenants.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: exp,
		TenantID:  tenant.ID.String(),
		Role:      tenant.Role,
	})
}

// Me returns the authenticated tenant.
func (h *TenantHandler) Me(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}
