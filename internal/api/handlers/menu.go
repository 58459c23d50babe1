package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MenuHandler struct {
	menus   *service.MenuService
	configs *service.ConfigService
	logger  *zap.Logger
}

func NewMenuHandler(menus *service.MenuService, configs *service.ConfigService, logger *zap.Logger) *MenuHandler {
	return &MenuHandler{menus: menus, configs: configs, logger: logger}
}

type menuRequest struct {
	Slug  string          `json:"slug" validate:"omitempty,max=64,slug"`
	Title string          `json:"title" validate:"required,max=256"`
	Items []domain.Action `json:"items"`
}

func (req menuRequest) menu(tenantID uuid.UUID, slug string) *domain.Menu {
	items := req.Items
	if items == nil {
		items = []domain.Action{}
	}
	return &domain.Menu{
		ID:       uuid.New(),
		TenantID: tenantID,
		Slug:     slug,
		Title:    req.Title,
		Items:    items,
	}
}

func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	menus, err := h.menus.List(r.Context(), tenant.ID)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if menus == nil {
		menus = []*domain.Menu{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"menus": menus})
}

func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	m, err := h.menus.Get(r.Context(), tenant.ID, chi.URLParam(r, "slug"))
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	var req menuRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if req.Slug == "" {
		writeErr(w, r, h.logger, domain.Validationf("slug is required"))
		return
	}

	m := req.menu(tenant.ID, req.Slug)
	if err := h.menus.Create(r.Context(), m); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Replace overwrites the whole menu addressed by the URL slug.
func (h *MenuHandler) Replace(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	var req menuRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	m := req.menu(tenant.ID, chi.URLParam(r, "slug"))
	if err := h.menus.Replace(r.Context(), m); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	if err := h.menus.Delete(r.Context(), tenant.ID, chi.URLParam(r, "slug")); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MenuHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	cfg, err := h.configs.GetAll(r.Context(), tenant.ID)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if cfg == nil {
		cfg = domain.BotConfig{}
	}
	writeJSON(w, http.StatusOK, cfg)
}

type configRequest struct {
	Key   string `json:"key" validate:"required,max=64,configkey"`
	Value string `json:"value" validate:"max=50000"`
}

func (h *MenuHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	var req configRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if err := h.configs.Set(r.Context(), tenant.ID, req.Key, req.Value); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": req.Key, "value": req.Value})
}
