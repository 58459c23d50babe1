package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/service"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TableHandler struct {
	datasets  *service.DatasetService
	importer  *service.Importer
	maxUpload int64
	searchCap int
	logger    *zap.Logger
}

func NewTableHandler(datasets *service.DatasetService, importer *service.Importer, maxUpload int64, searchCap int, logger *zap.Logger) *TableHandler {
	return &TableHandler{
		datasets:  datasets,
		importer:  importer,
		maxUpload: maxUpload,
		searchCap: searchCap,
		logger:    logger,
	}
}

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	tables, err := h.datasets.List(r.Context(), tenant.ID)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if tables == nil {
		tables = []*domain.Dataset{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// Import reads a multipart form with a CSV "file" and a "display_name".
func (h *TableHandler) Import(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeErr(w, r, h.logger, domain.Validationf("invalid multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, r, h.logger, domain.Validationf("file is required"))
		return
	}
	defer file.Close()

	displayName := strings.TrimSpace(r.FormValue("display_name"))
	if displayName == "" {
		displayName = strings.TrimSuffix(header.Filename, ".csv")
	}

	d, n, err := h.importer.Import(r.Context(), tenant.ID, displayName, file)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"table":         d,
		"rows_imported": n,
	})
}

type rowResponse struct {
	ID     int64             `json:"id"`
	Values map[string]string `json:"values"`
}

func (h *TableHandler) Data(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	d, ok := h.resolve(w, r, tenant)
	if !ok {
		return
	}
	d, rows, err := h.datasets.ListRows(r.Context(), tenant.ID, d.ID)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	out := make([]rowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowResponse{ID: row.ID, Values: row.Record(d.Columns)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"table_name":   d.Name,
		"display_name": d.DisplayName,
		"columns":      d.Columns,
		"rows":         out,
	})
}

type updateRowRequest struct {
	ID   int64             `json:"id" validate:"required"`
	Data map[string]string `json:"data" validate:"required"`
}

func (h *TableHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	var req updateRowRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	d, ok := h.resolve(w, r, tenant)
	if !ok {
		return
	}
	if err := h.datasets.UpdateRow(r.Context(), tenant.ID, d.ID, req.ID, req.Data); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "updated": true})
}

type deleteRowRequest struct {
	ID int64 `json:"id" validate:"required"`
}

// DeleteRow takes the row id from ?id= or from a JSON body.
func (h *TableHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}

	var rowID int64
	if v := r.URL.Query().Get("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeErr(w, r, h.logger, domain.Validationf("id must be a positive integer"))
			return
		}
		rowID = id
	} else {
		var req deleteRowRequest
		if err := decode(r, &req); err != nil {
			writeErr(w, r, h.logger, err)
			return
		}
		rowID = req.ID
	}

	d, ok := h.resolve(w, r, tenant)
	if !ok {
		return
	}
	if err := h.datasets.DeleteRow(r.Context(), tenant.ID, d.ID, rowID); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	d, ok := h.resolve(w, r, tenant)
	if !ok {
		return
	}
	if err := h.datasets.DeleteTable(r.Context(), tenant.ID, d.ID); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type searchHitResponse struct {
	Table  string            `json:"table_name"`
	RowID  int64             `json:"row_id"`
	Values map[string]string `json:"values"`
}

// Search matches ?q= against every table the tenant owns.
func (h *TableHandler) Search(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeErr(w, r, h.logger, domain.Validationf("q is required"))
		return
	}
	hits, err := h.datasets.Search(r.Context(), tenant.ID, q, h.searchCap)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	out := make([]searchHitResponse, 0, len(hits))
	for _, hit := range hits {
		out = append(out, searchHitResponse{
			Table:  hit.Dataset.Name,
			RowID:  hit.Row.ID,
			Values: hit.Row.Record(hit.Dataset.Columns),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h *TableHandler) resolve(w http.ResponseWriter, r *http.Request, tenant *domain.Tenant) (*domain.Dataset, bool) {
	d, err := h.datasets.Resolve(r.Context(), tenant.ID, chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, r, h.logger, err)
		return nil, false
	}
	return d, true
}
