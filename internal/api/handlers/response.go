package handlers

import (
	"encoding/json"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/Harshitk-cp/botdesk/internal/api/middleware"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	slugRe      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	configKeyRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("configkey", func(fl validator.FieldLevel) bool {
		return configKeyRe.MatchString(fl.Field().String())
	})
	return v
}

// statusCodes maps the error taxonomy onto HTTP. Order matters: the first
// match wins.
var statusCodes = []struct {
	err    error
	status int
}{
	{domain.ErrTenantMismatch, http.StatusForbidden},
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrAuthFailed, http.StatusBadRequest},
	{domain.ErrDataError, http.StatusUnprocessableEntity},
	{domain.ErrQuotaExceeded, http.StatusTooManyRequests},
}

func statusFromErr(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr classifies err and writes a structured body. Internal errors are
// logged and replaced with a generic message; tenant mismatches never echo
// any detail.
func writeErr(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := statusFromErr(err)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err))
		writeError(w, status, "internal error")
	case errors.Is(err, domain.ErrTenantMismatch):
		writeError(w, status, "forbidden")
	default:
		writeError(w, status, err.Error())
	}
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Validationf("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+describe(fe))
			}
			return domain.Validationf("%s", strings.Join(fields, "; "))
		}
		return errors.Mark(err, domain.ErrValidation)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "exceeds " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "slug":
		return "may contain only letters, digits, '-' and '_'"
	case "configkey":
		return "may contain only letters, digits and '_'"
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "is invalid"
	}
}

// tenantOf returns the authenticated tenant, writing a 401 if there is none.
func tenantOf(w http.ResponseWriter, r *http.Request) *domain.Tenant {
	t := middleware.TenantFromContext(r.Context())
	if t == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return t
}
