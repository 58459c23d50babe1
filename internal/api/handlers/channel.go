package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// AlreadyLoggedIn is the QR endpoint's body once the device is paired.
const AlreadyLoggedIn = "Already logged in"

const (
	qrImageSize    = 256
	connectTimeout = 15 * time.Second
)

// Sessions is the session orchestrator as seen by the API.
type Sessions interface {
	Connect(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error)
	Await(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error)
	Status(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error)
	Pairing(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, bool, error)
	Disconnect(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, logout bool) (domain.ChannelSession, error)
	Validate(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, secret string) (string, error)
}

// TokenSaver persists a tenant's bot token.
type TokenSaver interface {
	SetTelegramToken(ctx context.Context, id uuid.UUID, token string) error
}

type ChannelHandler struct {
	sessions Sessions
	tokens   TokenSaver
	logger   *zap.Logger
}

func NewChannelHandler(sessions Sessions, tokens TokenSaver, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{sessions: sessions, tokens: tokens, logger: logger}
}

type sessionResponse struct {
	domain.ChannelSession
	Connected bool `json:"connected"`
}

func newSessionResponse(s domain.ChannelSession) sessionResponse {
	s.Pairing = nil
	return sessionResponse{ChannelSession: s, Connected: s.State == domain.StateConnected}
}

func (h *ChannelHandler) status(kind domain.ChannelKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := tenantOf(w, r)
		if tenant == nil {
			return
		}
		s, err := h.sessions.Status(r.Context(), tenant.ID, kind)
		if err != nil {
			writeErr(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionResponse(s))
	}
}

func (h *ChannelHandler) WhatsAppStatus(w http.ResponseWriter, r *http.Request) {
	h.status(domain.ChannelWhatsApp)(w, r)
}

func (h *ChannelHandler) TelegramStatus(w http.ResponseWriter, r *http.Request) {
	h.status(domain.ChannelTelegram)(w, r)
}

// WhatsAppConnect starts pairing or reconnects a paired device. It returns
// without waiting; clients poll the QR endpoint.
func (h *ChannelHandler) WhatsAppConnect(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	if !tenant.WAEnabled {
		writeError(w, http.StatusForbidden, "WhatsApp is disabled for this account")
		return
	}
	s, err := h.sessions.Connect(r.Context(), tenant.ID, domain.ChannelWhatsApp)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newSessionResponse(s))
}

// WhatsAppQR serves the current pairing code as a PNG. A paired device gets
// the AlreadyLoggedIn text; a handshake without a valid code yet gets 202.
func (h *ChannelHandler) WhatsAppQR(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	s, ready, err := h.sessions.Pairing(r.Context(), tenant.ID, domain.ChannelWhatsApp)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	switch {
	case s.State == domain.StateConnected:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(AlreadyLoggedIn))
		return
	case !s.State.IsLive():
		writeError(w, http.StatusConflict, "no pairing in progress, connect first")
		return
	case !ready:
		writeJSON(w, http.StatusAccepted, map[string]any{"state": s.State, "status": "regenerating"})
		return
	}

	png, err := qrcode.Encode(s.Pairing.Code, qrcode.Medium, qrImageSize)
	if err != nil {
		writeErr(w, r, h.logger, errors.Wrap(err, "encode qr"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Pairing-Expires-At", s.Pairing.ExpiresAt.UTC().Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// WhatsAppLogout unlinks the device and forgets its credential.
func (h *ChannelHandler) WhatsAppLogout(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	s, err := h.sessions.Disconnect(r.Context(), tenant.ID, domain.ChannelWhatsApp, true)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

type tokenRequest struct {
	Token string `json:"token" validate:"required,max=256"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	BotName string `json:"bot_name,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TelegramValidate checks a token without saving it or touching the session.
func (h *ChannelHandler) TelegramValidate(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	name, err := h.sessions.Validate(r.Context(), tenant.ID, domain.ChannelTelegram, req.Token)
	if err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			writeJSON(w, http.StatusOK, validateResponse{Valid: false, Error: "invalid bot token"})
			return
		}
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true, BotName: name})
}

// TelegramSaveToken validates then stores the bot token.
func (h *ChannelHandler) TelegramSaveToken(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	name, err := h.sessions.Validate(r.Context(), tenant.ID, domain.ChannelTelegram, req.Token)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	if err := h.tokens.SetTelegramToken(r.Context(), tenant.ID, req.Token); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: true, BotName: name})
}

// TelegramConnect starts the bot with the saved token and waits briefly for
// the handshake to settle.
func (h *ChannelHandler) TelegramConnect(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	if tenant.TelegramToken == "" {
		writeError(w, http.StatusBadRequest, "save a bot token first")
		return
	}
	if _, err := h.sessions.Connect(r.Context(), tenant.ID, domain.ChannelTelegram); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), connectTimeout)
	defer cancel()
	s, err := h.sessions.Await(ctx, tenant.ID, domain.ChannelTelegram)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if s.State == domain.StateFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, newSessionResponse(s))
}

func (h *ChannelHandler) TelegramDisconnect(w http.ResponseWriter, r *http.Request) {
	tenant := tenantOf(w, r)
	if tenant == nil {
		return
	}
	s, err := h.sessions.Disconnect(r.Context(), tenant.ID, domain.ChannelTelegram, false)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}
