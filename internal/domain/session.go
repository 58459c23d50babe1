package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChannelKind identifies an external messaging network.
type ChannelKind string

const (
	ChannelWhatsApp ChannelKind = "whatsapp"
	ChannelTelegram ChannelKind = "telegram"
)

func (k ChannelKind) IsValid() bool {
	return k == ChannelWhatsApp || k == ChannelTelegram
}

// SessionState is the lifecycle state of a channel session.
type SessionState string

const (
	StateUninitialized   SessionState = "uninitialized"
	StateConnecting      SessionState = "connecting"
	StateAwaitingPairing SessionState = "awaiting_pairing"
	StateConnected       SessionState = "connected"
	StateDisconnected    SessionState = "disconnected"
	StateFailed          SessionState = "failed"
)

// IsLive reports whether an adapter instance is running in this state.
func (s SessionState) IsLive() bool {
	switch s {
	case StateConnecting, StateAwaitingPairing, StateConnected:
		return true
	}
	return false
}

// IsTerminal reports whether a new connect request may start a fresh attempt.
func (s SessionState) IsTerminal() bool {
	return s == StateDisconnected || s == StateFailed || s == StateUninitialized
}

// PairingArtifact is a time-bounded QR payload issued by a QR-paired adapter.
type PairingArtifact struct {
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p *PairingArtifact) Expired(now time.Time) bool {
	return p == nil || !now.Before(p.ExpiresAt)
}

// ChannelSession is a point-in-time view of one (tenant, channel) session.
type ChannelSession struct {
	ID           uuid.UUID        `json:"id"`
	TenantID     uuid.UUID        `json:"tenant_id"`
	Kind         ChannelKind      `json:"kind"`
	State        SessionState     `json:"state"`
	Identity     string           `json:"identity,omitempty"`
	DisplayName  string           `json:"display_name,omitempty"`
	Pairing      *PairingArtifact `json:"pairing,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	LastActivity time.Time        `json:"last_activity"`
}

// SessionRecord is the persisted form of a session, including its credential.
type SessionRecord struct {
	TenantID     uuid.UUID
	Kind         ChannelKind
	SessionID    uuid.UUID
	State        SessionState
	Identity     string
	DisplayName  string
	Credential   string
	LastError    string
	LastActivity time.Time
	UpdatedAt    time.Time
}
