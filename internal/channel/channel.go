// Package channel defines the contract between the session orchestrator and
// the adapters that own a single external messaging connection.
package channel

import (
	"context"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
)

// Credential is what an adapter needs to (re)establish its connection:
// a bot token for token channels, a device id for QR-paired channels.
// An empty Secret on a QR-paired channel starts a fresh pairing.
type Credential struct {
	TenantID uuid.UUID
	Secret   string
}

// Button is a selectable option rendered natively where the network supports it.
type Button struct {
	Text  string
	Token string
}

// InboundMessage is a normalized message or button tap from an end user.
type InboundMessage struct {
	ChatID     string
	SenderID   string
	SenderName string
	Text       string
	IsCallback bool
	CallbackID string
	ReceivedAt time.Time
}

// OutboundMessage is a reply addressed to one chat.
type OutboundMessage struct {
	ChatID  string
	Text    string
	Buttons [][]Button
}

// Adapter owns one external connection. Start begins the handshake and
// returns once it is under way; progress is reported on the sink until ctx
// is cancelled or Stop is called. Adapters never decide whether they may
// run; the orchestrator guarantees at most one live instance per key.
type Adapter interface {
	Kind() domain.ChannelKind
	Start(ctx context.Context, cred Credential, sink chan<- Event) error
	Send(ctx context.Context, msg OutboundMessage) error
	Stop(ctx context.Context, logout bool) error
}

// Pairer is implemented by QR-paired adapters.
type Pairer interface {
	// RefreshPairing asks for a new pairing code without dropping the
	// in-flight handshake.
	RefreshPairing(ctx context.Context) error
}

// Validator is implemented by token adapters. Validate has no side effects.
type Validator interface {
	Validate(ctx context.Context, secret string) (identity string, err error)
}

// Factory builds a fresh adapter instance for one session attempt.
type Factory func(tenantID uuid.UUID) (Adapter, error)

// Event is reported by an adapter on its sink.
type Event interface {
	isEvent()
}

// PairingCode carries a freshly issued QR payload and how long it is valid.
type PairingCode struct {
	Code string
	TTL  time.Duration
}

// Connected reports a completed handshake. Credential is the secret to
// persist for resuming the session later.
type Connected struct {
	Identity    string
	DisplayName string
	Credential  string
}

type Inbound struct {
	Message InboundMessage
}

// LoggedOut reports that the remote side ended the session.
type LoggedOut struct {
	Reason string
}

// Failure reports an error. Errors marked with domain.ErrAuthFailed are not
// retried; domain.ErrPairingExpired asks for a fresh pairing code.
type Failure struct {
	Err error
}

func (PairingCode) isEvent() {}
func (Connected) isEvent()   {}
func (Inbound) isEvent()     {}
func (LoggedOut) isEvent()   {}
func (Failure) isEvent()     {}

// Emit delivers ev unless ctx is done first.
func Emit(ctx context.Context, sink chan<- Event, ev Event) bool {
	select {
	case sink <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
