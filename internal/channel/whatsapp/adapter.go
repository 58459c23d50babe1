// Package whatsapp is the QR-paired channel adapter built on whatsmeow.
// Device keys for every tenant live in one postgres-backed sqlstore
// container; a tenant's credential is its device JID.
package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Harshitk-cp/botdesk/internal/buildconfig"
	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// NewContainer opens the device store on the given postgres DSN and applies
// whatsmeow's own schema upgrades.
func NewContainer(ctx context.Context, dsn string, logger *zap.Logger) (*sqlstore.Container, error) {
	store.DeviceProps.Os = proto.String(buildconfig.DeviceName())
	c, err := sqlstore.New(ctx, "postgres", dsn, NewLogger(logger.Named("whatsmeow.db")))
	if err != nil {
		return nil, errors.Wrap(err, "open whatsapp device store")
	}
	return c, nil
}

type Adapter struct {
	container *sqlstore.Container
	tenantID  uuid.UUID
	logger    *zap.Logger

	mu        sync.Mutex
	client    *whatsmeow.Client
	handlerID uint32
	runCtx    context.Context
	sink      chan<- channel.Event
	qrActive  bool
	qrGen     int
}

var (
	_ channel.Adapter = (*Adapter)(nil)
	_ channel.Pairer  = (*Adapter)(nil)
)

func New(container *sqlstore.Container, tenantID uuid.UUID, logger *zap.Logger) *Adapter {
	return &Adapter{container: container, tenantID: tenantID, logger: logger}
}

// NewFactory returns a channel.Factory producing WhatsApp adapters.
func NewFactory(container *sqlstore.Container, logger *zap.Logger) channel.Factory {
	return func(tenantID uuid.UUID) (channel.Adapter, error) {
		if container == nil {
			return nil, errors.New("whatsapp device store is not configured")
		}
		return New(container, tenantID, logger.With(zap.String("channel", "whatsapp"), zap.String("tenant_id", tenantID.String()))), nil
	}
}

func (a *Adapter) Kind() domain.ChannelKind {
	return domain.ChannelWhatsApp
}

func (a *Adapter) device(ctx context.Context, secret string) (*store.Device, error) {
	if secret == "" {
		return a.container.NewDevice(), nil
	}
	jid, err := types.ParseJID(secret)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "stored device id %q", secret), domain.ErrAuthFailed)
	}
	dev, err := a.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, errors.Wrap(err, "load device")
	}
	if dev == nil {
		// The device was removed remotely; pair again.
		a.logger.Info("stored device not found, starting new pairing", zap.String("jid", secret))
		return a.container.NewDevice(), nil
	}
	return dev, nil
}

func (a *Adapter) Start(ctx context.Context, cred channel.Credential, sink chan<- channel.Event) error {
	dev, err := a.device(ctx, cred.Secret)
	if err != nil {
		return err
	}

	client := whatsmeow.NewClient(dev, NewLogger(a.logger.Named("whatsmeow")))

	a.mu.Lock()
	a.client = client
	a.runCtx = ctx
	a.sink = sink
	a.handlerID = client.AddEventHandler(a.handleEvent)
	a.mu.Unlock()

	if client.Store.ID == nil {
		a.mu.Lock()
		err := a.openPairingLocked()
		a.mu.Unlock()
		if err != nil {
			return err
		}
	}

	if err := client.Connect(); err != nil {
		a.teardown()
		return errors.Wrap(err, "connect to whatsapp")
	}
	return nil
}

// openPairingLocked subscribes to QR codes; it must run before Connect.
func (a *Adapter) openPairingLocked() error {
	qrCh, err := a.client.GetQRChannel(a.runCtx)
	if err != nil {
		return errors.Wrap(err, "open qr channel")
	}
	a.qrActive = true
	a.qrGen++
	gen := a.qrGen
	ctx, sink := a.runCtx, a.sink

	// closed marks this QR channel finished unless a newer one replaced it.
	closed := func() {
		a.mu.Lock()
		if a.qrGen == gen {
			a.qrActive = false
		}
		a.mu.Unlock()
	}

	go func() {
		defer closed()
		for item := range qrCh {
			switch item.Event {
			case "code":
				channel.Emit(ctx, sink, channel.PairingCode{Code: item.Code, TTL: item.Timeout})
			case "success":
				a.logger.Info("pairing succeeded")
			case "timeout":
				closed()
				channel.Emit(ctx, sink, channel.Failure{Err: errors.WithStack(domain.ErrPairingExpired)})
			case "error":
				channel.Emit(ctx, sink, channel.Failure{Err: errors.Wrap(item.Error, "pairing error")})
			default:
				channel.Emit(ctx, sink, channel.Failure{Err: errors.Mark(
					errors.Newf("pairing rejected: %s", item.Event), domain.ErrAuthFailed)})
			}
		}
	}()
	return nil
}

// RefreshPairing keeps codes flowing. While the QR channel is open whatsmeow
// rotates codes itself; once it has closed, a new one is opened.
func (a *Adapter) RefreshPairing(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil || a.client.Store.ID != nil || a.qrActive {
		return nil
	}
	a.client.Disconnect()
	if err := a.openPairingLocked(); err != nil {
		return err
	}
	return errors.Wrap(a.client.Connect(), "reconnect for pairing")
}

func (a *Adapter) handleEvent(evt interface{}) {
	a.mu.Lock()
	client, ctx, sink := a.client, a.runCtx, a.sink
	a.mu.Unlock()
	if client == nil {
		return
	}

	switch v := evt.(type) {
	case *events.Connected:
		if client.Store.ID == nil {
			return
		}
		channel.Emit(ctx, sink, channel.Connected{
			Identity:    client.Store.ID.User,
			DisplayName: client.Store.PushName,
			Credential:  client.Store.ID.String(),
		})

	case *events.LoggedOut:
		channel.Emit(ctx, sink, channel.LoggedOut{Reason: fmt.Sprint(v.Reason)})

	case *events.StreamReplaced:
		channel.Emit(ctx, sink, channel.LoggedOut{Reason: "session opened elsewhere"})

	case *events.ConnectFailure:
		channel.Emit(ctx, sink, channel.Failure{Err: errors.Newf("connect failure: %v %s", v.Reason, v.Message)})

	case *events.Message:
		if v.Info.IsFromMe || v.Info.IsGroup {
			return
		}
		text := v.Message.GetConversation()
		if text == "" {
			text = v.Message.GetExtendedTextMessage().GetText()
		}
		if strings.TrimSpace(text) == "" {
			return
		}
		channel.Emit(ctx, sink, channel.Inbound{Message: channel.InboundMessage{
			ChatID:     v.Info.Chat.String(),
			SenderID:   v.Info.Sender.User,
			SenderName: v.Info.PushName,
			Text:       text,
			ReceivedAt: v.Info.Timestamp,
		}})
	}
}

// Send delivers plain text. WhatsApp has no inline buttons here, so the
// message text already lists the numbered options.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return errors.New("whatsapp adapter not started")
	}

	jid, err := parseChat(msg.ChatID)
	if err != nil {
		return err
	}
	_, err = client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(msg.Text)})
	return errors.Wrap(err, "send whatsapp message")
}

func parseChat(id string) (types.JID, error) {
	if !strings.Contains(id, "@") {
		return types.NewJID(id, types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(id)
	if err != nil {
		return types.JID{}, errors.Wrapf(err, "invalid chat id %q", id)
	}
	return jid, nil
}

// Stop disconnects. With logout it also unlinks the device, which deletes
// its keys from the store.
func (a *Adapter) Stop(ctx context.Context, logout bool) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return nil
	}

	var err error
	if logout && client.Store.ID != nil {
		err = client.Logout(ctx)
	}
	a.teardown()
	return errors.Wrap(err, "logout")
}

func (a *Adapter) teardown() {
	a.mu.Lock()
	client, id := a.client, a.handlerID
	a.client = nil
	a.mu.Unlock()
	if client == nil {
		return
	}
	client.RemoveEventHandler(id)
	client.Disconnect()
}
