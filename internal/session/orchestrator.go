// Package session supervises channel adapters: one live instance per
// (tenant, channel), its connection state machine, pairing-code expiry and a
// FIFO mailbox that feeds inbound messages to the dispatcher.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/Harshitk-cp/botdesk/internal/store"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var (
	ErrShuttingDown      = errors.New("orchestrator is shutting down")
	ErrChannelNotEnabled = errors.Mark(errors.New("channel is not available"), domain.ErrValidation)
	ErrNoValidator       = errors.Mark(errors.New("channel does not support credential validation"), domain.ErrValidation)

	errLoggedOut = errors.New("logged out by remote")
)

const (
	eventBuffer    = 32
	mailboxBuffer  = 256
	persistTimeout = 5 * time.Second
	resumeWorkers  = 8
)

// Handler resolves one inbound message into at most one reply.
type Handler interface {
	Dispatch(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, msg channel.InboundMessage) (*channel.OutboundMessage, error)
}

type Config struct {
	PairingTTL     time.Duration
	MaxRetries     uint64
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	StopTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		PairingTTL:     60 * time.Second,
		MaxRetries:     3,
		BackoffInitial: time.Second,
		BackoffMax:     15 * time.Second,
		StopTimeout:    5 * time.Second,
	}
}

type Option func(*Orchestrator)

// WithAdapter registers the adapter factory for a channel kind.
func WithAdapter(kind domain.ChannelKind, f channel.Factory) Option {
	return func(o *Orchestrator) { o.factories[kind] = f }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type Orchestrator struct {
	factories map[domain.ChannelKind]channel.Factory
	sessions  domain.SessionStore
	tenants   domain.TenantStore
	handler   Handler
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	live   map[key]*worker
	ended  map[key]domain.ChannelSession
	closed bool
	wg     conc.WaitGroup
}

func NewOrchestrator(sessions domain.SessionStore, tenants domain.TenantStore, handler Handler, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.PairingTTL <= 0 {
		cfg.PairingTTL = def.PairingTTL
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = def.BackoffInitial
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}

	o := &Orchestrator{
		factories: make(map[domain.ChannelKind]channel.Factory),
		sessions:  sessions,
		tenants:   tenants,
		handler:   handler,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		live:      make(map[key]*worker),
		ended:     make(map[key]domain.ChannelSession),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enabled reports whether an adapter is registered for kind.
func (o *Orchestrator) Enabled(kind domain.ChannelKind) bool {
	_, ok := o.factories[kind]
	return ok
}

// Connect starts a session for (tenant, kind). While one is already live its
// current view is returned instead, so repeated calls share a session id.
// A session that is still shutting down is waited for first.
func (o *Orchestrator) Connect(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error) {
	factory, ok := o.factories[kind]
	if !ok {
		return domain.ChannelSession{}, errors.Wrapf(ErrChannelNotEnabled, "%s", kind)
	}
	k := key{tenantID: tenantID, kind: kind}

	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return domain.ChannelSession{}, ErrShuttingDown
		}
		if w := o.live[k]; w != nil {
			// A worker that has reached a terminal state is on its way out
			// even if nobody asked it to stop.
			if v := w.snapshot(); !w.stopping() && v.State.IsLive() {
				o.mu.Unlock()
				return v, nil
			}
			done := w.done
			o.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return domain.ChannelSession{}, ctx.Err()
			}
		}

		runCtx, cancel := context.WithCancel(context.Background())
		w := newWorker(k, o.now(), cancel)
		o.live[k] = w
		delete(o.ended, k)
		v := w.snapshot()
		o.wg.Go(func() { o.run(runCtx, w, factory) })
		o.mu.Unlock()

		o.logger.Info("session started",
			zap.String("tenant_id", tenantID.String()),
			zap.String("channel", string(kind)),
			zap.String("session_id", v.ID.String()))
		return v, nil
	}
}

// Await blocks until the session's handshake has left Connecting or ctx ends,
// then returns the current view.
func (o *Orchestrator) Await(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error) {
	o.mu.Lock()
	w := o.live[key{tenantID: tenantID, kind: kind}]
	o.mu.Unlock()

	if w != nil {
		select {
		case <-w.settled:
		case <-w.done:
		case <-ctx.Done():
		}
	}
	return o.Status(ctx, tenantID, kind)
}

// Status reports the live session, the outcome of the last one, or the
// persisted record, in that order.
func (o *Orchestrator) Status(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, error) {
	k := key{tenantID: tenantID, kind: kind}
	o.mu.Lock()
	if w := o.live[k]; w != nil {
		o.mu.Unlock()
		return w.snapshot(), nil
	}
	if v, ok := o.ended[k]; ok {
		o.mu.Unlock()
		return v, nil
	}
	o.mu.Unlock()

	rec, err := o.sessions.Get(ctx, tenantID, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ChannelSession{TenantID: tenantID, Kind: kind, State: domain.StateUninitialized}, nil
		}
		return domain.ChannelSession{}, errors.Wrap(err, "load session")
	}
	state := rec.State
	if state.IsLive() {
		state = domain.StateDisconnected
	}
	return domain.ChannelSession{
		ID:           rec.SessionID,
		TenantID:     rec.TenantID,
		Kind:         rec.Kind,
		State:        state,
		Identity:     rec.Identity,
		DisplayName:  rec.DisplayName,
		LastError:    rec.LastError,
		LastActivity: rec.LastActivity,
	}, nil
}

// Pairing returns the session view and whether a valid pairing code is
// available. An expired or not yet issued code reports not ready.
func (o *Orchestrator) Pairing(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind) (domain.ChannelSession, bool, error) {
	v, err := o.Status(ctx, tenantID, kind)
	if err != nil {
		return v, false, err
	}
	if v.State != domain.StateAwaitingPairing || v.Pairing.Expired(o.now()) {
		v.Pairing = nil
		return v, false, nil
	}
	return v, true, nil
}

// Disconnect ends the live session and waits for its adapter to stop. With
// logout the remote session is unlinked and the stored credential purged.
func (o *Orchestrator) Disconnect(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, logout bool) (domain.ChannelSession, error) {
	k := key{tenantID: tenantID, kind: kind}
	o.mu.Lock()
	w := o.live[k]
	o.mu.Unlock()

	if w == nil {
		if logout {
			if err := o.sessions.ClearCredential(ctx, tenantID, kind); err != nil && !errors.Is(err, store.ErrNotFound) {
				return domain.ChannelSession{}, errors.Wrap(err, "clear credential")
			}
		}
		return o.Status(ctx, tenantID, kind)
	}

	w.requestStop(stopDisconnect, logout)
	select {
	case <-w.done:
	case <-ctx.Done():
		return domain.ChannelSession{}, ctx.Err()
	}
	return o.Status(ctx, tenantID, kind)
}

// Validate asks the channel whether secret would be accepted. It never
// touches session state.
func (o *Orchestrator) Validate(ctx context.Context, tenantID uuid.UUID, kind domain.ChannelKind, secret string) (string, error) {
	factory, ok := o.factories[kind]
	if !ok {
		return "", errors.Wrapf(ErrChannelNotEnabled, "%s", kind)
	}
	a, err := factory(tenantID)
	if err != nil {
		return "", err
	}
	v, ok := a.(channel.Validator)
	if !ok {
		return "", ErrNoValidator
	}
	return v.Validate(ctx, secret)
}

// ConnectedCount counts live sessions of kind in the Connected state.
func (o *Orchestrator) ConnectedCount(kind domain.ChannelKind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for k, w := range o.live {
		if k.kind == kind && w.snapshot().State == domain.StateConnected {
			n++
		}
	}
	return n
}

// LiveCount is the number of running session workers.
func (o *Orchestrator) LiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.live)
}

// Resume reconnects every persisted session that was connected when the
// process last stopped.
func (o *Orchestrator) Resume(ctx context.Context) error {
	recs, err := o.sessions.ListByState(ctx, domain.StateConnected)
	if err != nil {
		return errors.Wrap(err, "list sessions to resume")
	}

	p := pool.New().WithMaxGoroutines(resumeWorkers)
	for _, rec := range recs {
		if !o.Enabled(rec.Kind) {
			continue
		}
		tenantID, kind := rec.TenantID, rec.Kind
		p.Go(func() {
			if _, err := o.Connect(ctx, tenantID, kind); err != nil {
				o.logger.Warn("failed to resume session",
					zap.String("tenant_id", tenantID.String()),
					zap.String("channel", string(kind)),
					zap.Error(err))
			}
		})
	}
	p.Wait()
	o.logger.Info("sessions resumed", zap.Int("count", len(recs)))
	return nil
}

// Shutdown stops every worker without touching persisted state.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	workers := make([]*worker, 0, len(o.live))
	for _, w := range o.live {
		workers = append(workers, w)
	}
	o.mu.Unlock()

	for _, w := range workers {
		w.requestStop(stopShutdown, false)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for sessions to stop")
	}
}

func (o *Orchestrator) loadCredential(ctx context.Context, k key) (string, error) {
	if k.kind == domain.ChannelTelegram {
		t, err := o.tenants.GetByID(ctx, k.tenantID)
		if err != nil {
			return "", errors.Wrap(err, "load tenant")
		}
		return t.TelegramToken, nil
	}
	rec, err := o.sessions.Get(ctx, k.tenantID, k.kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "load session")
	}
	return rec.Credential, nil
}

func (o *Orchestrator) persist(w *worker, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := o.sessions.Upsert(ctx, w.record()); err != nil {
		log.Warn("failed to persist session", zap.Error(err))
	}
}

// retire removes w from the live set, remembering its final view.
func (o *Orchestrator) retire(w *worker, keep bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.live[w.key] == w {
		delete(o.live, w.key)
	}
	if keep {
		o.ended[w.key] = w.snapshot()
	}
}
