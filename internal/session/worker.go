package session

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/google/uuid"
)

type key struct {
	tenantID uuid.UUID
	kind     domain.ChannelKind
}

type stopMode int

const (
	stopNone stopMode = iota
	// stopDisconnect ends the session on request; credentials survive only
	// without logout.
	stopDisconnect
	// stopShutdown leaves the persisted state alone so Resume can restart it.
	stopShutdown
)

// worker is one session attempt: it owns the adapter, the event loop and the
// outbound mailbox for a single (tenant, channel) key.
type worker struct {
	key    key
	cancel context.CancelFunc
	done   chan struct{}

	// settled is closed once the handshake leaves Connecting.
	settled     chan struct{}
	settleOnce  sync.Once
	stopOnce    sync.Once
	mu          sync.RWMutex
	view        domain.ChannelSession
	adapter     channel.Adapter
	credential  string
	mode        stopMode
	logout      bool
	stopRequest bool
}

func newWorker(k key, now time.Time, cancel context.CancelFunc) *worker {
	return &worker{
		key:     k,
		cancel:  cancel,
		done:    make(chan struct{}),
		settled: make(chan struct{}),
		view: domain.ChannelSession{
			ID:           uuid.New(),
			TenantID:     k.tenantID,
			Kind:         k.kind,
			State:        domain.StateConnecting,
			LastActivity: now,
		},
	}
}

func (w *worker) snapshot() domain.ChannelSession {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v := w.view
	if v.Pairing != nil {
		p := *v.Pairing
		v.Pairing = &p
	}
	return v
}

func (w *worker) stopping() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopRequest
}

// requestStop cancels the worker; the first request decides how it ends.
func (w *worker) requestStop(mode stopMode, logout bool) {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.mode = mode
		w.logout = logout
		w.stopRequest = true
		w.mu.Unlock()
		w.cancel()
	})
}

func (w *worker) stopMode() (stopMode, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.mode, w.logout
}

func (w *worker) settle() {
	w.settleOnce.Do(func() { close(w.settled) })
}

func (w *worker) setAdapter(a channel.Adapter) {
	w.mu.Lock()
	w.adapter = a
	w.mu.Unlock()
}

func (w *worker) currentAdapter() channel.Adapter {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.adapter
}

func (w *worker) setState(s domain.SessionState, now time.Time) {
	w.mu.Lock()
	w.view.State = s
	w.view.LastActivity = now
	w.mu.Unlock()
	if s != domain.StateConnecting {
		w.settle()
	}
}

func (w *worker) setPairing(code string, issued, expires time.Time) {
	w.mu.Lock()
	w.view.State = domain.StateAwaitingPairing
	w.view.Pairing = &domain.PairingArtifact{Code: code, IssuedAt: issued, ExpiresAt: expires}
	w.view.LastActivity = issued
	w.mu.Unlock()
	w.settle()
}

// invalidatePairing drops the current artifact so pollers see the
// regenerating signal instead of a stale code.
func (w *worker) invalidatePairing() {
	w.mu.Lock()
	w.view.Pairing = nil
	w.mu.Unlock()
}

func (w *worker) setConnected(ev channel.Connected, now time.Time) {
	w.mu.Lock()
	w.view.State = domain.StateConnected
	w.view.Identity = ev.Identity
	w.view.DisplayName = ev.DisplayName
	w.view.Pairing = nil
	w.view.LastError = ""
	w.view.LastActivity = now
	if ev.Credential != "" {
		w.credential = ev.Credential
	}
	w.mu.Unlock()
	w.settle()
}

func (w *worker) setError(err error) {
	w.mu.Lock()
	w.view.LastError = err.Error()
	w.mu.Unlock()
}

func (w *worker) touch(now time.Time) {
	w.mu.Lock()
	w.view.LastActivity = now
	w.mu.Unlock()
}

func (w *worker) record() *domain.SessionRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return &domain.SessionRecord{
		TenantID:     w.view.TenantID,
		Kind:         w.view.Kind,
		SessionID:    w.view.ID,
		State:        w.view.State,
		Identity:     w.view.Identity,
		DisplayName:  w.view.DisplayName,
		Credential:   w.credential,
		LastError:    w.view.LastError,
		LastActivity: w.view.LastActivity,
	}
}
