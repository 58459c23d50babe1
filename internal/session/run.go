package session

import (
	"context"
	"time"

	"github.com/Harshitk-cp/botdesk/internal/channel"
	"github.com/Harshitk-cp/botdesk/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

func (o *Orchestrator) newBackOff(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = o.cfg.BackoffInitial
	expo.MaxInterval = o.cfg.BackoffMax
	expo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(expo, o.cfg.MaxRetries), ctx)
}

// run drives one session from Connecting to its terminal state.
func (o *Orchestrator) run(ctx context.Context, w *worker, factory channel.Factory) {
	defer close(w.done)

	v := w.snapshot()
	log := o.logger.With(
		zap.String("tenant_id", v.TenantID.String()),
		zap.String("channel", string(v.Kind)),
		zap.String("session_id", v.ID.String()))

	cred, err := o.loadCredential(ctx, w.key)
	if err != nil {
		o.finish(w, err, log)
		return
	}
	w.mu.Lock()
	w.credential = cred
	w.mu.Unlock()
	o.persist(w, log)

	inbox := make(chan channel.InboundMessage, mailboxBuffer)
	mailboxDone := make(chan struct{})
	go func() {
		defer close(mailboxDone)
		o.deliver(ctx, w, inbox, log)
	}()

	bo := o.newBackOff(ctx)
	err = backoff.RetryNotify(func() error {
		return o.attempt(ctx, w, factory, bo, inbox, log)
	}, bo, func(err error, next time.Duration) {
		log.Warn("session attempt failed, retrying", zap.Error(err), zap.Duration("backoff", next))
	})

	// The mailbox only lives as long as the session.
	w.cancel()
	<-mailboxDone
	o.finish(w, err, log)
}

// attempt runs one adapter instance until it ends. A nil return means the
// worker was asked to stop.
func (o *Orchestrator) attempt(ctx context.Context, w *worker, factory channel.Factory, bo backoff.BackOff, inbox chan<- channel.InboundMessage, log *zap.Logger) error {
	if ctx.Err() != nil {
		return nil
	}
	adapter, err := factory(w.key.tenantID)
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "create adapter"))
	}

	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	w.setAdapter(adapter)
	w.setState(domain.StateConnecting, o.now())
	defer func() {
		cancelAttempt()
		o.stopAdapter(ctx, w, adapter, log)
	}()

	w.mu.RLock()
	cred := channel.Credential{TenantID: w.key.tenantID, Secret: w.credential}
	w.mu.RUnlock()

	events := make(chan channel.Event, eventBuffer)
	if err := adapter.Start(attemptCtx, cred, events); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.setError(err)
		if errors.Is(err, domain.ErrAuthFailed) {
			return backoff.Permanent(err)
		}
		return err
	}
	return o.loop(attemptCtx, w, adapter, events, bo, inbox, log)
}

func (o *Orchestrator) loop(ctx context.Context, w *worker, adapter channel.Adapter, events <-chan channel.Event, bo backoff.BackOff, inbox chan<- channel.InboundMessage, log *zap.Logger) error {
	expiry := time.NewTimer(time.Hour)
	expiry.Stop()
	defer expiry.Stop()

	refresh := func() error {
		w.invalidatePairing()
		p, ok := adapter.(channel.Pairer)
		if !ok {
			return nil
		}
		if err := p.RefreshPairing(ctx); err != nil {
			w.setError(err)
			return errors.Wrap(err, "refresh pairing")
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-expiry.C:
			log.Debug("pairing code expired, requesting a new one")
			if err := refresh(); err != nil {
				return err
			}

		case ev := <-events:
			switch e := ev.(type) {
			case channel.PairingCode:
				now := o.now()
				ttl := o.cfg.PairingTTL
				if e.TTL > 0 && e.TTL < ttl {
					ttl = e.TTL
				}
				w.setPairing(e.Code, now, now.Add(ttl))
				expiry.Reset(ttl)

			case channel.Connected:
				expiry.Stop()
				w.setConnected(e, o.now())
				bo.Reset()
				o.persist(w, log)
				log.Info("session connected", zap.String("identity", e.Identity))

			case channel.Inbound:
				w.touch(o.now())
				select {
				case inbox <- e.Message:
				case <-ctx.Done():
					return nil
				}

			case channel.LoggedOut:
				log.Info("session logged out remotely", zap.String("reason", e.Reason))
				return backoff.Permanent(errors.Wrap(errLoggedOut, e.Reason))

			case channel.Failure:
				switch {
				case errors.Is(e.Err, domain.ErrPairingExpired):
					expiry.Stop()
					if err := refresh(); err != nil {
						return err
					}
				case errors.Is(e.Err, domain.ErrAuthFailed):
					w.setError(e.Err)
					return backoff.Permanent(e.Err)
				default:
					w.setError(e.Err)
					if w.snapshot().State != domain.StateConnected {
						return e.Err
					}
					log.Warn("channel error", zap.Error(e.Err))
				}
			}
		}
	}
}

// deliver is the session mailbox: replies go out in the order messages
// arrived.
func (o *Orchestrator) deliver(ctx context.Context, w *worker, inbox <-chan channel.InboundMessage, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-inbox:
			out, err := o.handler.Dispatch(ctx, w.key.tenantID, w.key.kind, msg)
			if err != nil {
				log.Warn("dispatch failed", zap.Error(err))
				continue
			}
			if out == nil {
				continue
			}
			if out.ChatID == "" {
				out.ChatID = msg.ChatID
			}
			adapter := w.currentAdapter()
			if adapter == nil {
				continue
			}
			if err := adapter.Send(ctx, *out); err != nil {
				log.Warn("send failed", zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) stopAdapter(ctx context.Context, w *worker, adapter channel.Adapter, log *zap.Logger) {
	mode, logout := w.stopMode()
	logout = logout && mode == stopDisconnect && ctx.Err() != nil

	stopCtx, cancel := context.WithTimeout(context.Background(), o.cfg.StopTimeout)
	defer cancel()
	if err := adapter.Stop(stopCtx, logout); err != nil {
		log.Warn("adapter stop failed", zap.Error(err))
	}
}

// finish records the terminal state of the worker.
func (o *Orchestrator) finish(w *worker, err error, log *zap.Logger) {
	mode, logout := w.stopMode()
	now := o.now()

	switch {
	case mode == stopShutdown:
		o.retire(w, false)
		log.Info("session stopped for shutdown")
		return

	case mode == stopDisconnect:
		w.invalidatePairing()
		w.setState(domain.StateDisconnected, now)
		if logout {
			w.mu.Lock()
			w.credential = ""
			w.mu.Unlock()
		}
		log.Info("session disconnected", zap.Bool("logout", logout))

	case errors.Is(err, errLoggedOut):
		w.invalidatePairing()
		w.setState(domain.StateDisconnected, now)
		w.mu.Lock()
		w.credential = ""
		w.mu.Unlock()

	default:
		if err == nil {
			err = errors.New("session ended unexpectedly")
		}
		w.invalidatePairing()
		w.setError(err)
		w.setState(domain.StateFailed, now)
		if errors.Is(err, domain.ErrAuthFailed) {
			w.mu.Lock()
			w.credential = ""
			w.mu.Unlock()
		}
		log.Warn("session failed", zap.Error(err))
	}

	o.persist(w, log)
	o.retire(w, true)
}
