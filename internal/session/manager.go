// Package session owns the single authoritative session derived from the
// directory service's auth-state stream.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/domain"
)

// Manager tracks the current session. It is the only writer of the session;
// everything else reads it through Session().
type Manager struct {
	cfg    *config.Config
	dir    domain.Directory
	logger *slog.Logger

	mu      sync.RWMutex
	session *domain.Session
	ready   bool
}

// NewManager creates a session manager. dir may be nil when the capability
// gate is closed; it is never touched in that case.
func NewManager(cfg *config.Config, dir domain.Directory, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		dir:    dir,
		logger: logger,
	}
}

// Session returns the current session, nil when signed out.
func (m *Manager) Session() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Ready reports whether the initial auth state has been resolved.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Start begins session tracking. The returned channel carries every session
// change, nil meaning signed out, and is closed when tracking stops. The
// stop function cancels future deliveries but never rewinds state already
// observed.
//
// With the capability gate closed no subscription is created: the channel
// delivers a single nil (loading complete, signed out) and closes.
func (m *Manager) Start(ctx context.Context) (<-chan *domain.Session, func()) {
	out := make(chan *domain.Session, 1)

	if !m.cfg.Enabled {
		m.setSession(nil)
		out <- nil
		close(out)
		return out, func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	go m.track(ctx, out)
	return out, cancel
}

func (m *Manager) track(ctx context.Context, out chan *domain.Session) {
	defer close(out)

	// bootstrap token exchange is best-effort: a failure is logged and the
	// flow continues to normal auth-state listening
	if m.cfg.BootstrapToken != "" {
		if _, err := m.dir.ExchangeToken(ctx, m.cfg.BootstrapToken); err != nil {
			m.logger.Warn("bootstrap token exchange failed", "error", err)
		}
	}

	sub, err := m.dir.AuthStates(ctx)
	if err != nil {
		m.logger.Error("auth-state subscription failed", "error", err)
		m.setSession(nil)
		deliver(out, nil)
		return
	}
	defer sub.Cancel()

	for ident := range sub.States() {
		var sess *domain.Session
		if ident != nil {
			// first sign-in of a fresh identity gets a default profile,
			// written before the session change is signalled
			m.ensureProfile(ctx, *ident)
			sess = &domain.Session{
				Identity:  *ident,
				StartedAt: time.Now().UTC(),
			}
		}
		m.setSession(sess)
		deliver(out, sess)
	}
}

// ensureProfile creates the user's profile document if none exists. This is
// a read-then-write upsert so an existing profile is never clobbered.
func (m *Manager) ensureProfile(ctx context.Context, ident domain.Identity) {
	_, err := m.dir.GetProfile(ctx, ident.UID)
	if err == nil {
		return
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		m.logger.Error("profile read failed", "uid", ident.UID, "error", err)
		return
	}
	if err := m.dir.PutProfile(ctx, ident.UID, domain.NewDefaultProfile(ident)); err != nil {
		m.logger.Error("profile create failed", "uid", ident.UID, "error", err)
	}
}

func (m *Manager) setSession(sess *domain.Session) {
	m.mu.Lock()
	m.session = sess
	m.ready = true
	m.mu.Unlock()
}

// deliver replaces a pending undelivered session with the newer one; the
// consumer only ever needs the most recent state.
func deliver(ch chan *domain.Session, sess *domain.Session) {
	for {
		select {
		case ch <- sess:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
