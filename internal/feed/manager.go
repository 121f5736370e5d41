// Package feed owns the live, ordered feed snapshot derived from the active
// query subscription.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/domain"
	"github.com/Connectlite/cl/internal/session"
	"github.com/Connectlite/cl/internal/store"
)

// Manager maintains the feed subscription and its materialized snapshot. It
// is the only writer of the snapshot; everything else reads it through
// Snapshot().
//
// Switching filters is resubscription: the previous subscription is always
// cancelled before the new one is established, and a generation counter
// guarantees an in-flight event from a superseded subscription is never
// applied, even if cancellation lets one last event fire.
type Manager struct {
	cfg      *config.Config
	docs     domain.Documents
	sessions *session.Manager
	cache    *store.Store // optional, may be nil
	logger   *slog.Logger

	mu       sync.Mutex
	gen      uint64
	active   domain.FeedSubscription
	filter   domain.FeedFilter
	snapshot domain.Snapshot
	updates  chan domain.Snapshot
}

// NewManager creates a feed manager. docs may be nil when the capability
// gate is closed; it is never touched in that case.
func NewManager(cfg *config.Config, docs domain.Documents, sessions *session.Manager, cache *store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		docs:     docs,
		sessions: sessions,
		cache:    cache,
		logger:   logger,
		snapshot: emptySnapshot(domain.GlobalFeed()),
		updates:  make(chan domain.Snapshot, 1),
	}
}

// Snapshot returns the current materialized feed.
func (m *Manager) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Filter returns the currently requested feed filter.
func (m *Manager) Filter() domain.FeedFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter
}

// Updates carries every new snapshot. A pending undelivered snapshot is
// replaced by a newer one; consumers only need the most recent.
func (m *Manager) Updates() <-chan domain.Snapshot {
	return m.updates
}

// Subscribe switches the live subscription to filter. Any previous
// subscription is cancelled first, unconditionally. With the gate closed or
// no session present, no subscription is created and the feed is left empty.
// The returned cancel stops this subscription; cancelling a subscription
// that has already been superseded is a no-op.
func (m *Manager) Subscribe(ctx context.Context, filter domain.FeedFilter) func() {
	m.mu.Lock()
	m.cancelActiveLocked()
	m.gen++
	gen := m.gen
	m.filter = filter

	if !m.cfg.Enabled || m.sessions.Session() == nil {
		m.snapshot = emptySnapshot(filter)
		snap := m.snapshot
		m.mu.Unlock()
		publish(m.updates, snap)
		return func() {}
	}

	// serve the cached last-known snapshot while the live subscription
	// catches up
	var cached *domain.Snapshot
	if m.cache != nil {
		if snap, err := m.cache.LoadSnapshot(ctx, filter); err != nil {
			m.logger.Warn("snapshot cache read failed", "error", err)
		} else if snap != nil {
			m.snapshot = *snap
			cached = snap
		}
	}

	sub, err := m.docs.SubscribeFeed(ctx, filter)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("feed subscription failed",
			"filter", filter.Key(),
			"error", &domain.SubscriptionError{Filter: filter, Err: err},
		)
		return func() {}
	}
	m.active = sub
	m.mu.Unlock()

	if cached != nil {
		publish(m.updates, *cached)
	}

	go m.consume(gen, filter, sub)
	return func() { m.cancelGeneration(gen) }
}

func (m *Manager) consume(gen uint64, filter domain.FeedFilter, sub domain.FeedSubscription) {
	for posts := range sub.Updates() {
		if !filter.Global() {
			// the by-author query is unordered server-side; re-sort locally
			domain.SortPostsDesc(posts)
		}
		if posts == nil {
			posts = []domain.Post{}
		}
		snap := domain.Snapshot{
			Filter:         filter,
			Posts:          posts,
			MaterializedAt: time.Now().UTC(),
		}

		m.mu.Lock()
		if gen != m.gen {
			// superseded while this event was in flight
			m.mu.Unlock()
			return
		}
		m.snapshot = snap
		m.mu.Unlock()

		publish(m.updates, snap)

		if m.cache != nil {
			if err := m.cache.SaveSnapshot(context.Background(), snap); err != nil {
				m.logger.Warn("snapshot cache write failed", "error", err)
			}
		}
	}
}

func (m *Manager) cancelActiveLocked() {
	if m.active != nil {
		m.active.Cancel()
		m.active = nil
	}
}

func (m *Manager) cancelGeneration(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.cancelActiveLocked()
}

func emptySnapshot(filter domain.FeedFilter) domain.Snapshot {
	return domain.Snapshot{
		Filter:         filter,
		Posts:          []domain.Post{},
		MaterializedAt: time.Now().UTC(),
	}
}

func publish(ch chan domain.Snapshot, snap domain.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
