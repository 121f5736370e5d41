package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Connectlite/cl/internal/domain"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Memory is an in-process directory service. It backs demo mode and is the
// test double for everything that talks to the real service. Semantics match
// the remote service: server-assigned document IDs and monotonic timestamps,
// an auth stream that emits the current state on subscribe, a server-ordered
// global feed, and an unordered by-author feed.
type Memory struct {
	mu          sync.Mutex
	accounts    map[string]*account // keyed by email
	profiles    map[string]domain.Profile
	posts       []domain.Post
	current     *domain.Identity
	authSubs    map[*memAuthSub]struct{}
	feedSubs    map[*memFeedSub]struct{}
	tokens      map[string]string // bootstrap token -> email
	lastStamp   time.Time
	appendCalls int
}

type account struct {
	ident    domain.Identity
	password string
}

// NewMemory creates an empty in-process directory.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*account),
		profiles: make(map[string]domain.Profile),
		authSubs: make(map[*memAuthSub]struct{}),
		feedSubs: make(map[*memFeedSub]struct{}),
		tokens:   make(map[string]string),
	}
}

var _ domain.Directory = (*Memory)(nil)

func (m *Memory) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[email]
	if !ok || acct.password != password {
		return nil, &domain.AuthError{Reason: "invalid email or password"}
	}

	ident := acct.ident
	m.current = &ident
	m.broadcastAuthLocked()
	return &ident, nil
}

func (m *Memory) Register(ctx context.Context, email, password string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[email]; exists {
		return nil, fmt.Errorf("email already in use")
	}

	acct := &account{
		ident:    domain.Identity{UID: uuid.NewString()},
		password: password,
	}
	m.accounts[email] = acct

	// registering signs the new identity in, same as the remote service
	ident := acct.ident
	m.current = &ident
	m.broadcastAuthLocked()
	return &ident, nil
}

func (m *Memory) UpdateIdentity(ctx context.Context, displayName, avatarURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return fmt.Errorf("not authenticated")
	}
	for _, acct := range m.accounts {
		if acct.ident.UID == m.current.UID {
			acct.ident.DisplayName = displayName
			acct.ident.AvatarURL = avatarURL
			ident := acct.ident
			m.current = &ident
			return nil
		}
	}
	return fmt.Errorf("account not found")
}

func (m *Memory) SignOut(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	m.broadcastAuthLocked()
	return nil
}

func (m *Memory) ExchangeToken(ctx context.Context, token string) (*domain.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email, ok := m.tokens[token]
	if !ok {
		return nil, &domain.AuthError{Reason: "invalid bootstrap token"}
	}
	acct := m.accounts[email]
	ident := acct.ident
	m.current = &ident
	m.broadcastAuthLocked()
	return &ident, nil
}

// GrantBootstrapToken makes token exchangeable for the account registered
// under email.
func (m *Memory) GrantBootstrapToken(token, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = email
}

func (m *Memory) AuthStates(ctx context.Context) (domain.AuthSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &memAuthSub{
		mem:    m,
		states: make(chan *domain.Identity, 16),
	}
	m.authSubs[sub] = struct{}{}

	// current state is delivered immediately on subscribe
	sub.deliver(m.currentLocked())

	go func() {
		<-ctx.Done()
		sub.Cancel()
	}()
	return sub, nil
}

func (m *Memory) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profile, ok := m.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &profile, nil
}

func (m *Memory) PutProfile(ctx context.Context, userID string, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[userID] = profile
	return nil
}

func (m *Memory) AppendPost(ctx context.Context, post domain.Post) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendCalls++
	post.ID = uuid.NewString()
	post.CreatedAt = m.nextStampLocked()
	if post.Likes == nil {
		post.Likes = []string{}
	}
	if post.Bookmarks == nil {
		post.Bookmarks = []string{}
	}
	m.posts = append(m.posts, post)
	m.broadcastFeedLocked()
	return post.ID, nil
}

func (m *Memory) SubscribeFeed(ctx context.Context, filter domain.FeedFilter) (domain.FeedSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &memFeedSub{
		mem:     m,
		filter:  filter,
		updates: make(chan []domain.Post, 16),
	}
	m.feedSubs[sub] = struct{}{}

	sub.deliver(m.resultSetLocked(filter))

	go func() {
		<-ctx.Done()
		sub.Cancel()
	}()
	return sub, nil
}

// InsertPost stores a post exactly as given, bypassing server ID and
// timestamp assignment. Used by demo seeding and tests that need fixed
// timestamps.
func (m *Memory) InsertPost(post domain.Post) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	m.posts = append(m.posts, post)
	if post.CreatedAt.After(m.lastStamp) {
		m.lastStamp = post.CreatedAt
	}
	m.broadcastFeedLocked()
}

// AppendCalls reports how many AppendPost calls reached the service.
func (m *Memory) AppendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCalls
}

// SeedDemo fills the directory with generated authors and posts so demo
// mode has something to show.
func (m *Memory) SeedDemo(n int) {
	faker := gofakeit.New(0)
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute)

	authors := make([]domain.Identity, 0, 5)
	for i := 0; i < 5; i++ {
		name := faker.Name()
		authors = append(authors, domain.Identity{
			UID:         uuid.NewString(),
			DisplayName: name,
			AvatarURL:   domain.AvatarURLFor(name),
		})
	}

	for i := 0; i < n; i++ {
		author := authors[faker.Number(0, len(authors)-1)]
		post := domain.Post{
			AuthorID:     author.UID,
			AuthorName:   author.DisplayName,
			AuthorAvatar: author.AvatarURL,
			Description:  faker.Sentence(12),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			Likes:        []string{},
			Bookmarks:    []string{},
		}
		if faker.Bool() {
			post.Link = faker.URL()
		}
		m.InsertPost(post)
	}
}

func (m *Memory) currentLocked() *domain.Identity {
	if m.current == nil {
		return nil
	}
	ident := *m.current
	return &ident
}

// nextStampLocked hands out strictly increasing server timestamps.
func (m *Memory) nextStampLocked() time.Time {
	now := time.Now().UTC()
	if !now.After(m.lastStamp) {
		now = m.lastStamp.Add(time.Millisecond)
	}
	m.lastStamp = now
	return now
}

// resultSetLocked materializes the current result set for a filter. The
// global feed is returned ordered newest first, matching the server-side
// order the query requests; the by-author feed is returned in insertion
// order, matching a query with no order-by.
func (m *Memory) resultSetLocked(filter domain.FeedFilter) []domain.Post {
	var result []domain.Post
	for _, p := range m.posts {
		if filter.Global() || p.AuthorID == filter.AuthorID {
			result = append(result, p)
		}
	}
	if filter.Global() {
		domain.SortPostsDesc(result)
	}
	return result
}

func (m *Memory) broadcastAuthLocked() {
	state := m.currentLocked()
	for sub := range m.authSubs {
		sub.deliver(state)
	}
}

func (m *Memory) broadcastFeedLocked() {
	for sub := range m.feedSubs {
		sub.deliver(m.resultSetLocked(sub.filter))
	}
}

type memAuthSub struct {
	mem    *Memory
	states chan *domain.Identity
	closed bool
}

func (s *memAuthSub) States() <-chan *domain.Identity { return s.states }

func (s *memAuthSub) Cancel() {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.mem.authSubs, s)
	close(s.states)
}

// deliver is called with mem.mu held. A full buffer drops the oldest event;
// consumers only care about the latest state.
func (s *memAuthSub) deliver(state *domain.Identity) {
	if s.closed {
		return
	}
	for {
		select {
		case s.states <- state:
			return
		default:
			select {
			case <-s.states:
			default:
			}
		}
	}
}

type memFeedSub struct {
	mem     *Memory
	filter  domain.FeedFilter
	updates chan []domain.Post
	closed  bool
}

func (s *memFeedSub) Updates() <-chan []domain.Post { return s.updates }

func (s *memFeedSub) Cancel() {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.mem.feedSubs, s)
	close(s.updates)
}

func (s *memFeedSub) deliver(posts []domain.Post) {
	if s.closed {
		return
	}
	for {
		select {
		case s.updates <- posts:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
