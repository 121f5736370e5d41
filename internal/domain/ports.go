package domain

import "context"

// AuthSubscription delivers auth-state changes from the directory service.
// The service emits the current state immediately on subscribe, then one
// event per transition. A nil identity means signed out. The channel is
// closed after Cancel; at most one in-flight event may still be delivered
// once Cancel returns.
type AuthSubscription interface {
	States() <-chan *Identity
	Cancel()
}

// FeedSubscription delivers live query results for one feed filter. Every
// event carries the full current result set, in server emission order.
type FeedSubscription interface {
	Updates() <-chan []Post
	Cancel()
}

// Identities covers the directory service's identity operations.
type Identities interface {
	// SignIn authenticates with an email/password credential.
	SignIn(ctx context.Context, email, password string) (*Identity, error)

	// Register creates a new identity and signs it in.
	Register(ctx context.Context, email, password string) (*Identity, error)

	// UpdateIdentity sets display attributes on the signed-in identity.
	UpdateIdentity(ctx context.Context, displayName, avatarURL string) error

	// SignOut ends the current session on the service side.
	SignOut(ctx context.Context) error

	// ExchangeToken trades a bootstrap credential supplied by the hosting
	// environment for a signed-in identity.
	ExchangeToken(ctx context.Context, token string) (*Identity, error)

	// AuthStates subscribes to auth-state changes.
	AuthStates(ctx context.Context) (AuthSubscription, error)
}

// Documents covers the directory service's document operations, scoped under
// the application namespace.
type Documents interface {
	// GetProfile reads a user's profile document. Returns ErrProfileNotFound
	// if none exists.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// PutProfile creates or replaces a user's profile document.
	PutProfile(ctx context.Context, userID string, profile Profile) error

	// AppendPost appends a post to the public posts collection. The service
	// assigns the document ID and creation timestamp; the returned ID is the
	// assigned one.
	AppendPost(ctx context.Context, post Post) (string, error)

	// SubscribeFeed subscribes to live updates for the query described by
	// filter. The global feed is ordered server-side, newest first; the
	// by-author feed carries no server-side ordering guarantee.
	SubscribeFeed(ctx context.Context, filter FeedFilter) (FeedSubscription, error)
}

// Directory is the full client surface of the directory & document service.
type Directory interface {
	Identities
	Documents
}
