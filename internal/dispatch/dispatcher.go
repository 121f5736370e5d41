// Package dispatch executes user-initiated mutations against the directory
// service, guarded by the capability gate.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/domain"
	"github.com/Connectlite/cl/internal/session"
)

// PostDraft is the immutable command payload for CreatePost. The dispatcher
// never mutates it; callers clear their own drafts, and only on success.
type PostDraft struct {
	Description string
	Link        string
	ImageURL    string
}

// Empty reports whether the draft has no publishable content.
func (d PostDraft) Empty() bool {
	return d.Description == "" && d.ImageURL == ""
}

// Dispatcher runs the three interactive commands. Every command checks the
// capability gate first and returns domain.ErrBackendUnavailable, without
// any network action, when it is closed.
type Dispatcher struct {
	cfg      *config.Config
	dir      domain.Directory
	sessions *session.Manager
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. dir may be nil when the capability
// gate is closed; it is never touched in that case.
func NewDispatcher(cfg *config.Config, dir domain.Directory, sessions *session.Manager, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		dir:      dir,
		sessions: sessions,
		logger:   logger,
	}
}

// CreatePost publishes a post authored by the current session. A draft with
// neither description nor image is deliberately ignored: no error, no
// external call.
func (d *Dispatcher) CreatePost(ctx context.Context, draft PostDraft) error {
	if !d.cfg.Enabled {
		return domain.ErrBackendUnavailable
	}
	if draft.Empty() {
		return nil
	}

	sess := d.sessions.Session()
	if sess == nil {
		return &domain.AuthError{Reason: "not signed in"}
	}

	post := domain.Post{
		AuthorID:     sess.UID,
		AuthorName:   authorName(sess),
		AuthorAvatar: sess.AvatarURL,
		Description:  draft.Description,
		Link:         draft.Link,
		ImageURL:     draft.ImageURL,
	}

	id, err := d.dir.AppendPost(ctx, post)
	if err != nil {
		d.logger.Error("create post failed", "error", err)
		return &domain.WriteError{Op: "create post", Err: err}
	}

	d.logger.Info("post created", "id", id, "author", sess.UID)
	return nil
}

// Authenticate signs in with an email/password credential. A rejected
// credential changes no local state; the resulting session, on success,
// arrives through the auth-state stream.
func (d *Dispatcher) Authenticate(ctx context.Context, email, password string) error {
	if !d.cfg.Enabled {
		return domain.ErrBackendUnavailable
	}

	if _, err := d.dir.SignIn(ctx, email, password); err != nil {
		d.logger.Warn("sign-in rejected", "email", email)
		return err
	}
	return nil
}

// Register creates an account: identity, display attributes, profile
// document, then a deliberate sign-out so the user signs in fresh. The first
// failing step aborts the rest and its error is returned untouched so the
// message reaches the user verbatim.
func (d *Dispatcher) Register(ctx context.Context, email, password, displayName string) error {
	if !d.cfg.Enabled {
		return domain.ErrBackendUnavailable
	}

	ident, err := d.dir.Register(ctx, email, password)
	if err != nil {
		return err
	}

	avatar := domain.AvatarURLFor(displayName)
	if err := d.dir.UpdateIdentity(ctx, displayName, avatar); err != nil {
		return err
	}

	profile := domain.NewDefaultProfile(domain.Identity{
		UID:         ident.UID,
		DisplayName: displayName,
		AvatarURL:   avatar,
	})
	profile.Email = email
	if err := d.dir.PutProfile(ctx, ident.UID, profile); err != nil {
		return err
	}

	if err := d.dir.SignOut(ctx); err != nil {
		return err
	}

	d.logger.Info("account registered", "uid", ident.UID)
	return nil
}

func authorName(sess *domain.Session) string {
	if sess.DisplayName != "" {
		return sess.DisplayName
	}
	return domain.DefaultDisplayName
}
