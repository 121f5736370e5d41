package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/directory"
	"github.com/Connectlite/cl/internal/domain"
	"github.com/Connectlite/cl/internal/session"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*directory.Memory, *session.Manager, *Dispatcher) {
	t.Helper()
	cfg := &config.Config{Enabled: true}
	mem := directory.NewMemory()
	sessions := session.NewManager(cfg, mem, discardLogger())
	_, stop := sessions.Start(context.Background())
	t.Cleanup(stop)
	return mem, sessions, NewDispatcher(cfg, mem, sessions, discardLogger())
}

func waitSignedIn(t *testing.T, sessions *session.Manager) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sessions.Session() != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func waitSignedOut(t *testing.T, sessions *session.Manager) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sessions.Ready() && sessions.Session() == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCommandsRejectedWhenGateClosed(t *testing.T) {
	cfg := &config.Config{Enabled: false}
	sessions := session.NewManager(cfg, nil, discardLogger())
	// dir is nil: any network action would panic
	d := NewDispatcher(cfg, nil, sessions, discardLogger())

	err := d.CreatePost(context.Background(), PostDraft{Description: "hello"})
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)

	err = d.Authenticate(context.Background(), "a@x.com", "pw")
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)

	err = d.Register(context.Background(), "a@x.com", "pw", "Ana")
	require.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestEmptyDraftIsIgnored(t *testing.T) {
	mem, sessions, d := setup(t)
	require.NoError(t, d.Register(context.Background(), "ana@x.com", "pw", "Ana"))
	require.NoError(t, d.Authenticate(context.Background(), "ana@x.com", "pw"))
	waitSignedIn(t, sessions)

	calls := mem.AppendCalls()
	require.NoError(t, d.CreatePost(context.Background(), PostDraft{Link: "https://example.com"}))
	require.Equal(t, calls, mem.AppendCalls(), "empty draft must not reach the service")
}

func TestCreatePostPublishes(t *testing.T) {
	mem, sessions, d := setup(t)
	require.NoError(t, d.Register(context.Background(), "ana@x.com", "pw", "Ana"))
	require.NoError(t, d.Authenticate(context.Background(), "ana@x.com", "pw"))
	waitSignedIn(t, sessions)

	draft := PostDraft{Description: "first post", Link: "https://example.com"}
	require.NoError(t, d.CreatePost(context.Background(), draft))
	require.Equal(t, 1, mem.AppendCalls())

	sub, err := mem.SubscribeFeed(context.Background(), domain.GlobalFeed())
	require.NoError(t, err)
	defer sub.Cancel()

	posts := <-sub.Updates()
	require.Len(t, posts, 1)
	require.Equal(t, "first post", posts[0].Description)
	require.Equal(t, "Ana", posts[0].AuthorName)
	require.Equal(t, sessions.Session().UID, posts[0].AuthorID)
	require.NotEmpty(t, posts[0].ID)
	require.False(t, posts[0].CreatedAt.IsZero(), "creation timestamp is server-assigned")
}

func TestCreatePostRequiresSession(t *testing.T) {
	_, _, d := setup(t)

	err := d.CreatePost(context.Background(), PostDraft{Description: "hello"})
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestAuthenticateRejectedCredential(t *testing.T) {
	_, sessions, d := setup(t)

	err := d.Authenticate(context.Background(), "ghost@x.com", "wrong")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Nil(t, sessions.Session(), "a rejected credential changes no state")
}

func TestRegisterPipeline(t *testing.T) {
	cfg := &config.Config{Enabled: true}
	mem := directory.NewMemory()
	sessions := session.NewManager(cfg, mem, discardLogger())
	d := NewDispatcher(cfg, mem, sessions, discardLogger())

	require.NoError(t, d.Register(context.Background(), "a@x.com", "pw", "Ana"))

	// the deliberate sign-out at the end of the pipeline leaves the service
	// with no current identity
	sub, err := mem.AuthStates(context.Background())
	require.NoError(t, err)
	defer sub.Cancel()
	require.Nil(t, <-sub.States())

	// the fresh login the user is forced into sees the registered attributes
	ident, err := mem.SignIn(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "Ana", ident.DisplayName)

	profile, err := mem.GetProfile(context.Background(), ident.UID)
	require.NoError(t, err)
	require.Equal(t, "Ana", profile.DisplayName)
	require.Equal(t, "a@x.com", profile.Email)
	require.Equal(t, domain.DefaultCoverURL, profile.CoverURL)
	require.True(t, profile.NotificationsEnabled)
}

func TestRegisterForcesFreshLogin(t *testing.T) {
	_, sessions, d := setup(t)

	require.NoError(t, d.Register(context.Background(), "a@x.com", "pw", "Ana"))
	waitSignedOut(t, sessions)

	require.NoError(t, d.Authenticate(context.Background(), "a@x.com", "pw"))
	waitSignedIn(t, sessions)
	require.Equal(t, "Ana", sessions.Session().DisplayName)
}

func TestRegisterDuplicateEmailSurfacesVerbatim(t *testing.T) {
	_, _, d := setup(t)

	require.NoError(t, d.Register(context.Background(), "a@x.com", "pw", "Ana"))
	err := d.Register(context.Background(), "a@x.com", "pw2", "Other")
	require.EqualError(t, err, "email already in use")
}
