package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Connectlite/cl/internal/domain"
)

func TestAppendAssignsStrictlyIncreasingTimestamps(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 10; i++ {
		id, err := mem.AppendPost(ctx, domain.Post{AuthorID: "u1", Description: "post"})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		sub, err := mem.SubscribeFeed(ctx, domain.AuthorFeed("u1"))
		require.NoError(t, err)
		posts := <-sub.Updates()
		sub.Cancel()

		created := posts[len(posts)-1].CreatedAt
		require.True(t, created.After(prev), "timestamps must strictly increase")
		prev = created
	}
}

func TestAuthStreamEmitsCurrentStateOnSubscribe(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	sub, err := mem.AuthStates(ctx)
	require.NoError(t, err)
	require.Nil(t, <-sub.States(), "signed out before any login")
	sub.Cancel()

	ident, err := mem.Register(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	sub, err = mem.AuthStates(ctx)
	require.NoError(t, err)
	defer sub.Cancel()
	got := <-sub.States()
	require.NotNil(t, got)
	require.Equal(t, ident.UID, got.UID)
}

func TestAuthStreamFollowsSignInAndOut(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	_, err := mem.Register(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	require.NoError(t, mem.SignOut(ctx))

	sub, err := mem.AuthStates(ctx)
	require.NoError(t, err)
	defer sub.Cancel()
	require.Nil(t, <-sub.States())

	_, err = mem.SignIn(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, <-sub.States())

	require.NoError(t, mem.SignOut(ctx))
	require.Nil(t, <-sub.States())
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	_, err := mem.Register(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	_, err = mem.SignIn(ctx, "a@x.com", "wrong")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)

	_, err = mem.SignIn(ctx, "nobody@x.com", "pw")
	require.ErrorAs(t, err, &authErr)
}

func TestGlobalFeedIsOrderedNewestFirst(t *testing.T) {
	mem := NewMemory()

	mem.InsertPost(domain.Post{ID: "old", AuthorID: "u1", CreatedAt: time.Unix(100, 0)})
	mem.InsertPost(domain.Post{ID: "new", AuthorID: "u2", CreatedAt: time.Unix(300, 0)})
	mem.InsertPost(domain.Post{ID: "mid", AuthorID: "u1", CreatedAt: time.Unix(200, 0)})

	sub, err := mem.SubscribeFeed(context.Background(), domain.GlobalFeed())
	require.NoError(t, err)
	defer sub.Cancel()

	posts := <-sub.Updates()
	require.Len(t, posts, 3)
	require.Equal(t, "new", posts[0].ID)
	require.Equal(t, "mid", posts[1].ID)
	require.Equal(t, "old", posts[2].ID)
}

func TestByAuthorFeedIsUnordered(t *testing.T) {
	mem := NewMemory()

	// inserted oldest-last on purpose: the by-author result set reflects
	// insertion order, not timestamp order
	mem.InsertPost(domain.Post{ID: "a", AuthorID: "u1", CreatedAt: time.Unix(100, 0)})
	mem.InsertPost(domain.Post{ID: "b", AuthorID: "u2", CreatedAt: time.Unix(300, 0)})
	mem.InsertPost(domain.Post{ID: "c", AuthorID: "u1", CreatedAt: time.Unix(200, 0)})

	sub, err := mem.SubscribeFeed(context.Background(), domain.AuthorFeed("u1"))
	require.NoError(t, err)
	defer sub.Cancel()

	posts := <-sub.Updates()
	require.Len(t, posts, 2)
	require.Equal(t, "a", posts[0].ID)
	require.Equal(t, "c", posts[1].ID)
}

func TestExchangeToken(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	ident, err := mem.Register(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	require.NoError(t, mem.SignOut(ctx))
	mem.GrantBootstrapToken("tok-1", "a@x.com")

	got, err := mem.ExchangeToken(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, ident.UID, got.UID)

	_, err = mem.ExchangeToken(ctx, "bogus")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestSeedDemo(t *testing.T) {
	mem := NewMemory()
	mem.SeedDemo(25)

	sub, err := mem.SubscribeFeed(context.Background(), domain.GlobalFeed())
	require.NoError(t, err)
	defer sub.Cancel()

	posts := <-sub.Updates()
	require.Len(t, posts, 25)
	for _, p := range posts {
		require.NotEmpty(t, p.AuthorID)
		require.NotEmpty(t, p.AuthorName)
		require.NotEmpty(t, p.Description)
	}
}
