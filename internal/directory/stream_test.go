package directory

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Connectlite/cl/internal/config"
	"github.com/Connectlite/cl/internal/domain"
)

// newStreamClient starts a websocket server running handler for every
// connection and returns a client pointed at it.
func newStreamClient(t *testing.T, handler func(r *http.Request, conn *websocket.Conn)) *Client {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(r, conn)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Enabled:    true,
		ServiceURL: srv.URL,
		StreamURL:  "ws" + strings.TrimPrefix(srv.URL, "http"),
		AppID:      "test-app",
	}
	return NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recvState(t *testing.T, sub domain.AuthSubscription) *domain.Identity {
	t.Helper()
	select {
	case state := <-sub.States():
		return state
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth event")
		return nil
	}
}

func recvUpdate(t *testing.T, sub domain.FeedSubscription) []domain.Post {
	t.Helper()
	select {
	case posts := <-sub.Updates():
		return posts
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed update")
		return nil
	}
}

func TestAuthStatesDeliversTransitions(t *testing.T) {
	client := newStreamClient(t, func(r *http.Request, conn *websocket.Conn) {
		require.Equal(t, "auth", r.URL.Query().Get("kind"))
		require.Equal(t, "test-app", r.URL.Query().Get("app"))

		conn.WriteJSON(streamEvent{Kind: eventKindAuth, Identity: nil})
		conn.WriteJSON(streamEvent{Kind: eventKindPing})
		conn.WriteJSON(streamEvent{Kind: eventKindAuth, Identity: &wireIdentity{
			UID:         "u1",
			DisplayName: "Ana",
		}})
		// hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sub, err := client.AuthStates(context.Background())
	require.NoError(t, err)
	defer sub.Cancel()

	require.Nil(t, recvState(t, sub), "first event is the signed-out state")

	got := recvState(t, sub)
	require.NotNil(t, got)
	require.Equal(t, "u1", got.UID)
	require.Equal(t, "Ana", got.DisplayName)
}

func TestSubscribeFeedDeliversSnapshots(t *testing.T) {
	client := newStreamClient(t, func(r *http.Request, conn *websocket.Conn) {
		require.Equal(t, "feed", r.URL.Query().Get("kind"))
		require.Equal(t, "createdAt:desc", r.URL.Query().Get("orderBy"))
		require.NotEmpty(t, r.URL.Query().Get("subscription"))

		conn.WriteJSON(streamEvent{Kind: eventKindSnapshot, Posts: []wirePost{
			{ID: "p2", AuthorID: "u1", Description: "newer"},
			{ID: "p1", AuthorID: "u2", Description: "older"},
		}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sub, err := client.SubscribeFeed(context.Background(), domain.GlobalFeed())
	require.NoError(t, err)
	defer sub.Cancel()

	posts := recvUpdate(t, sub)
	require.Len(t, posts, 2)
	require.Equal(t, "p2", posts[0].ID)
	require.Equal(t, "newer", posts[0].Description)
}

func TestSubscribeFeedByAuthorSendsAuthorParam(t *testing.T) {
	client := newStreamClient(t, func(r *http.Request, conn *websocket.Conn) {
		require.Equal(t, "u7", r.URL.Query().Get("author"))
		require.Empty(t, r.URL.Query().Get("orderBy"))

		conn.WriteJSON(streamEvent{Kind: eventKindSnapshot, Posts: []wirePost{}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sub, err := client.SubscribeFeed(context.Background(), domain.AuthorFeed("u7"))
	require.NoError(t, err)
	defer sub.Cancel()

	require.Empty(t, recvUpdate(t, sub))
}

func TestCancelClosesSubscriptionChannel(t *testing.T) {
	client := newStreamClient(t, func(r *http.Request, conn *websocket.Conn) {
		conn.WriteJSON(streamEvent{Kind: eventKindAuth})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sub, err := client.AuthStates(context.Background())
	require.NoError(t, err)

	recvState(t, sub)
	sub.Cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.States():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "channel must close after Cancel")
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	conns := make(chan struct{}, 4)
	client := newStreamClient(t, func(r *http.Request, conn *websocket.Conn) {
		conns <- struct{}{}
		conn.WriteJSON(streamEvent{Kind: eventKindAuth, Identity: &wireIdentity{UID: "u1"}})
		// drop the connection; the client should dial again
	})

	sub, err := client.AuthStates(context.Background())
	require.NoError(t, err)
	defer sub.Cancel()

	require.NotNil(t, recvState(t, sub))

	select {
	case <-conns:
	case <-time.After(time.Second):
		t.Fatal("expected the first connection")
	}
	select {
	case <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reconnect after the connection dropped")
	}
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(0))
	require.Equal(t, 2*time.Second, nextBackoff(time.Second))
	require.Equal(t, 16*time.Second, nextBackoff(8*time.Second))
	require.Equal(t, maxStreamBackoff, nextBackoff(16*time.Second))
	require.Equal(t, maxStreamBackoff, nextBackoff(maxStreamBackoff))
}
