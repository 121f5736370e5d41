package directory

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Connectlite/cl/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxStreamBackoff = 30 * time.Second

// AuthStates subscribes to the service's auth-state stream. The service
// emits the current state on connect, then one event per transition.
func (c *Client) AuthStates(ctx context.Context) (domain.AuthSubscription, error) {
	wsURL, err := c.streamEndpoint("auth", nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &authSubscription{
		states: make(chan *domain.Identity, 8),
		cancel: cancel,
	}

	go func() {
		defer close(sub.states)
		c.runStream(ctx, wsURL, func(event *streamEvent) {
			if event.Kind != eventKindAuth {
				return
			}
			var ident *domain.Identity
			if event.Identity != nil {
				i := event.Identity.identity()
				ident = &i
			}
			select {
			case sub.states <- ident:
			case <-ctx.Done():
			}
		})
	}()

	return sub, nil
}

// SubscribeFeed subscribes to live updates for the query described by
// filter. Every snapshot event carries the full current result set.
func (c *Client) SubscribeFeed(ctx context.Context, filter domain.FeedFilter) (domain.FeedSubscription, error) {
	params := url.Values{}
	if filter.Global() {
		// the global feed is ordered server-side, newest first
		params.Set("orderBy", "createdAt:desc")
	} else {
		// the by-author query carries no server-side ordering
		params.Set("author", filter.AuthorID)
	}

	wsURL, err := c.streamEndpoint("feed", params)
	if err != nil {
		return nil, &domain.SubscriptionError{Filter: filter, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &feedSubscription{
		updates: make(chan []domain.Post, 8),
		cancel:  cancel,
	}

	go func() {
		defer close(sub.updates)
		c.runStream(ctx, wsURL, func(event *streamEvent) {
			if event.Kind != eventKindSnapshot {
				return
			}
			posts := make([]domain.Post, 0, len(event.Posts))
			for _, wp := range event.Posts {
				posts = append(posts, wp.post())
			}
			select {
			case sub.updates <- posts:
			case <-ctx.Done():
			}
		})
	}()

	return sub, nil
}

// runStream reads events from the websocket endpoint and hands them to
// handle until the context is cancelled. It reconnects on transient errors
// with exponential backoff capped at maxStreamBackoff.
func (c *Client) runStream(ctx context.Context, wsURL string, handle func(*streamEvent)) {
	var backoff time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.readStream(ctx, wsURL, handle, func() { backoff = 0 })
		if ctx.Err() != nil {
			return
		}

		backoff = nextBackoff(backoff)
		c.logger.Error("stream connection error, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (c *Client) readStream(ctx context.Context, wsURL string, handle func(*streamEvent), onConnect func()) error {
	header := make(map[string][]string)
	if tok := c.token(); tok != "" {
		header["Authorization"] = []string{"Bearer " + tok}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	c.logger.Info("connected to stream", "url", wsURL)
	onConnect()

	// unblock ReadMessage when the subscription is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			c.logger.Error("failed to parse event", "error", err)
			continue
		}
		if event.Kind == eventKindPing {
			continue
		}

		handle(event)
	}
}

func (c *Client) streamEndpoint(kind string, params url.Values) (string, error) {
	u, err := url.Parse(c.streamURL)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("kind", kind)
	q.Set("app", c.appID)
	q.Set("subscription", uuid.NewString())
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return time.Second
	}
	next := current * 2
	if next > maxStreamBackoff {
		return maxStreamBackoff
	}
	return next
}

type authSubscription struct {
	states chan *domain.Identity
	cancel context.CancelFunc
}

func (s *authSubscription) States() <-chan *domain.Identity { return s.states }
func (s *authSubscription) Cancel()                         { s.cancel() }

type feedSubscription struct {
	updates chan []domain.Post
	cancel  context.CancelFunc
}

func (s *feedSubscription) Updates() <-chan []domain.Post { return s.updates }
func (s *feedSubscription) Cancel()                       { s.cancel() }
