package domain

import "time"

// FeedFilter selects which posts a feed subscription targets: the global
// feed, or a single author's posts.
type FeedFilter struct {
	// AuthorID restricts the feed to one author. Empty means the global feed.
	AuthorID string
}

// GlobalFeed is the filter matching every post, newest first.
func GlobalFeed() FeedFilter {
	return FeedFilter{}
}

// AuthorFeed is the filter matching a single author's posts.
func AuthorFeed(authorID string) FeedFilter {
	return FeedFilter{AuthorID: authorID}
}

// Global reports whether the filter targets the global feed.
func (f FeedFilter) Global() bool {
	return f.AuthorID == ""
}

// Key returns a stable string form of the filter, used as a cache key.
func (f FeedFilter) Key() string {
	if f.Global() {
		return "global"
	}
	return "author:" + f.AuthorID
}

// Snapshot is the materialized, ordered result set of the active feed
// subscription. It is owned by the feed manager and read-only everywhere
// else.
type Snapshot struct {
	Filter FeedFilter
	Posts  []Post

	// MaterializedAt is when the snapshot was built locally.
	MaterializedAt time.Time
}
