package domain

import (
	"net/url"
	"sort"
	"time"
)

// Identity is the authenticated principal as reported by the directory
// service.
type Identity struct {
	// UID is the opaque user identifier assigned by the service.
	UID string

	// DisplayName is the user-facing name, possibly empty for fresh accounts.
	DisplayName string

	// AvatarURL points at the user's avatar image.
	AvatarURL string
}

// Session is the locally held representation of the signed-in user. A nil
// *Session means no user is signed in. Exactly one session is live at a time;
// it is owned by the session manager and read-only everywhere else.
type Session struct {
	Identity

	// StartedAt is when this session was observed locally.
	StartedAt time.Time
}

// Profile is the per-user profile document stored under the user's namespace
// in the directory service.
type Profile struct {
	DisplayName          string
	Email                string
	AvatarURL            string
	CoverURL             string
	Bio                  string
	NotificationsEnabled bool
	Followers            []string
	Following            []string
}

// Post is a single feed entry. Posts are owned by the directory service; the
// controller only ever holds read-only copies delivered by a subscription.
type Post struct {
	// ID is the document identifier assigned by the service.
	ID string

	AuthorID     string
	AuthorName   string
	AuthorAvatar string

	// Description is the post body.
	Description string

	// Link is an optional URL attached to the post.
	Link string

	// ImageURL is an optional image reference.
	ImageURL string

	// CreatedAt is the server-assigned creation timestamp.
	CreatedAt time.Time

	// Likes and Bookmarks hold the UIDs of users who liked or bookmarked
	// the post.
	Likes     []string
	Bookmarks []string
}

// Empty reports whether the post carries no publishable content. Posts need
// a description or an image; everything else is optional.
func (p Post) Empty() bool {
	return p.Description == "" && p.ImageURL == ""
}

const (
	// DefaultCoverURL is the cover image applied to freshly created profiles.
	DefaultCoverURL = "https://images.unsplash.com/photo-1579546929518-9e396f3cc809?auto=format&fit=crop&w=1000&q=80"

	// DefaultDisplayName is used when an identity has no display name yet.
	DefaultDisplayName = "Member"

	defaultBio = "New around here."
)

// AvatarURLFor returns a deterministic generated-avatar URL for a display
// name, used when an account has no uploaded avatar.
func AvatarURLFor(displayName string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + url.QueryEscape(displayName)
}

// NewDefaultProfile builds the profile document written the first time an
// identity signs in without one.
func NewDefaultProfile(ident Identity) Profile {
	name := ident.DisplayName
	if name == "" {
		name = DefaultDisplayName
	}
	avatar := ident.AvatarURL
	if avatar == "" {
		avatar = AvatarURLFor(name)
	}
	return Profile{
		DisplayName:          name,
		AvatarURL:            avatar,
		CoverURL:             DefaultCoverURL,
		Bio:                  defaultBio,
		NotificationsEnabled: true,
		Followers:            []string{},
		Following:            []string{},
	}
}

// SortPostsDesc orders posts by creation time descending, newest first.
// Ties break on ID descending so the order is total.
func SortPostsDesc(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}
