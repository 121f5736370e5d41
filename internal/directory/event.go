package directory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Connectlite/cl/internal/domain"
)

// streamEvent is the raw JSON structure pushed on the websocket stream.
// Auth subscriptions receive kind "auth" events; query subscriptions receive
// kind "snapshot" events carrying the full current result set.
type streamEvent struct {
	Kind     string        `json:"kind"`
	Identity *wireIdentity `json:"identity"`
	Posts    []wirePost    `json:"posts"`
}

const (
	eventKindAuth     = "auth"
	eventKindSnapshot = "snapshot"
	eventKindPing     = "ping"
)

// wireIdentity is the identity payload of an auth event.
type wireIdentity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func (w wireIdentity) identity() domain.Identity {
	return domain.Identity{
		UID:         w.UID,
		DisplayName: w.DisplayName,
		AvatarURL:   w.AvatarURL,
	}
}

// wirePost is a post document as serialized by the service.
type wirePost struct {
	ID           string    `json:"id,omitempty"`
	AuthorID     string    `json:"authorId"`
	AuthorName   string    `json:"authorName"`
	AuthorAvatar string    `json:"authorPhoto"`
	Description  string    `json:"description"`
	Link         string    `json:"link,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	Likes        []string  `json:"likes"`
	Bookmarks    []string  `json:"bookmarks"`
}

func (w wirePost) post() domain.Post {
	return domain.Post{
		ID:           w.ID,
		AuthorID:     w.AuthorID,
		AuthorName:   w.AuthorName,
		AuthorAvatar: w.AuthorAvatar,
		Description:  w.Description,
		Link:         w.Link,
		ImageURL:     w.ImageURL,
		CreatedAt:    w.CreatedAt,
		Likes:        w.Likes,
		Bookmarks:    w.Bookmarks,
	}
}

func toWirePost(p domain.Post) wirePost {
	return wirePost{
		ID:           p.ID,
		AuthorID:     p.AuthorID,
		AuthorName:   p.AuthorName,
		AuthorAvatar: p.AuthorAvatar,
		Description:  p.Description,
		Link:         p.Link,
		ImageURL:     p.ImageURL,
		CreatedAt:    p.CreatedAt,
		Likes:        p.Likes,
		Bookmarks:    p.Bookmarks,
	}
}

// wireProfile is a profile document as serialized by the service.
type wireProfile struct {
	DisplayName          string   `json:"displayName"`
	Email                string   `json:"email,omitempty"`
	AvatarURL            string   `json:"photoUrl"`
	CoverURL             string   `json:"coverUrl"`
	Bio                  string   `json:"bio"`
	NotificationsEnabled bool     `json:"notificationsEnabled"`
	Followers            []string `json:"followers"`
	Following            []string `json:"following"`
}

func (w wireProfile) profile() domain.Profile {
	return domain.Profile{
		DisplayName:          w.DisplayName,
		Email:                w.Email,
		AvatarURL:            w.AvatarURL,
		CoverURL:             w.CoverURL,
		Bio:                  w.Bio,
		NotificationsEnabled: w.NotificationsEnabled,
		Followers:            w.Followers,
		Following:            w.Following,
	}
}

func toWireProfile(p domain.Profile) wireProfile {
	return wireProfile{
		DisplayName:          p.DisplayName,
		Email:                p.Email,
		AvatarURL:            p.AvatarURL,
		CoverURL:             p.CoverURL,
		Bio:                  p.Bio,
		NotificationsEnabled: p.NotificationsEnabled,
		Followers:            p.Followers,
		Following:            p.Following,
	}
}

func parseEvent(data []byte) (*streamEvent, error) {
	var event streamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Kind == "" {
		return nil, fmt.Errorf("event missing kind")
	}
	return &event, nil
}
