package social

import (
	"fmt"
	"time"
)

type Comment struct {
	ID        int       `json:"id"`
	PostID    int       `json:"postId"`
	AccountID int       `json:"userId"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Post struct {
	ID        int       `json:"id"`
	AccountID int       `json:"userId"`
	Author    string    `json:"author"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"createdAt"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Likes     int       `json:"likes"`
	Replies   int       `json:"replies"`
	Comments  []Comment `json:"comments"`
	LikedByMe bool      `json:"likedByMe"`
	Pinned    bool      `json:"pinned"`
}

// RelativeTime renders the feed timestamp label: "now" under a minute,
// then minutes, hours, days.
func RelativeTime(from, now time.Time) string {
	diff := now.Sub(from)
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd", int(diff.Hours()/24))
	}
}

// PinnedFirst partitions posts so pinned ones come first. The relative
// order within the pinned and the non-pinned group is preserved.
func PinnedFirst(posts []Post) []Post {
	if len(posts) == 0 {
		return posts
	}
	ordered := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.Pinned {
			ordered = append(ordered, p)
		}
	}
	for _, p := range posts {
		if !p.Pinned {
			ordered = append(ordered, p)
		}
	}
	return ordered
}
