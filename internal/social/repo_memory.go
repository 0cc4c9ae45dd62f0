package social

import (
	"context"
	"sort"
	"sync"
	"time"
)

type likeKey struct {
	postID    int
	accountID int
}

// MemoryRepo is the in-process repo used when no postgres host is
// configured.
type MemoryRepo struct {
	mutex         sync.RWMutex
	posts         map[int]Post
	likes         map[likeKey]bool
	comments      map[int][]Comment
	nextPostID    int
	nextCommentID int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		posts:         map[int]Post{},
		likes:         map[likeKey]bool{},
		comments:      map[int][]Comment{},
		nextPostID:    1,
		nextCommentID: 1,
	}
}

func (r *MemoryRepo) ListPosts(_ context.Context, viewerID, limit int) ([]Post, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	posts := make([]Post, 0, len(r.posts))
	for _, p := range r.posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if len(posts) > limit {
		posts = posts[:limit]
	}

	for i := range posts {
		likes := 0
		for key := range r.likes {
			if key.postID == posts[i].ID {
				likes++
			}
		}
		posts[i].Likes = likes
		posts[i].LikedByMe = r.likes[likeKey{postID: posts[i].ID, accountID: viewerID}]

		comments := r.comments[posts[i].ID]
		posts[i].Comments = append([]Comment(nil), comments...)
		posts[i].Replies = len(comments)
	}

	return posts, nil
}

func (r *MemoryRepo) CreatePost(_ context.Context, post Post) (*Post, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.ID = r.nextPostID
	r.nextPostID++
	r.posts[post.ID] = post
	return &post, nil
}

func (r *MemoryRepo) SetPostLike(_ context.Context, accountID, postID int, liked bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := likeKey{postID: postID, accountID: accountID}
	if liked {
		r.likes[key] = true
		return nil
	}
	delete(r.likes, key)
	return nil
}

func (r *MemoryRepo) AddComment(_ context.Context, comment Comment) (*Comment, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	comment.ID = r.nextCommentID
	r.nextCommentID++
	r.comments[comment.PostID] = append(r.comments[comment.PostID], comment)
	return &comment, nil
}

func (r *MemoryRepo) SetPostPinned(_ context.Context, accountID, postID int, pinned bool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.posts[postID]
	if !ok || p.AccountID != accountID {
		return ErrPostNotFound
	}
	p.Pinned = pinned
	r.posts[postID] = p
	return nil
}

func (r *MemoryRepo) PostsCount(_ context.Context) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.posts), nil
}
