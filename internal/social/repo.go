package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

var ErrPostNotFound = errors.New("post not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// ListPosts returns the latest posts with their like and comment data
// joined in. Likes and comments are fetched in parallel, the first
// error aborts the listing.
func (r *Repo) ListPosts(ctx context.Context, viewerID, limit int) ([]Post, error) {
	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, account_id, author, title, body, pinned, created_at
			FROM post
			ORDER BY created_at DESC
			LIMIT $1;`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var posts []Post
	var postIds []int
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Author, &p.Title, &p.Body, &p.Pinned, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
		postIds = append(postIds, p.ID)
	}
	if len(posts) == 0 {
		return nil, nil
	}

	var likes []postLike
	var comments []Comment
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		likes, err = r.postLikes(groupCtx, postIds)
		return err
	})
	group.Go(func() (err error) {
		comments, err = r.postComments(groupCtx, postIds)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	likeCountByPost := map[int]int{}
	likedByViewer := map[int]bool{}
	for _, like := range likes {
		likeCountByPost[like.postID]++
		if like.accountID == viewerID {
			likedByViewer[like.postID] = true
		}
	}

	commentsByPost := map[int][]Comment{}
	for _, comment := range comments {
		commentsByPost[comment.PostID] = append(commentsByPost[comment.PostID], comment)
	}

	for i := range posts {
		posts[i].Likes = likeCountByPost[posts[i].ID]
		posts[i].LikedByMe = likedByViewer[posts[i].ID]
		posts[i].Comments = commentsByPost[posts[i].ID]
		posts[i].Replies = len(posts[i].Comments)
	}

	return posts, nil
}

type postLike struct {
	postID    int
	accountID int
}

func (r *Repo) postLikes(ctx context.Context, postIds []int) ([]postLike, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT post_id, account_id FROM post_like WHERE post_id = ANY($1);`,
		postIds,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var likes []postLike
	for rows.Next() {
		var like postLike
		if err := rows.Scan(&like.postID, &like.accountID); err != nil {
			return nil, err
		}
		likes = append(likes, like)
	}
	return likes, nil
}

func (r *Repo) postComments(ctx context.Context, postIds []int) ([]Comment, error) {
	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, post_id, account_id, author, body, created_at
			FROM post_comment
			WHERE post_id = ANY($1)
			ORDER BY created_at ASC;`,
		postIds,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AccountID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func (r *Repo) CreatePost(ctx context.Context, post Post) (*Post, error) {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}

	rows, err := r.db.Query(
		ctx,
		`
			INSERT INTO post (account_id, author, title, body, pinned, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id;`,
		post.AccountID, post.Author, post.Title, post.Body, post.Pinned, post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	post.ID = id
	return &post, nil
}

// SetPostLike likes or unlikes a post for an account. Liking an
// already liked post is a no-op (duplicates are ignored).
func (r *Repo) SetPostLike(ctx context.Context, accountID, postID int, liked bool) error {
	if liked {
		_, err := r.db.Exec(
			ctx,
			`
				INSERT INTO post_like (post_id, account_id)
				VALUES ($1, $2)
				ON CONFLICT (post_id, account_id) DO NOTHING;`,
			postID, accountID,
		)
		return err
	}

	_, err := r.db.Exec(
		ctx,
		`DELETE FROM post_like WHERE post_id = $1 AND account_id = $2;`,
		postID, accountID,
	)
	return err
}

func (r *Repo) AddComment(ctx context.Context, comment Comment) (*Comment, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}

	rows, err := r.db.Query(
		ctx,
		`
			INSERT INTO post_comment (post_id, account_id, author, body, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id;`,
		comment.PostID, comment.AccountID, comment.Author, comment.Body, comment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	comment.ID = id
	return &comment, nil
}

func (r *Repo) SetPostPinned(ctx context.Context, accountID, postID int, pinned bool) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE post SET pinned = $1 WHERE id = $2 AND account_id = $3;`,
		pinned, postID, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *Repo) PostsCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(id) FROM post;`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
