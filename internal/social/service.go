package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valetudoapp/valetudo/internal/events"
	"github.com/valetudoapp/valetudo/internal/normalize"

	log "github.com/sirupsen/logrus"
)

var ErrEmptyComment = errors.New("comment body empty")

type Repository interface {
	ListPosts(ctx context.Context, viewerID, limit int) ([]Post, error)
	CreatePost(ctx context.Context, post Post) (*Post, error)
	SetPostLike(ctx context.Context, accountID, postID int, liked bool) error
	AddComment(ctx context.Context, comment Comment) (*Comment, error)
	SetPostPinned(ctx context.Context, accountID, postID int, pinned bool) error
	PostsCount(ctx context.Context) (int, error)
}

type Service struct {
	repo      Repository
	feedLimit int
}

func NewService(repo Repository, feedLimit int) *Service {
	return &Service{
		repo:      repo,
		feedLimit: feedLimit,
	}
}

// Feed returns the latest posts, pinned ones first, with relative time
// labels filled in.
func (s *Service) Feed(ctx context.Context, viewerID int) ([]Post, error) {
	posts, err := s.repo.ListPosts(ctx, viewerID, s.feedLimit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range posts {
		posts[i].Time = RelativeTime(posts[i].CreatedAt, now)
		if posts[i].Comments == nil {
			posts[i].Comments = []Comment{}
		}
	}

	return PinnedFirst(posts), nil
}

func (s *Service) CreatePost(ctx context.Context, accountID int, author, title, body string) (*Post, error) {
	post, err := s.repo.CreatePost(ctx, Post{
		AccountID: accountID,
		Author:    normalize.CleanText(author, normalize.FallbackUser),
		Title:     normalize.CleanText(title, normalize.FallbackPost),
		Body:      normalize.CleanText(body, ""),
	})
	if err != nil {
		return nil, err
	}

	post.Time = "now"
	post.Comments = []Comment{}
	return post, nil
}

func (s *Service) SetPostLike(ctx context.Context, accountID, postID int, liked bool) error {
	return s.repo.SetPostLike(ctx, accountID, postID, liked)
}

func (s *Service) AddComment(ctx context.Context, accountID, postID int, author, body string) (*Comment, error) {
	body = normalize.CleanText(body, "")
	if body == "" {
		return nil, ErrEmptyComment
	}
	return s.repo.AddComment(ctx, Comment{
		PostID:    postID,
		AccountID: accountID,
		Author:    normalize.CleanText(author, normalize.FallbackUser),
		Body:      body,
	})
}

func (s *Service) SetPostPinned(ctx context.Context, accountID, postID int, pinned bool) error {
	return s.repo.SetPostPinned(ctx, accountID, postID, pinned)
}

// SubscribeToWorkouts creates a feed post for every completed workout
// session announced on the bus. Returns when the bus is closed.
func (s *Service) SubscribeToWorkouts(ctx context.Context, workoutEvents *events.Bus[events.WorkoutCompleted]) {
	sub := workoutEvents.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			title := normalize.CleanText(event.Title, "Workout") + " completed"
			if _, err := s.CreatePost(
				ctx, event.AccountID, event.AccountName, title, workoutPostBody(event),
			); err != nil {
				log.Errorf("failed to create workout post for account %d: %s", event.AccountID, err)
			}
		}
	}
}

func workoutPostBody(event events.WorkoutCompleted) string {
	lines := []string{
		fmt.Sprintf("Completed %d exercises and %d sets.", event.ExerciseCount, event.SetCount),
	}
	if event.Duration > 0 {
		lines = append(lines, "Duration: "+formatDuration(event.Duration))
	}
	lines = append(lines, fmt.Sprintf("Total weight: %g kg", event.TotalWeight))
	if len(event.Exercises) > 0 {
		lines = append(lines, "Exercises: "+strings.Join(event.Exercises, ", "))
	}
	return strings.Join(lines, "\n")
}

// formatDuration renders MM:SS, or HH:MM:SS past the hour mark
func formatDuration(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// SeedDemoData inserts a starter feed (posts, comments, likes) into an
// empty repo so fresh demo deployments have something to show. A
// non-empty feed is left untouched.
func (s *Service) SeedDemoData(ctx context.Context) (bool, error) {
	count, err := s.repo.PostsCount(ctx)
	if err != nil {
		return false, fmt.Errorf("posts count: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	now := time.Now()
	hoursAgo := func(h float64) time.Time {
		return now.Add(-time.Duration(h * float64(time.Hour)))
	}

	seedAccounts := []struct {
		accountID int
		author    string
		title     string
		body      string
		createdAt time.Time
	}{
		{1, "Aisha", "Leg day felt strong", "Hit all sets and kept tempo tight. Feeling great.", hoursAgo(2)},
		{3, "Marco", "Meal prep win", "Protein goal hit early today. Chicken bowls for the week.", hoursAgo(4)},
		{4, "Priya", "Small wins", "Got my walk in and stretched. Consistency > intensity.", hoursAgo(24)},
	}

	postIDs := map[string]int{}
	for _, seed := range seedAccounts {
		post, err := s.repo.CreatePost(ctx, Post{
			AccountID: seed.accountID,
			Author:    seed.author,
			Title:     seed.title,
			Body:      seed.body,
			CreatedAt: seed.createdAt,
		})
		if err != nil {
			return false, fmt.Errorf("seed post %q: %w", seed.title, err)
		}
		postIDs[seed.author] = post.ID
	}

	seedComments := []Comment{
		{PostID: postIDs["Marco"], AccountID: 1, Author: "Aisha", Body: "Let us gooo 🔥", CreatedAt: hoursAgo(1.5)},
		{PostID: postIDs["Aisha"], AccountID: 4, Author: "Priya", Body: "Great consistency!", CreatedAt: hoursAgo(1.3)},
		{PostID: postIDs["Aisha"], AccountID: 3, Author: "Marco", Body: "Nice work", CreatedAt: hoursAgo(1.1)},
	}
	for _, comment := range seedComments {
		if _, err := s.repo.AddComment(ctx, comment); err != nil {
			return false, fmt.Errorf("seed comment on post %d: %w", comment.PostID, err)
		}
	}

	seedLikes := []struct {
		accountID int
		postID    int
	}{
		{1, postIDs["Marco"]},
		{1, postIDs["Priya"]},
		{3, postIDs["Aisha"]},
		{4, postIDs["Aisha"]},
	}
	for _, like := range seedLikes {
		if err := s.repo.SetPostLike(ctx, like.accountID, like.postID, true); err != nil {
			return false, fmt.Errorf("seed like on post %d: %w", like.postID, err)
		}
	}

	return true, nil
}
