package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "now", RelativeTime(now, now))
	assert.Equal(t, "now", RelativeTime(now.Add(-30*time.Second), now))
	// future timestamps clamp to "now"
	assert.Equal(t, "now", RelativeTime(now.Add(time.Minute), now))
	assert.Equal(t, "5m", RelativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "59m", RelativeTime(now.Add(-59*time.Minute-30*time.Second), now))
	assert.Equal(t, "3h", RelativeTime(now.Add(-3*time.Hour-10*time.Minute), now))
	assert.Equal(t, "2d", RelativeTime(now.Add(-50*time.Hour), now))
}

func TestPinnedFirst(t *testing.T) {
	a := Post{ID: 1, Title: "A", Pinned: false}
	b := Post{ID: 2, Title: "B", Pinned: true}
	c := Post{ID: 3, Title: "C", Pinned: false}

	ordered := PinnedFirst([]Post{a, b, c})
	assert.Equal(t, []string{"B", "A", "C"}, postTitles(ordered))

	// relative order preserved within both groups
	d := Post{ID: 4, Title: "D", Pinned: true}
	ordered = PinnedFirst([]Post{a, b, c, d})
	assert.Equal(t, []string{"B", "D", "A", "C"}, postTitles(ordered))

	assert.Empty(t, PinnedFirst(nil))
}

func postTitles(posts []Post) []string {
	titles := make([]string, 0, len(posts))
	for _, p := range posts {
		titles = append(titles, p.Title)
	}
	return titles
}
