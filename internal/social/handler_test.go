package social

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountResolverMock struct {
	account auth.Account
	err     error
}

func (m *accountResolverMock) AccountFromRequest(*http.Request) (auth.Account, error) {
	return m.account, m.err
}

func newTestHandlerAndRouter() (*Handler, *mux.Router, *metrics.Manager) {
	m := metrics.NewTestManager()
	service := NewService(NewMemoryRepo(), 100)
	resolver := &accountResolverMock{account: auth.Account{ID: 1, Name: "Aisha Patel", DisplayName: "Aisha"}}
	handler := NewHandler(service, resolver, m)

	router := mux.NewRouter()
	router.HandleFunc("/feed/posts", handler.HandleFeed).Methods("GET")
	router.HandleFunc("/feed/posts", handler.HandleCreatePost).Methods("POST")
	router.HandleFunc("/feed/posts/{id}/like", handler.HandleSetLike).Methods("PUT")
	router.HandleFunc("/feed/posts/{id}/pin", handler.HandleSetPinned).Methods("PUT")
	router.HandleFunc("/feed/posts/{id}/comments", handler.HandleAddComment).Methods("POST")
	return handler, router, m
}

func TestHandler_FeedFlow(t *testing.T) {
	_, router, m := newTestHandlerAndRouter()

	// create a post
	req := httptest.NewRequest("POST", "/feed/posts", bytes.NewBufferString(`{"title":"Leg day","body":"Felt strong."}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterFeedPosts))

	var created Post
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Aisha", created.Author)
	assert.Equal(t, "now", created.Time)

	// like it
	req = httptest.NewRequest("PUT", "/feed/posts/1/like", bytes.NewBufferString(`{"liked":true}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	// comment on it
	req = httptest.NewRequest("POST", "/feed/posts/1/comments", bytes.NewBufferString(`{"body":"Nice work"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	// empty comment rejected
	req = httptest.NewRequest("POST", "/feed/posts/1/comments", bytes.NewBufferString(`{"body":"  "}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// pin it
	req = httptest.NewRequest("PUT", "/feed/posts/1/pin", bytes.NewBufferString(`{"pinned":true}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	// read the feed back
	req = httptest.NewRequest("GET", "/feed/posts", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var feedResp FeedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &feedResp))
	require.Equal(t, 1, feedResp.Total)
	post := feedResp.Posts[0]
	assert.Equal(t, 1, post.Likes)
	assert.True(t, post.LikedByMe)
	assert.True(t, post.Pinned)
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "Nice work", post.Comments[0].Body)
}

func TestHandler_EmptyFeed(t *testing.T) {
	_, router, _ := newTestHandlerAndRouter()

	req := httptest.NewRequest("GET", "/feed/posts", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"posts":[]`)
}
