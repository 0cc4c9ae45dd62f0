package social

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/normalize"
	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"
	"github.com/valetudoapp/valetudo/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type accountResolver interface {
	AccountFromRequest(r *http.Request) (auth.Account, error)
}

type NewPostRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type SetLikeRequest struct {
	Liked bool `json:"liked"`
}

type SetPinnedRequest struct {
	Pinned bool `json:"pinned"`
}

type NewCommentRequest struct {
	Body string `json:"body"`
}

type FeedResponse struct {
	Posts []Post `json:"posts"`
	Total int    `json:"total"`
}

type Handler struct {
	service  *Service
	accounts accountResolver
	metrics  *metrics.Manager
}

func NewHandler(
	service *Service,
	accounts accountResolver,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		service:  service,
		accounts: accounts,
		metrics:  metrics,
	}
}

func (handler *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.social.feed")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	posts, err := handler.service.Feed(ctx, account.ID)
	if err != nil {
		log.Errorf("list feed posts: %s", err)
		http.Error(w, "failed to get feed", http.StatusInternalServerError)
		return
	}
	if len(posts) == 0 {
		posts = []Post{}
	}

	pkg.WriteJSONResponseOK(w, FeedResponse{Posts: posts, Total: len(posts)})
}

func (handler *Handler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.social.createPost")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var newPostReq NewPostRequest
	if err := json.NewDecoder(r.Body).Decode(&newPostReq); err != nil {
		log.Tracef("new post, unmarshal json params: %s", err)
		http.Error(w, "create post failed", http.StatusBadRequest)
		return
	}

	author := normalize.CleanText(account.DisplayName, account.Name)
	addedPost, err := handler.service.CreatePost(ctx, account.ID, author, newPostReq.Title, newPostReq.Body)
	if err != nil {
		log.Errorf("failed to create post [%s] for account %d: %s", newPostReq.Title, account.ID, err)
		http.Error(w, "error, failed to create post", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterFeedPosts.Inc()

	addedPostJson, err := json.Marshal(addedPost)
	if err != nil {
		log.Errorf("failed to marshal created post: %s", err)
		http.Error(w, "error, failed to create post", http.StatusInternalServerError)
		return
	}

	log.Debugf("new feed post created: %s", addedPostJson)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedPostJson, http.StatusCreated)
}

func (handler *Handler) HandleSetLike(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.social.setLike")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	postID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var likeReq SetLikeRequest
	if err := json.NewDecoder(r.Body).Decode(&likeReq); err != nil {
		http.Error(w, "set like failed", http.StatusBadRequest)
		return
	}

	if err := handler.service.SetPostLike(ctx, account.ID, postID, likeReq.Liked); err != nil {
		log.Errorf("failed to set like on post %d: %s", postID, err)
		http.Error(w, "error, failed to set like", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "updated:"+strconv.Itoa(postID))
}

func (handler *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.social.addComment")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	postID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var commentReq NewCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&commentReq); err != nil {
		http.Error(w, "add comment failed", http.StatusBadRequest)
		return
	}

	author := normalize.CleanText(account.DisplayName, account.Name)
	addedComment, err := handler.service.AddComment(ctx, account.ID, postID, author, commentReq.Body)
	if err != nil {
		if errors.Is(err, ErrEmptyComment) {
			http.Error(w, "error, comment body empty", http.StatusBadRequest)
			return
		}
		log.Errorf("failed to add comment on post %d: %s", postID, err)
		http.Error(w, "error, failed to add comment", http.StatusInternalServerError)
		return
	}

	addedCommentJson, err := json.Marshal(addedComment)
	if err != nil {
		log.Errorf("failed to marshal added comment: %s", err)
		http.Error(w, "error, failed to add comment", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedCommentJson, http.StatusCreated)
}

func (handler *Handler) HandleSetPinned(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.social.setPinned")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	postID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var pinReq SetPinnedRequest
	if err := json.NewDecoder(r.Body).Decode(&pinReq); err != nil {
		http.Error(w, "set pinned failed", http.StatusBadRequest)
		return
	}

	if err := handler.service.SetPostPinned(ctx, account.ID, postID, pinReq.Pinned); err != nil {
		if errors.Is(err, ErrPostNotFound) {
			http.Error(w, "post not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to set pinned on post %d: %s", postID, err)
		http.Error(w, "error, failed to set pinned", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "updated:"+strconv.Itoa(postID))
}
