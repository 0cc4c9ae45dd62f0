package estimate

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"
	"github.com/valetudoapp/valetudo/pkg"

	log "github.com/sirupsen/logrus"
)

type accountResolver interface {
	AccountFromRequest(r *http.Request) (auth.Account, error)
}

type SetApiKeyRequest struct {
	Key string `json:"key"`
}

type EstimateRequest struct {
	// Image is the captured JPEG, base64 encoded.
	Image string `json:"image"`
	Key   string `json:"key"`
}

type CommitRequest struct {
	Estimate Estimate `json:"estimate"`
	Date     string   `json:"date"`
}

type Handler struct {
	service  *Service
	accounts accountResolver
}

func NewHandler(service *Service, accounts accountResolver) *Handler {
	return &Handler{service: service, accounts: accounts}
}

func (handler *Handler) HandleSetApiKey(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.estimate.setApiKey")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var keyReq SetApiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&keyReq); err != nil {
		http.Error(w, "set api key failed", http.StatusBadRequest)
		return
	}

	if err := handler.service.SetApiKey(ctx, account.ID, keyReq.Key); err != nil {
		if errors.Is(err, ErrNoApiKey) {
			http.Error(w, "error, empty api key", http.StatusBadRequest)
			return
		}
		log.Errorf("set api key for account %d: %s", account.ID, err)
		http.Error(w, "error, failed to store api key", http.StatusInternalServerError)
		return
	}

	pkg.WriteTextResponseOK(w, "stored")
}

func (handler *Handler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.estimate.estimate")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var estimateReq EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&estimateReq); err != nil {
		http.Error(w, "estimate failed", http.StatusBadRequest)
		return
	}

	jpegImage, err := base64.StdEncoding.DecodeString(estimateReq.Image)
	if err != nil {
		http.Error(w, "error, image is not valid base64", http.StatusBadRequest)
		return
	}

	estimate, err := handler.service.EstimatePhoto(ctx, account.ID, jpegImage, estimateReq.Key)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoApiKey):
			http.Error(w, "error, api key required", http.StatusBadRequest)
		case errors.Is(err, ErrEmptyPhoto):
			http.Error(w, "error, empty photo", http.StatusBadRequest)
		case errors.Is(err, ErrEstimateFailed):
			http.Error(w, "could not estimate this photo", http.StatusBadGateway)
		default:
			log.Errorf("estimate photo for account %d: %s", account.ID, err)
			http.Error(w, "error, estimate failed", http.StatusInternalServerError)
		}
		return
	}

	pkg.WriteJSONResponseOK(w, estimate)
}

func (handler *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.estimate.commit")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var commitReq CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&commitReq); err != nil {
		http.Error(w, "commit failed", http.StatusBadRequest)
		return
	}

	added, err := handler.service.Commit(ctx, account.ID, commitReq.Estimate, commitReq.Date)
	if err != nil {
		log.Errorf("commit estimate for account %d: %s", account.ID, err)
		http.Error(w, "error, failed to log estimated food", http.StatusInternalServerError)
		return
	}

	addedJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("failed to marshal estimated meal entry: %s", err)
		http.Error(w, "error, failed to log estimated food", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedJson, http.StatusCreated)
}
