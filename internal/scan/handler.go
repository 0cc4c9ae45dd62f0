package scan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/nutrition"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"
	"github.com/valetudoapp/valetudo/pkg"

	log "github.com/sirupsen/logrus"
)

type accountResolver interface {
	AccountFromRequest(r *http.Request) (auth.Account, error)
}

type LookupRequest struct {
	Code string `json:"code"`
}

type CommitRequest struct {
	Code     string  `json:"code"`
	Servings float64 `json:"servings"`
	Date     string  `json:"date"`
}

type Handler struct {
	service  *Service
	accounts accountResolver
}

func NewHandler(service *Service, accounts accountResolver) *Handler {
	return &Handler{service: service, accounts: accounts}
}

// HandleLookup is the manual barcode entry path: a typed-in code,
// straight to lookup, no camera involved.
func (handler *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.scan.lookup")
	defer span.End()

	if _, err := handler.accounts.AccountFromRequest(r); err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	var lookupReq LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&lookupReq); err != nil {
		http.Error(w, "lookup failed", http.StatusBadRequest)
		return
	}

	product, err := handler.service.LookupManual(ctx, lookupReq.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyBarcode):
			http.Error(w, "error, empty barcode", http.StatusBadRequest)
		case errors.Is(err, nutrition.ErrProductNotFound):
			http.Error(w, "product not found", http.StatusNotFound)
		default:
			log.Errorf("barcode lookup [%s]: %s", lookupReq.Code, err)
			http.Error(w, "error, lookup failed", http.StatusBadGateway)
		}
		return
	}

	pkg.WriteJSONResponseOK(w, product)
}

func (handler *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.scan.commit")
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

	product, err := handler.service.LookupManual(ctx, commitReq.Code)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyBarcode):
			http.Error(w, "error, empty barcode", http.StatusBadRequest)
		case errors.Is(err, nutrition.ErrProductNotFound):
			http.Error(w, "product not found", http.StatusNotFound)
		default:
			log.Errorf("barcode commit lookup [%s]: %s", commitReq.Code, err)
			http.Error(w, "error, lookup failed", http.StatusBadGateway)
		}
		return
	}

	added, err := handler.service.Commit(ctx, account.ID, *product, commitReq.Servings, commitReq.Date)
	if err != nil {
		log.Errorf("commit scanned food [%s] for account %d: %s", commitReq.Code, account.ID, err)
		http.Error(w, "error, failed to log scanned food", http.StatusInternalServerError)
		return
	}

	addedJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("failed to marshal scanned meal entry: %s", err)
		http.Error(w, "error, failed to log scanned food", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedJson, http.StatusCreated)
}

func (handler *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.scan.start")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	// the pipeline outlives the request
	sessionID := handler.service.StartScan(context.Background(), account.ID)
	pkg.WriteJSONResponseOK(w, map[string]int{"sessionId": sessionID})
}

func (handler *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.scan.stop")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	handler.service.StopScan(account.ID)
	pkg.WriteTextResponseOK(w, "stopped")
}

func (handler *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.scan.state")
	defer span.End()

	account, err := handler.accounts.AccountFromRequest(r)
	if err != nil {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	pkg.WriteJSONResponseOK(w, handler.service.ScanState(account.ID))
}
