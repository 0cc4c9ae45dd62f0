package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valetudoapp/valetudo/internal/auth"
	"github.com/valetudoapp/valetudo/internal/food"
	"github.com/valetudoapp/valetudo/internal/nutrition"
)

type accountResolverMock struct {
	account auth.Account
	err     error
}

func (m *accountResolverMock) AccountFromRequest(*http.Request) (auth.Account, error) {
	return m.account, m.err
}

func scanTestRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/scan/lookup", handler.HandleLookup).Methods("POST")
	router.HandleFunc("/scan/commit", handler.HandleCommit).Methods("POST")
	router.HandleFunc("/scan/start", handler.HandleStart).Methods("POST")
	router.HandleFunc("/scan/stop", handler.HandleStop).Methods("POST")
	router.HandleFunc("/scan/state", handler.HandleState).Methods("GET")
	return router
}

func TestHandler_LookupAndCommit(t *testing.T) {
	lookup := lookupFunc(func(_ context.Context, barcode string) (*nutrition.Product, error) {
		if barcode != "4006381333931" {
			return nil, nutrition.ErrProductNotFound
		}
		return &nutrition.Product{Barcode: barcode, Name: "Oat Bar", Calories: 180}, nil
	})
	service, _, _, bus := newTestService(lookup)
	defer bus.Close()
	handler := NewHandler(service, &accountResolverMock{account: auth.Account{ID: 1, Name: "Test User"}})
	router := scanTestRouter(handler)

	req := httptest.NewRequest("POST", "/scan/lookup", bytes.NewBufferString(`{"code":"4006381333931"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var product nutrition.Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &product))
	assert.Equal(t, "Oat Bar", product.Name)

	req = httptest.NewRequest("POST", "/scan/lookup", bytes.NewBufferString(`{"code":"000"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req = httptest.NewRequest("POST", "/scan/lookup", bytes.NewBufferString(`{"code":"  "}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest("POST", "/scan/commit",
		bytes.NewBufferString(`{"code":"4006381333931","servings":2,"date":"2024-03-07"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var entry food.MealEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	assert.Equal(t, 360, entry.Calories)
	assert.Equal(t, food.SourceBarcode, entry.Source)
}

func TestHandler_ScanSession(t *testing.T) {
	service, _, _, bus := newTestService(productLookupOK())
	defer bus.Close()
	defer service.Shutdown()
	handler := NewHandler(service, &accountResolverMock{account: auth.Account{ID: 1, Name: "Test User"}})
	router := scanTestRouter(handler)

	req := httptest.NewRequest("POST", "/scan/start", bytes.NewBufferString("{}"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"sessionId":1`)

	req = httptest.NewRequest("POST", "/scan/stop", bytes.NewBufferString("{}"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest("GET", "/scan/state", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var snapshot Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snapshot))
	assert.Equal(t, StateIdle, snapshot.State)
}

func TestHandler_ScanUnauthorized(t *testing.T) {
	service, _, _, bus := newTestService(productLookupOK())
	defer bus.Close()
	handler := NewHandler(service, &accountResolverMock{err: errors.New("not logged in")})
	router := scanTestRouter(handler)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{"POST", "/scan/lookup"},
		{"POST", "/scan/commit"},
		{"POST", "/scan/start"},
		{"GET", "/scan/state"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString("{}"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}
}
