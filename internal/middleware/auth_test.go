package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/valetudoapp/valetudo/internal/middleware"

	"github.com/stretchr/testify/assert"
)

type loginCheckerMock struct {
	loggedTokens map[string]bool
	err          error
}

func (m *loginCheckerMock) IsLogged(_ context.Context, token string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.loggedTokens[token], nil
}

func TestAuthMiddlewareHandler_AuthCheck(t *testing.T) {
	checker := &loginCheckerMock{
		loggedTokens: map[string]bool{"valid-token": true},
	}
	authMiddleware := middleware.NewAuthMiddlewareHandler(checker)

	testCases := []struct {
		name               string
		path               string
		method             string
		token              string
		expectedStatusCode int
	}{
		{
			name:               "AllowedPathWithoutToken",
			path:               "/version",
			method:             "GET",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "LoginWithoutToken",
			path:               "/a/login",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "NotAllowedPathWithoutToken",
			path:               "/food/meals",
			method:             "GET",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "ValidToken",
			path:               "/food/meals",
			method:             "GET",
			token:              "valid-token",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "InvalidToken",
			path:               "/feed/posts",
			method:             "GET",
			token:              "invalid-token",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "OptionsAlwaysAllowed",
			path:               "/feed/posts",
			method:             "OPTIONS",
			expectedStatusCode: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, tc.path, nil)
			assert.NoError(t, err)
			if tc.token != "" {
				req.Header.Add("X-VALETUDO-TOKEN", tc.token)
			}

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			authMiddleware.AuthCheck()(handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
		})
	}
}
