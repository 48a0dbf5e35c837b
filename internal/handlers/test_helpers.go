package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/models"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTokenRequest creates a form-encoded request for the token endpoint
func NewTokenRequest(form url.Values) *http.Request {
	req := httptest.NewRequest("POST", "/connect/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// WithAuthContext places a user on the request context the way the auth
// middleware does, for testing authenticated endpoints
func WithAuthContext(req *http.Request, user *models.User) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserContextKey, user)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// MockTokenRequestValidator implements TokenRequestValidator for testing
type MockTokenRequestValidator struct {
	ValidateFunc func(ctx context.Context, request *models.AuthRequest) *models.AuthOutcome

	// Requests records every request passed to Validate
	Requests []*models.AuthRequest
}

func (m *MockTokenRequestValidator) Validate(ctx context.Context, request *models.AuthRequest) *models.AuthOutcome {
	m.Requests = append(m.Requests, request)
	if m.ValidateFunc == nil {
		return models.NewErrorOutcome("Username or password is incorrect. Try again.", false)
	}
	return m.ValidateFunc(ctx, request)
}
