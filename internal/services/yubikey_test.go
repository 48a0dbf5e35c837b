package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mportier/vaultgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	yubiTestSecret = "dGVzdC15dWJpY28tc2VjcmV0LWtleQ==" // base64
	yubiTestOTP    = "cccccckdvvulcccccckdvvulhrfgnkjedkcjgbvjvjtv"
)

func yubiProvider() *models.TwoFactorProvider {
	return &models.TwoFactorProvider{
		Enabled: true,
		MetaData: map[string]any{
			// public identity is everything before the final 32 chars
			"Key1": yubiTestOTP[:len(yubiTestOTP)-32],
		},
	}
}

// yubiTestServer answers like YubiCloud, echoing otp and nonce with a valid
// response signature.
func yubiTestServer(t *testing.T, status string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		verifier, err := NewYubiCloudVerifier("12345", yubiTestSecret, nil)
		require.NoError(t, err)

		fields := url.Values{}
		fields.Set("otp", query.Get("otp"))
		fields.Set("nonce", query.Get("nonce"))
		fields.Set("status", status)
		sig := verifier.sign(fields)

		fmt.Fprintf(w, "otp=%s\nnonce=%s\nstatus=%s\nh=%s\n",
			query.Get("otp"), query.Get("nonce"), status, sig)
	}))
}

func newYubiVerifier(t *testing.T, serverURL string) *YubiCloudVerifier {
	t.Helper()
	verifier, err := NewYubiCloudVerifier("12345", yubiTestSecret, nil)
	require.NoError(t, err)
	verifier.verifyURL = serverURL
	return verifier
}

func TestYubiCloudVerifier_ValidOTP(t *testing.T) {
	server := yubiTestServer(t, "OK")
	defer server.Close()

	verifier := newYubiVerifier(t, server.URL)
	ok, err := verifier.Validate(context.Background(), yubiTestOTP, yubiProvider())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestYubiCloudVerifier_ReplayedOTP(t *testing.T) {
	server := yubiTestServer(t, "REPLAYED_OTP")
	defer server.Close()

	verifier := newYubiVerifier(t, server.URL)
	ok, err := verifier.Validate(context.Background(), yubiTestOTP, yubiProvider())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestYubiCloudVerifier_UnregisteredKey(t *testing.T) {
	server := yubiTestServer(t, "OK")
	defer server.Close()

	verifier := newYubiVerifier(t, server.URL)

	otherOTP := "dddddckdvvul" + yubiTestOTP[len(yubiTestOTP)-32:]
	ok, err := verifier.Validate(context.Background(), otherOTP, yubiProvider())
	require.NoError(t, err)
	assert.False(t, ok, "an OTP from an unregistered key must be rejected without a network call")
}

func TestYubiCloudVerifier_MalformedOTP(t *testing.T) {
	verifier := newYubiVerifier(t, "http://127.0.0.1:0")

	for _, otp := range []string{"", "short", strings.Repeat("c", 49)} {
		ok, err := verifier.Validate(context.Background(), otp, yubiProvider())
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestYubiCloudVerifier_BadResponseSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		fmt.Fprintf(w, "otp=%s\nnonce=%s\nstatus=OK\nh=%s\n",
			query.Get("otp"), query.Get("nonce"),
			base64.StdEncoding.EncodeToString([]byte("forged")))
	}))
	defer server.Close()

	verifier := newYubiVerifier(t, server.URL)
	ok, err := verifier.Validate(context.Background(), yubiTestOTP, yubiProvider())
	require.NoError(t, err)
	assert.False(t, ok)
}
