package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mportier/vaultgate/internal/models"
)

const (
	duoPrefixTX   = "TX"
	duoPrefixAPP  = "APP"
	duoPrefixAuth = "AUTH"

	duoSignatureExpiry = 5 * time.Minute
	duoAppExpiry       = time.Hour
)

// DuoWebVerifier implements the Duo Web SDK signed-request exchange. The
// per-provider integration key, secret key, and API host come from the
// provider metadata; the application key is service-wide and never leaves
// this process.
type DuoWebVerifier struct {
	applicationKey string

	// redirectURI is the callback the universal-prompt flow returns to.
	redirectURI string
}

func NewDuoWebVerifier(applicationKey, redirectURI string) *DuoWebVerifier {
	return &DuoWebVerifier{
		applicationKey: applicationKey,
		redirectURI:    redirectURI,
	}
}

type duoProviderConfig struct {
	host           string
	integrationKey string
	secretKey      string
}

func duoConfigFromProvider(provider *models.TwoFactorProvider) (*duoProviderConfig, bool) {
	if provider == nil {
		return nil, false
	}
	cfg := &duoProviderConfig{
		host:           provider.MetaDataString("Host"),
		integrationKey: provider.MetaDataString("IKey"),
		secretKey:      provider.MetaDataString("SKey"),
	}
	if cfg.host == "" || cfg.integrationKey == "" || cfg.secretKey == "" {
		return nil, false
	}
	return cfg, true
}

// CanGenerate reports whether the provider carries a complete Duo
// configuration.
func (d *DuoWebVerifier) CanGenerate(provider *models.TwoFactorProvider) bool {
	_, ok := duoConfigFromProvider(provider)
	return ok
}

// Generate produces the challenge parameters for the iframe flow: the Duo
// API host and a signed request.
func (d *DuoWebVerifier) Generate(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (map[string]any, error) {
	cfg, ok := duoConfigFromProvider(provider)
	if !ok {
		return nil, fmt.Errorf("duo provider is not fully configured")
	}

	duoTX := signDuoValue(cfg.secretKey, user.Email, cfg.integrationKey, duoPrefixTX, duoSignatureExpiry)
	duoAPP := signDuoValue(d.applicationKey, user.Email, cfg.integrationKey, duoPrefixAPP, duoAppExpiry)

	return map[string]any{
		"Host":      cfg.host,
		"Signature": duoTX + ":" + duoAPP,
	}, nil
}

// GenerateAuthURL builds the universal-prompt authorization URL carrying a
// signed request JWT.
func (d *DuoWebVerifier) GenerateAuthURL(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (string, error) {
	cfg, ok := duoConfigFromProvider(provider)
	if !ok {
		return "", fmt.Errorf("duo provider is not fully configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":           cfg.integrationKey,
		"aud":           "https://" + cfg.host,
		"exp":           now.Add(duoSignatureExpiry).Unix(),
		"iat":           now.Unix(),
		"client_id":     cfg.integrationKey,
		"redirect_uri":  d.redirectURI,
		"response_type": "code",
		"scope":         "openid",
		"duo_uname":     user.Email,
	}
	request, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign duo request: %w", err)
	}

	query := url.Values{
		"response_type": {"code"},
		"client_id":     {cfg.integrationKey},
		"request":       {request},
	}
	return "https://" + cfg.host + "/oauth/v1/authorize?" + query.Encode(), nil
}

// Validate checks a signed response from the iframe flow. The response is
// two signed segments, AUTH from Duo and APP from us, both bound to the same
// user.
func (d *DuoWebVerifier) Validate(ctx context.Context, token string, provider *models.TwoFactorProvider, user *models.User) (bool, error) {
	cfg, ok := duoConfigFromProvider(provider)
	if !ok {
		return false, nil
	}

	authSig, appSig, found := strings.Cut(token, ":")
	if !found {
		return false, nil
	}

	authUser := parseDuoValue(cfg.secretKey, cfg.integrationKey, duoPrefixAuth, authSig)
	appUser := parseDuoValue(d.applicationKey, cfg.integrationKey, duoPrefixAPP, appSig)
	if authUser == "" || appUser == "" {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(authUser), []byte(appUser)) != 1 {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(authUser), []byte(user.Email)) == 1, nil
}

func signDuoValue(key, username, integrationKey, prefix string, expiry time.Duration) string {
	expire := time.Now().Add(expiry).Unix()
	payload := base64.StdEncoding.EncodeToString(
		[]byte(fmt.Sprintf("%s|%s|%d", username, integrationKey, expire)))
	cookie := prefix + "|" + payload
	return cookie + "|" + duoHMAC(key, cookie)
}

// parseDuoValue verifies one signed segment and returns the username it was
// bound to, or "" when invalid or expired.
func parseDuoValue(key, integrationKey, expectedPrefix, segment string) string {
	parts := strings.Split(segment, "|")
	if len(parts) != 3 {
		return ""
	}
	prefix, payload, sig := parts[0], parts[1], parts[2]

	expected := duoHMAC(key, prefix+"|"+payload)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return ""
	}
	if prefix != expectedPrefix {
		return ""
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ""
	}
	fields := strings.Split(string(decoded), "|")
	if len(fields) != 3 {
		return ""
	}
	username, ikey, expire := fields[0], fields[1], fields[2]
	if ikey != integrationKey {
		return ""
	}

	var expireUnix int64
	if _, err := fmt.Sscanf(expire, "%d", &expireUnix); err != nil {
		return ""
	}
	if time.Now().Unix() >= expireUnix {
		return ""
	}
	return username
}

func duoHMAC(key, message string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
