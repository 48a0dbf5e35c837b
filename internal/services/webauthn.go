package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	"github.com/mportier/vaultgate/internal/models"
)

const webauthnSessionKeyPrefix = "webauthn_login:"

// Provider metadata slots a user's registered WebAuthn credentials live
// under, mirroring the per-key layout of the YubiKey provider.
var webauthnCredentialKeys = [...]string{"Key1", "Key2", "Key3", "Key4", "Key5"}

// WebAuthnService generates assertion challenges and validates signed
// assertions against the credentials on a user's WebAuthn provider.
// Challenge session state is held in Redis between the two calls and is
// single-use.
type WebAuthnService struct {
	wa     *webauthn.WebAuthn
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewWebAuthnService(rpID, rpDisplayName string, rpOrigins []string, redisClient *redis.Client, ttl time.Duration, logger *slog.Logger) (*WebAuthnService, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: rpDisplayName,
		RPOrigins:     rpOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid webauthn configuration: %w", err)
	}
	return &WebAuthnService{
		wa:     wa,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// webauthnUser adapts a vault user and their provider metadata to the
// library's relying-party view.
type webauthnUser struct {
	user        *models.User
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return []byte(u.user.ID) }
func (u *webauthnUser) WebAuthnName() string                       { return u.user.Email }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.user.Name }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func newWebauthnUser(user *models.User, provider *models.TwoFactorProvider) (*webauthnUser, error) {
	var credentials []webauthn.Credential
	for _, key := range webauthnCredentialKeys {
		raw, ok := provider.MetaData[key]
		if !ok || raw == nil {
			continue
		}
		// Credentials are stored as JSONB maps; round-trip into the
		// library's type.
		blob, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encode credential %s: %w", key, err)
		}
		var credential webauthn.Credential
		if err := json.Unmarshal(blob, &credential); err != nil {
			return nil, fmt.Errorf("failed to decode credential %s: %w", key, err)
		}
		credentials = append(credentials, credential)
	}

	if len(credentials) == 0 {
		return nil, fmt.Errorf("no webauthn credentials registered")
	}
	return &webauthnUser{user: user, credentials: credentials}, nil
}

func (s *WebAuthnService) sessionKey(userID string) string {
	return webauthnSessionKeyPrefix + userID
}

// GenerateChallenge begins an assertion ceremony, storing the session state
// in Redis and returning the request options for the challenge response.
func (s *WebAuthnService) GenerateChallenge(ctx context.Context, user *models.User, provider *models.TwoFactorProvider) (map[string]any, error) {
	adapter, err := newWebauthnUser(user, provider)
	if err != nil {
		return nil, err
	}

	options, session, err := s.wa.BeginLogin(adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to begin webauthn login: %w", err)
	}

	sessionBlob, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webauthn session: %w", err)
	}
	if err := s.redis.Set(ctx, s.sessionKey(user.ID), sessionBlob, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store webauthn session: %w", err)
	}

	optionsBlob, err := json.Marshal(options.Response)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webauthn options: %w", err)
	}
	var params map[string]any
	if err := json.Unmarshal(optionsBlob, &params); err != nil {
		return nil, fmt.Errorf("failed to shape webauthn options: %w", err)
	}
	return params, nil
}

// Validate checks a signed assertion against the pending session. The
// session is consumed whether or not the assertion verifies, so a rejected
// response cannot be retried against the same challenge.
func (s *WebAuthnService) Validate(ctx context.Context, token string, user *models.User, provider *models.TwoFactorProvider) (bool, error) {
	adapter, err := newWebauthnUser(user, provider)
	if err != nil {
		return false, nil
	}

	key := s.sessionKey(user.ID)
	sessionBlob, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load webauthn session: %w", err)
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Error("failed to consume webauthn session",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(sessionBlob, &session); err != nil {
		return false, fmt.Errorf("failed to decode webauthn session: %w", err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(strings.NewReader(token))
	if err != nil {
		return false, nil
	}

	if _, err := s.wa.ValidateLogin(adapter, session, parsed); err != nil {
		s.logger.Debug("webauthn assertion rejected",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return false, nil
	}
	return true, nil
}
