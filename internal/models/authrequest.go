package models

import "strings"

// OAuth2-style grant types the token endpoint accepts.
const (
	GrantTypePassword          = "password"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
)

// AuthRequest is one token request, immutable for the duration of a
// Validate call. Subject is the externally-validated user ID for
// authorization_code and client_credentials grants; SsoOrganizationID is the
// organization claim carried by the caller's authenticated subject, when
// present.
type AuthRequest struct {
	GrantType string
	ClientID  string

	Username string
	Password string

	Subject           string
	SsoOrganizationID string

	TwoFactorToken    string
	TwoFactorProvider string
	TwoFactorRemember bool

	Device DeviceDescriptor

	RemoteIP string
}

// HasTwoFactorSubmission reports whether the request carries a second-factor
// token to verify rather than asking for a challenge.
func (r *AuthRequest) HasTwoFactorSubmission() bool {
	return strings.TrimSpace(r.TwoFactorToken) != "" &&
		strings.TrimSpace(r.TwoFactorProvider) != ""
}
