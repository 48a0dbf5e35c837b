package models

import (
	"fmt"
	"strconv"
)

// TwoFactorProviderType is a closed set of second-factor mechanisms. Values
// are stable wire identifiers shared with clients.
type TwoFactorProviderType int

const (
	TwoFactorProviderAuthenticator   TwoFactorProviderType = 0
	TwoFactorProviderEmail           TwoFactorProviderType = 1
	TwoFactorProviderDuo             TwoFactorProviderType = 2
	TwoFactorProviderYubiKey         TwoFactorProviderType = 3
	TwoFactorProviderRemember        TwoFactorProviderType = 5
	TwoFactorProviderOrganizationDuo TwoFactorProviderType = 6
	TwoFactorProviderWebAuthn        TwoFactorProviderType = 7
)

// ParseTwoFactorProviderType parses the numeric wire form of a provider type.
func ParseTwoFactorProviderType(s string) (TwoFactorProviderType, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid two-factor provider type %q", s)
	}
	t := TwoFactorProviderType(n)
	switch t {
	case TwoFactorProviderAuthenticator, TwoFactorProviderEmail, TwoFactorProviderDuo,
		TwoFactorProviderYubiKey, TwoFactorProviderRemember,
		TwoFactorProviderOrganizationDuo, TwoFactorProviderWebAuthn:
		return t, nil
	}
	return 0, fmt.Errorf("unknown two-factor provider type %d", n)
}

func (t TwoFactorProviderType) String() string {
	return strconv.Itoa(int(t))
}

// TwoFactorProvider holds per-provider configuration. MetaData carries
// provider-specific settings (authenticator secret, Duo host and keys,
// yubikey NFC support, registered WebAuthn credentials).
type TwoFactorProvider struct {
	Enabled  bool           `json:"enabled"`
	MetaData map[string]any `json:"metaData,omitempty"`
}

// MetaDataString returns a string metadata value, or "" when absent.
func (p *TwoFactorProvider) MetaDataString(key string) string {
	if p == nil || p.MetaData == nil {
		return ""
	}
	if s, ok := p.MetaData[key].(string); ok {
		return s
	}
	return ""
}
