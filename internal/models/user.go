package models

import (
	"time"

	"github.com/google/uuid"
)

// KdfType identifies the key-derivation function a client uses to stretch
// the master password into an encryption key.
type KdfType int

const (
	KdfPBKDF2SHA256 KdfType = 0
	KdfArgon2id     KdfType = 1
)

type User struct {
	ID             string
	Email          string
	Name           string
	MasterPassword string // bcrypt hash; empty for key-connector / trusted-device-only accounts
	SecurityStamp  string // rotated on credential changes, invalidates outstanding tokens
	APIKey         string // client_credentials secret for "user.<id>" clients

	// Account encryption material, returned to the client on login
	Key        string
	PrivateKey string

	Kdf            KdfType
	KdfIterations  int
	KdfMemory      *int
	KdfParallelism *int

	ForcePasswordReset bool

	// Enabled two-factor configuration, keyed by provider type
	TwoFactorProviders map[TwoFactorProviderType]*TwoFactorProvider

	FailedLoginCount    int
	LastFailedLoginDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasMasterPassword reports whether the account still has a master password
// set. Key-connector and trusted-device-only accounts do not.
func (u *User) HasMasterPassword() bool {
	return u.MasterPassword != ""
}

// IsLegacy reports whether the account predates account encryption keys.
// Legacy accounts must migrate on the web client before using other clients.
func (u *User) IsLegacy() bool {
	return u.Key == ""
}

// RotateSecurityStamp replaces the security stamp, invalidating every token
// signed against the old one.
func (u *User) RotateSecurityStamp() {
	u.SecurityStamp = uuid.NewString()
}

// GetTwoFactorProvider returns the configuration for a provider type, or nil.
func (u *User) GetTwoFactorProvider(t TwoFactorProviderType) *TwoFactorProvider {
	if u.TwoFactorProviders == nil {
		return nil
	}
	return u.TwoFactorProviders[t]
}

// TwoFactorProviderIsEnabled reports whether the user has the given provider
// configured and enabled.
func (u *User) TwoFactorProviderIsEnabled(t TwoFactorProviderType) bool {
	p := u.GetTwoFactorProvider(t)
	return p != nil && p.Enabled
}

// ValidTwoFactorProviders returns the individually-configured provider types
// that can satisfy a login challenge. Remember and organization-scoped
// providers never count as individual providers.
func (u *User) ValidTwoFactorProviders() []TwoFactorProviderType {
	var types []TwoFactorProviderType
	for t, p := range u.TwoFactorProviders {
		if p == nil || !p.Enabled {
			continue
		}
		if t == TwoFactorProviderRemember || t == TwoFactorProviderOrganizationDuo {
			continue
		}
		types = append(types, t)
	}
	return types
}
