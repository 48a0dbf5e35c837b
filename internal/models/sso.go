package models

// MemberDecryptionType selects how members of an SSO organization decrypt
// their vaults.
type MemberDecryptionType int

const (
	MemberDecryptionMasterPassword          MemberDecryptionType = 0
	MemberDecryptionKeyConnector            MemberDecryptionType = 1
	MemberDecryptionTrustedDeviceEncryption MemberDecryptionType = 2
)

// SsoConfiguration is an organization's single-sign-on settings, read-only
// to the identity core.
type SsoConfiguration struct {
	ID                   string
	OrganizationID       string
	Enabled              bool
	MemberDecryptionType MemberDecryptionType
	KeyConnectorURL      string
}

// UserDecryptionOptions enumerates every way a newly authenticated user can
// decrypt their vault. Options are not mutually exclusive.
type UserDecryptionOptions struct {
	HasMasterPassword   bool                 `json:"HasMasterPassword"`
	TrustedDeviceOption *TrustedDeviceOption `json:"TrustedDeviceOption,omitempty"`
	KeyConnectorOption  *KeyConnectorOption  `json:"KeyConnectorOption,omitempty"`
}

// TrustedDeviceOption is offered when the SSO organization uses
// trusted-device encryption.
type TrustedDeviceOption struct {
	HasAdminApproval bool `json:"HasAdminApproval"`
}

// KeyConnectorOption is offered when the SSO organization holds member keys
// in an external key connector.
type KeyConnectorOption struct {
	KeyConnectorURL string `json:"KeyConnectorUrl"`
}
