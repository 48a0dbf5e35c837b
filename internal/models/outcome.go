package models

// AuthOutcomeKind discriminates the four mutually exclusive terminal states
// of a validation.
type AuthOutcomeKind int

const (
	OutcomeSuccess AuthOutcomeKind = iota
	OutcomeTwoFactorRequired
	OutcomeSsoRequired
	OutcomeError
)

// AuthOutcome is the single terminal result of validating a token request.
// Exactly one of the payload fields matching Kind is populated.
type AuthOutcome struct {
	Kind AuthOutcomeKind

	Success   *SuccessResult
	TwoFactor *TwoFactorChallenge

	// Error outcome
	ErrorMessage string
	// TwoFactorError marks the error as a rejected second factor, which uses
	// a distinguishable message since the client knows it submitted one.
	TwoFactorError bool
}

// SuccessResult carries everything the caller needs to mint tokens and shape
// the success payload.
type SuccessResult struct {
	User   *User
	Device *Device

	// Claims to embed in issued tokens (device identifier, etc.)
	Claims map[string]string

	// Fields is the custom response payload: encryption keys, KDF
	// parameters, decryption options, optional remember token.
	Fields map[string]any
}

// TwoFactorChallenge lists every provider the user may satisfy, with
// per-provider challenge parameters keyed by the provider's wire identifier.
type TwoFactorChallenge struct {
	Providers map[TwoFactorProviderType]map[string]any

	MasterPasswordPolicy *MasterPasswordPolicy

	// Populated when email is among the offered providers.
	Email             string
	EmailSessionToken string
}

// ProviderTypes returns the offered provider identifiers.
func (c *TwoFactorChallenge) ProviderTypes() []TwoFactorProviderType {
	types := make([]TwoFactorProviderType, 0, len(c.Providers))
	for t := range c.Providers {
		types = append(types, t)
	}
	return types
}

func NewSuccessOutcome(result *SuccessResult) *AuthOutcome {
	return &AuthOutcome{Kind: OutcomeSuccess, Success: result}
}

func NewTwoFactorOutcome(challenge *TwoFactorChallenge) *AuthOutcome {
	return &AuthOutcome{Kind: OutcomeTwoFactorRequired, TwoFactor: challenge}
}

func NewSsoRequiredOutcome() *AuthOutcome {
	return &AuthOutcome{Kind: OutcomeSsoRequired}
}

func NewErrorOutcome(message string, twoFactorError bool) *AuthOutcome {
	return &AuthOutcome{Kind: OutcomeError, ErrorMessage: message, TwoFactorError: twoFactorError}
}
