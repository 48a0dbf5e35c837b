package services

import "github.com/mportier/vaultgate/internal/config"

// Feature flag keys the validator branches on.
const (
	FeatureBlockLegacyUsers = "block-legacy-users"
	FeatureDuoRedirect      = "duo-redirect"
)

// FeatureService exposes boolean feature gates. The core branches on flags
// without owning their storage.
type FeatureService interface {
	IsEnabled(flag string) bool
}

// ConfigFeatureService reads flags from static configuration.
type ConfigFeatureService struct {
	flags map[string]bool
}

func NewConfigFeatureService(cfg config.FeatureConfig) *ConfigFeatureService {
	return &ConfigFeatureService{
		flags: map[string]bool{
			FeatureBlockLegacyUsers: cfg.BlockLegacyUsers,
			FeatureDuoRedirect:      cfg.DuoRedirect,
		},
	}
}

func (s *ConfigFeatureService) IsEnabled(flag string) bool {
	return s.flags[flag]
}
