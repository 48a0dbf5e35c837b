package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mportier/vaultgate/internal/database"
	"github.com/mportier/vaultgate/internal/models"
)

// SsoConfigRepository defines SSO configuration reads
type SsoConfigRepository interface {
	GetByOrganizationID(ctx context.Context, organizationID string) (*models.SsoConfiguration, error)
}

type ssoConfigRepoImpl struct {
	db *pgxpool.Pool
}

func NewSsoConfigRepository(db *database.DB) SsoConfigRepository {
	return &ssoConfigRepoImpl{db: db.Pool}
}

func (r *ssoConfigRepoImpl) GetByOrganizationID(ctx context.Context, organizationID string) (*models.SsoConfiguration, error) {
	query := `
		SELECT id, organization_id, enabled, member_decryption_type, COALESCE(key_connector_url, '')
		FROM sso_configs
		WHERE organization_id = $1
	`

	var cfg models.SsoConfiguration
	err := r.db.QueryRow(ctx, query, organizationID).Scan(
		&cfg.ID, &cfg.OrganizationID, &cfg.Enabled,
		&cfg.MemberDecryptionType, &cfg.KeyConnectorURL,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cfg, nil
}
