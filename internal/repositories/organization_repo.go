package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mportier/vaultgate/internal/database"
	"github.com/mportier/vaultgate/internal/models"
)

// OrganizationRepository defines organization and membership reads the
// identity core needs
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetManyByUserID(ctx context.Context, userID string) ([]*models.Organization, error)
	GetMemberships(ctx context.Context, userID string, minStatus models.OrganizationUserStatus) ([]*models.OrganizationMembership, error)
	GetAbilities(ctx context.Context) (map[string]models.OrganizationAbility, error)
}

type organizationRepoImpl struct {
	db *pgxpool.Pool
}

func NewOrganizationRepository(db *database.DB) OrganizationRepository {
	return &organizationRepoImpl{db: db.Pool}
}

const organizationColumns = `id, name, enabled, use_sso, two_factor_providers, created_at, updated_at`

func scanOrganizationRow(scanner rowScanner) (*models.Organization, error) {
	var org models.Organization
	var providersJSON []byte

	err := scanner.Scan(
		&org.ID, &org.Name, &org.Enabled, &org.UseSso,
		&providersJSON, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if len(providersJSON) > 0 {
		if err := json.Unmarshal(providersJSON, &org.TwoFactorProviders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal two-factor providers: %w", err)
		}
	}

	return &org, nil
}

func (r *organizationRepoImpl) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1`
	return scanOrganizationRow(r.db.QueryRow(ctx, query, id))
}

func (r *organizationRepoImpl) GetManyByUserID(ctx context.Context, userID string) ([]*models.Organization, error) {
	query := `
		SELECT o.id, o.name, o.enabled, o.use_sso, o.two_factor_providers, o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_users ou ON ou.organization_id = o.id
		WHERE ou.user_id = $1
		ORDER BY o.created_at
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	return scanOrganizationRows(rows)
}

func scanOrganizationRows(rows pgx.Rows) ([]*models.Organization, error) {
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org, err := scanOrganizationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return orgs, nil
}

func (r *organizationRepoImpl) GetMemberships(ctx context.Context, userID string, minStatus models.OrganizationUserStatus) ([]*models.OrganizationMembership, error) {
	query := `
		SELECT id, organization_id, user_id, status
		FROM organization_users
		WHERE user_id = $1 AND status >= $2
	`

	rows, err := r.db.Query(ctx, query, userID, minStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]*models.OrganizationMembership, 0)
	for rows.Next() {
		var m models.OrganizationMembership
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Status); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return memberships, nil
}

func (r *organizationRepoImpl) GetAbilities(ctx context.Context) (map[string]models.OrganizationAbility, error) {
	query := `
		SELECT id, enabled,
			COALESCE(jsonb_path_exists(two_factor_providers, '$.* ? (@.enabled == true)'), false)
		FROM organizations
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query organization abilities: %w", err)
	}
	defer rows.Close()

	abilities := make(map[string]models.OrganizationAbility)
	for rows.Next() {
		var a models.OrganizationAbility
		if err := rows.Scan(&a.ID, &a.Enabled, &a.Using2FA); err != nil {
			return nil, fmt.Errorf("failed to scan ability: %w", err)
		}
		abilities[a.ID] = a
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return abilities, nil
}
