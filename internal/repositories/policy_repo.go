package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mportier/vaultgate/internal/database"
	"github.com/mportier/vaultgate/internal/models"
)

// PolicyRepository defines organization policy reads
type PolicyRepository interface {
	// GetManyApplicableToUser returns enabled policies of the given type for
	// organizations where the user's membership has at least minStatus and
	// the organization itself is enabled.
	GetManyApplicableToUser(ctx context.Context, userID string, policyType models.PolicyType, minStatus models.OrganizationUserStatus) ([]*models.Policy, error)
	GetByOrganizationIDType(ctx context.Context, organizationID string, policyType models.PolicyType) (*models.Policy, error)
}

type policyRepoImpl struct {
	db *pgxpool.Pool
}

func NewPolicyRepository(db *database.DB) PolicyRepository {
	return &policyRepoImpl{db: db.Pool}
}

func scanPolicyRow(scanner rowScanner) (*models.Policy, error) {
	var policy models.Policy
	var dataJSON []byte

	err := scanner.Scan(&policy.ID, &policy.OrganizationID, &policy.Type, &policy.Enabled, &dataJSON)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &policy.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy data: %w", err)
		}
	}

	return &policy, nil
}

func (r *policyRepoImpl) GetManyApplicableToUser(ctx context.Context, userID string, policyType models.PolicyType, minStatus models.OrganizationUserStatus) ([]*models.Policy, error) {
	query := `
		SELECT p.id, p.organization_id, p.type, p.enabled, p.data
		FROM policies p
		JOIN organizations o ON o.id = p.organization_id
		JOIN organization_users ou ON ou.organization_id = p.organization_id
		WHERE ou.user_id = $1 AND ou.status >= $2
		  AND p.type = $3 AND p.enabled AND o.enabled
	`

	rows, err := r.db.Query(ctx, query, userID, minStatus, policyType)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	policies := make([]*models.Policy, 0)
	for rows.Next() {
		policy, err := scanPolicyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return policies, nil
}

func (r *policyRepoImpl) GetByOrganizationIDType(ctx context.Context, organizationID string, policyType models.PolicyType) (*models.Policy, error) {
	query := `
		SELECT id, organization_id, type, enabled, data
		FROM policies
		WHERE organization_id = $1 AND type = $2
	`
	return scanPolicyRow(r.db.QueryRow(ctx, query, organizationID, policyType))
}
