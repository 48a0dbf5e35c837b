package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mportier/vaultgate/internal/database"
	"github.com/mportier/vaultgate/internal/models"
)

// UserRepository defines user persistence operations
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Replace(ctx context.Context, user *models.User) error
}

type userRepoImpl struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *database.DB) UserRepository {
	return &userRepoImpl{db: db.Pool}
}

const userColumns = `id, email, name, master_password, security_stamp, api_key, key, private_key,
	kdf, kdf_iterations, kdf_memory, kdf_parallelism, force_password_reset,
	two_factor_providers, failed_login_count, last_failed_login_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var masterPassword, key, privateKey *string
	var providersJSON []byte

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Name, &masterPassword, &user.SecurityStamp,
		&user.APIKey, &key, &privateKey,
		&user.Kdf, &user.KdfIterations, &user.KdfMemory, &user.KdfParallelism,
		&user.ForcePasswordReset,
		&providersJSON, &user.FailedLoginCount, &user.LastFailedLoginDate,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if masterPassword != nil {
		user.MasterPassword = *masterPassword
	}
	if key != nil {
		user.Key = *key
	}
	if privateKey != nil {
		user.PrivateKey = *privateKey
	}

	if len(providersJSON) > 0 {
		if err := json.Unmarshal(providersJSON, &user.TwoFactorProviders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal two-factor providers: %w", err)
		}
	}

	return &user, nil
}

func marshalProviders(providers map[models.TwoFactorProviderType]*models.TwoFactorProvider) ([]byte, error) {
	if providers == nil {
		return nil, nil
	}
	data, err := json.Marshal(providers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal two-factor providers: %w", err)
	}
	return data, nil
}

func (r *userRepoImpl) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.QueryRow(ctx, query, id))
}

func (r *userRepoImpl) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.db.QueryRow(ctx, query, email))
}

func (r *userRepoImpl) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.SecurityStamp == "" {
		user.SecurityStamp = uuid.New().String()
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	providersJSON, err := marshalProviders(user.TwoFactorProviders)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users
			(id, email, name, master_password, security_stamp, api_key, key, private_key,
			 kdf, kdf_iterations, kdf_memory, kdf_parallelism, force_password_reset,
			 two_factor_providers, failed_login_count, last_failed_login_date, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), NULLIF($8, ''),
			 $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.MasterPassword, user.SecurityStamp,
		user.APIKey, user.Key, user.PrivateKey,
		user.Kdf, user.KdfIterations, user.KdfMemory, user.KdfParallelism,
		user.ForcePasswordReset,
		providersJSON, user.FailedLoginCount, user.LastFailedLoginDate,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return user, nil
}

func (r *userRepoImpl) Replace(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	providersJSON, err := marshalProviders(user.TwoFactorProviders)
	if err != nil {
		return err
	}

	query := `
		UPDATE users SET
			email = $2, name = $3, master_password = NULLIF($4, ''), security_stamp = $5,
			api_key = $6, key = NULLIF($7, ''), private_key = NULLIF($8, ''),
			kdf = $9, kdf_iterations = $10, kdf_memory = $11, kdf_parallelism = $12,
			force_password_reset = $13, two_factor_providers = $14,
			failed_login_count = $15, last_failed_login_date = $16, updated_at = $17
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.MasterPassword, user.SecurityStamp,
		user.APIKey, user.Key, user.PrivateKey,
		user.Kdf, user.KdfIterations, user.KdfMemory, user.KdfParallelism,
		user.ForcePasswordReset, providersJSON,
		user.FailedLoginCount, user.LastFailedLoginDate, user.UpdatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
