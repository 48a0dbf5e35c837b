package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mportier/vaultgate/internal/database"
	"github.com/mportier/vaultgate/internal/models"
)

// DeviceRepository defines device persistence operations
type DeviceRepository interface {
	GetByIdentifier(ctx context.Context, userID, identifier string) (*models.Device, error)
	GetByUserID(ctx context.Context, userID string) ([]*models.Device, error)
	Create(ctx context.Context, device *models.Device) error
}

type deviceRepoImpl struct {
	db *database.DB
}

func NewDeviceRepository(db *database.DB) DeviceRepository {
	return &deviceRepoImpl{db: db}
}

const deviceColumns = `id, user_id, identifier, name, type, push_token, created_at, updated_at`

func scanDeviceRow(scanner rowScanner) (*models.Device, error) {
	var device models.Device
	err := scanner.Scan(
		&device.ID, &device.UserID, &device.Identifier, &device.Name,
		&device.Type, &device.PushToken, &device.CreatedAt, &device.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &device, nil
}

func (r *deviceRepoImpl) GetByIdentifier(ctx context.Context, userID, identifier string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 AND identifier = $2`
	return scanDeviceRow(r.db.Pool.QueryRow(ctx, query, userID, identifier))
}

func (r *deviceRepoImpl) GetByUserID(ctx context.Context, userID string) ([]*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	return scanDeviceRows(rows)
}

func scanDeviceRows(rows pgx.Rows) ([]*models.Device, error) {
	defer rows.Close()

	devices := make([]*models.Device, 0)
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return devices, nil
}

func (r *deviceRepoImpl) Create(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (id, user_id, identifier, name, type, push_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	// Registering a device bumps the owner's revision in the same
	// transaction so clients resync their device list.
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			device.ID, device.UserID, device.Identifier, device.Name,
			device.Type, device.PushToken, device.CreatedAt, device.UpdatedAt,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		_, err = tx.Exec(ctx, `UPDATE users SET updated_at = $2 WHERE id = $1`, device.UserID, device.CreatedAt)
		return database.MapPostgresError(err)
	})
}
