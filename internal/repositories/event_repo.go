package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mportier/vaultgate/internal/database"
	"github.com/mportier/vaultgate/internal/models"
)

// EventRepository defines user event log persistence
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetManyByUserID(ctx context.Context, userID string, limit int) ([]*models.Event, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type eventRepoImpl struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *database.DB) EventRepository {
	return &eventRepoImpl{db: db.Pool}
}

func (r *eventRepoImpl) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Date.IsZero() {
		event.Date = time.Now()
	}

	query := `INSERT INTO events (id, user_id, type, ip_address, date) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, event.ID, event.UserID, event.Type, event.IPAddress, event.Date)
	return database.MapPostgresError(err)
}

func (r *eventRepoImpl) GetManyByUserID(ctx context.Context, userID string, limit int) ([]*models.Event, error) {
	query := `
		SELECT id, user_id, type, ip_address, date
		FROM events WHERE user_id = $1
		ORDER BY date DESC LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.Event, 0)
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.IPAddress, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

func (r *eventRepoImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE date < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
