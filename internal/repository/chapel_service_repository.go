package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

// ChapelServiceRepository reads the per-date service registry.
type ChapelServiceRepository struct {
	db *sqlx.DB
}

// NewChapelServiceRepository constructs the repository.
func NewChapelServiceRepository(db *sqlx.DB) *ChapelServiceRepository {
	return &ChapelServiceRepository{db: db}
}

// ServicesOn returns every registry entry scheduled for the given
// date, active or not. Callers filter on Active.
func (r *ChapelServiceRepository) ServicesOn(ctx context.Context, date time.Time) ([]models.ChapelService, error) {
	const query = `SELECT id, date, label, time, type, active, created_at, updated_at
FROM chapel_services WHERE date = $1 ORDER BY time ASC`
	var services []models.ChapelService
	if err := r.db.SelectContext(ctx, &services, query, date); err != nil {
		return nil, fmt.Errorf("list chapel services for date: %w", err)
	}
	return services, nil
}

// Create inserts a registry entry.
func (r *ChapelServiceRepository) Create(ctx context.Context, service *models.ChapelService) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if service.CreatedAt.IsZero() {
		service.CreatedAt = now
	}
	service.UpdatedAt = now
	const query = `INSERT INTO chapel_services (id, date, label, time, type, active, created_at, updated_at)
VALUES (:id, :date, :label, :time, :type, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("create chapel service: %w", err)
	}
	return nil
}

// SetActive toggles a registry entry, used when a service is cancelled.
func (r *ChapelServiceRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE chapel_services SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("toggle chapel service: %w", err)
	}
	return nil
}
