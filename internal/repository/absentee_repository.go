package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

// AbsenteeRepository reads the per-level absentee blobs the upstream
// attendance scanning pipeline writes after each service. The blobs
// are read-only from this system's point of view.
type AbsenteeRepository struct {
	store blobStore
}

// NewAbsenteeRepository constructs the repository on a blob backend.
func NewAbsenteeRepository(store blobStore) *AbsenteeRepository {
	return &AbsenteeRepository{store: store}
}

// Absentees reads one per-level absentee list. Missing blobs surface
// as storage.ErrObjectNotFound; callers decide whether that is fatal.
func (r *AbsenteeRepository) Absentees(ctx context.Context, date, serviceID, level string) ([]models.Absentee, error) {
	key := fmt.Sprintf("attendance/%s/%s/%s.json", date, serviceID, level)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var rows []models.Absentee
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode absentee blob %s: %w", key, err)
	}
	return rows, nil
}
