package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Juls-123/chapel-admin-sub000/internal/models"
)

// StudentRepository resolves student identity and contact channels.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ContactsByIDs returns contact info keyed by student id. Unknown ids
// are simply absent from the map.
func (r *StudentRepository) ContactsByIDs(ctx context.Context, studentIDs []string) (map[string]models.ContactInfo, error) {
	contacts := make(map[string]models.ContactInfo, len(studentIDs))
	if len(studentIDs) == 0 {
		return contacts, nil
	}

	const query = `SELECT id, matric_number, full_name, level, email, parent_email, phone, parent_phone, active, created_at, updated_at
FROM students WHERE id = ANY($1)`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("lookup student contacts: %w", err)
	}

	for _, s := range students {
		contacts[s.ID] = models.ContactInfo{
			Email:       s.Email,
			ParentEmail: s.ParentEmail,
			Phone:       s.Phone,
			ParentPhone: s.ParentPhone,
		}
	}
	return contacts, nil
}

// Create inserts a student row.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, matric_number, full_name, level, email, parent_email, phone, parent_phone, active, created_at, updated_at)
VALUES (:id, :matric_number, :full_name, :level, :email, :parent_email, :phone, :parent_phone, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
