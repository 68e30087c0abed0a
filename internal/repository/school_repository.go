package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vikram-labs/schoolpay-api/internal/models"
)

// SchoolRepository reads tenant records.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs a SchoolRepository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

const schoolColumns = "id, name, address, phone, email, active, created_at, updated_at"

// FindByID fetches a school by ID.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	query := fmt.Sprintf("SELECT %s FROM schools WHERE id = $1", schoolColumns)
	var school models.School
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// ListActive returns active schools, used by cross-tenant maintenance jobs.
func (r *SchoolRepository) ListActive(ctx context.Context) ([]models.School, error) {
	query := fmt.Sprintf("SELECT %s FROM schools WHERE active = true ORDER BY name ASC", schoolColumns)
	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// FindClass fetches a class by ID.
func (r *SchoolRepository) FindClass(ctx context.Context, id string) (*models.Class, error) {
	const query = "SELECT id, school_id, name, section, created_at FROM classes WHERE id = $1"
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}
