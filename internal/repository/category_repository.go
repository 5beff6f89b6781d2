package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aulalabs/aula-api/internal/models"
)

// CategoryRepository handles persistence of course categories.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs the repository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

const categoryColumns = `id, name, description, parent_id, position, visible, course_count, created_at, updated_at`

// ListByParent returns categories under the given parent, position-sorted.
// A nil parentID selects root categories.
func (r *CategoryRepository) ListByParent(ctx context.Context, parentID *string, visibleOnly bool) ([]models.CourseCategory, error) {
	var conditions []string
	var args []interface{}

	if parentID == nil {
		conditions = append(conditions, "parent_id IS NULL")
	} else {
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", len(args)+1))
		args = append(args, *parentID)
	}
	if visibleOnly {
		conditions = append(conditions, "visible = TRUE")
	}

	query := fmt.Sprintf(`SELECT %s FROM course_categories WHERE %s ORDER BY position ASC`, categoryColumns, strings.Join(conditions, " AND "))
	var categories []models.CourseCategory
	if err := r.db.SelectContext(ctx, &categories, query, args...); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// ListAll returns every visible category, position-sorted, for tree building.
func (r *CategoryRepository) ListAll(ctx context.Context) ([]models.CourseCategory, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_categories WHERE visible = TRUE ORDER BY position ASC`, categoryColumns)
	var categories []models.CourseCategory
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("list all categories: %w", err)
	}
	return categories, nil
}

// FindByID returns a category by its ID.
func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*models.CourseCategory, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_categories WHERE id = $1`, categoryColumns)
	var category models.CourseCategory
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// Create persists a new category.
func (r *CategoryRepository) Create(ctx context.Context, category *models.CourseCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now
	const query = `INSERT INTO course_categories (id, name, description, parent_id, position, visible, course_count, created_at, updated_at)
        VALUES (:id, :name, :description, :parent_id, :position, :visible, :course_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// Update applies the provided field set to a category row.
func (r *CategoryRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := []interface{}{id}
	for column, value := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)+1))
	args = append(args, time.Now().UTC())

	query := fmt.Sprintf("UPDATE course_categories SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// Delete removes a category row.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM course_categories WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// CountChildren returns the number of direct subcategories.
func (r *CategoryRepository) CountChildren(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_categories WHERE parent_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count subcategories: %w", err)
	}
	return count, nil
}

// AdjustCourseCount shifts the denormalized course counter.
func (r *CategoryRepository) AdjustCourseCount(ctx context.Context, id string, delta int) error {
	const query = `UPDATE course_categories SET course_count = course_count + $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, delta); err != nil {
		return fmt.Errorf("adjust category course count: %w", err)
	}
	return nil
}
