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

// SectionRepository handles persistence of course sections, including the
// position shifts that keep drag-and-drop ordering dense.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `id, course_id, title, summary, position, visible, created_at, updated_at`

const insertSectionQuery = `INSERT INTO course_sections (id, course_id, title, summary, position, visible, created_at, updated_at)
        VALUES (:id, :course_id, :title, :summary, :position, :visible, :created_at, :updated_at)`

// ListByCourse returns a course's sections ordered by (position, created_at).
// created_at breaks ties so duplicate positions still render deterministically.
func (r *SectionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseSection, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_sections WHERE course_id = $1 ORDER BY position ASC, created_at ASC`, sectionColumns)
	var sections []models.CourseSection
	if err := r.db.SelectContext(ctx, &sections, query, courseID); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_sections WHERE id = $1`, sectionColumns)
	var section models.CourseSection
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// MaxPosition returns the highest position in a course, or -1 when empty.
func (r *SectionRepository) MaxPosition(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COALESCE(MAX(position), -1) FROM course_sections WHERE course_id = $1`
	var max int
	if err := r.db.GetContext(ctx, &max, query, courseID); err != nil {
		return 0, fmt.Errorf("max section position: %w", err)
	}
	return max, nil
}

// Create persists a new section. The caller decides the position; no sibling
// shifting happens here, so an explicit mid-list position produces a duplicate
// until the next move normalizes it.
func (r *SectionRepository) Create(ctx context.Context, section *models.CourseSection) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, insertSectionQuery, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update applies the provided field set to a section row.
func (r *SectionRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
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

	query := fmt.Sprintf("UPDATE course_sections SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// Move shifts a section from oldPos to newPos within its course. Neighbours
// slide by one in the opposite direction so positions stay dense; everything
// runs in one transaction.
func (r *SectionRepository) Move(ctx context.Context, courseID, sectionID string, oldPos, newPos int) error {
	if oldPos == newPos {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move section: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if newPos > oldPos {
		// Moving later: everything in (oldPos, newPos] slides back one.
		const shift = `UPDATE course_sections SET position = position - 1, updated_at = $4
        WHERE course_id = $1 AND position > $2 AND position <= $3`
		if _, err := tx.ExecContext(ctx, shift, courseID, oldPos, newPos, now); err != nil {
			return fmt.Errorf("shift sections back: %w", err)
		}
	} else {
		// Moving earlier: everything in [newPos, oldPos) slides forward one.
		const shift = `UPDATE course_sections SET position = position + 1, updated_at = $4
        WHERE course_id = $1 AND position >= $2 AND position < $3`
		if _, err := tx.ExecContext(ctx, shift, courseID, newPos, oldPos, now); err != nil {
			return fmt.Errorf("shift sections forward: %w", err)
		}
	}

	const place = `UPDATE course_sections SET position = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, place, sectionID, newPos, now); err != nil {
		return fmt.Errorf("place section: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move section: %w", err)
	}
	return nil
}

// DeleteWithItems removes a section and its items in one transaction.
// Remaining sections are NOT reindexed; the gap is tolerated by the
// (position, created_at) sort.
func (r *SectionRepository) DeleteWithItems(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete section: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM course_items WHERE section_id = $1`, id); err != nil {
		return fmt.Errorf("delete section items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_sections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete section: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete section: %w", err)
	}
	return nil
}

// CountItems returns the number of items inside a section.
func (r *SectionRepository) CountItems(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_items WHERE section_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count section items: %w", err)
	}
	return count, nil
}
