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

// ItemRepository handles persistence of course items and their ordering
// inside sections.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository constructs the repository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, section_id, course_id, title, item_type, description, position, visible, content, availability, completion, created_at, updated_at`

const insertItemQuery = `INSERT INTO course_items (id, section_id, course_id, title, item_type, description, position, visible, content, availability, completion, created_at, updated_at)
        VALUES (:id, :section_id, :course_id, :title, :item_type, :description, :position, :visible, :content, :availability, :completion, :created_at, :updated_at)`

// ListBySection returns a section's items ordered by (position, created_at).
func (r *ItemRepository) ListBySection(ctx context.Context, sectionID string) ([]models.CourseItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_items WHERE section_id = $1 ORDER BY position ASC, created_at ASC`, itemColumns)
	var items []models.CourseItem
	if err := r.db.SelectContext(ctx, &items, query, sectionID); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// ListByCourse returns every item in a course, section by section.
func (r *ItemRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_items WHERE course_id = $1 ORDER BY section_id, position ASC, created_at ASC`, itemColumns)
	var items []models.CourseItem
	if err := r.db.SelectContext(ctx, &items, query, courseID); err != nil {
		return nil, fmt.Errorf("list course items: %w", err)
	}
	return items, nil
}

// ListGradable returns the course items that carry grades, in course order.
func (r *ItemRepository) ListGradable(ctx context.Context, courseID string) ([]models.CourseItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_items WHERE course_id = $1 AND item_type IN ('assignment', 'quiz') ORDER BY section_id, position ASC, created_at ASC`, itemColumns)
	var items []models.CourseItem
	if err := r.db.SelectContext(ctx, &items, query, courseID); err != nil {
		return nil, fmt.Errorf("list gradable items: %w", err)
	}
	return items, nil
}

// FindByID returns an item by its ID.
func (r *ItemRepository) FindByID(ctx context.Context, id string) (*models.CourseItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_items WHERE id = $1`, itemColumns)
	var item models.CourseItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// MaxPosition returns the highest position in a section, or -1 when empty.
func (r *ItemRepository) MaxPosition(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COALESCE(MAX(position), -1) FROM course_items WHERE section_id = $1`
	var max int
	if err := r.db.GetContext(ctx, &max, query, sectionID); err != nil {
		return 0, fmt.Errorf("max item position: %w", err)
	}
	return max, nil
}

// Create persists a new item at the position the caller decided.
func (r *ItemRepository) Create(ctx context.Context, item *models.CourseItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, insertItemQuery, item); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// InsertMany persists a batch of items in one transaction. Used when
// duplicating a course.
func (r *ItemRepository) InsertMany(ctx context.Context, items []models.CourseItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert items: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.CreatedAt = now
		item.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertItemQuery, item); err != nil {
			return fmt.Errorf("insert item %q: %w", item.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert items: %w", err)
	}
	return nil
}

// Update applies the provided field set to an item row.
func (r *ItemRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
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

	query := fmt.Sprintf("UPDATE course_items SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// MoveWithinSection shifts an item from oldPos to newPos inside one section.
// Same shift rules as section moves.
func (r *ItemRepository) MoveWithinSection(ctx context.Context, sectionID, itemID string, oldPos, newPos int) error {
	if oldPos == newPos {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move item: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if newPos > oldPos {
		const shift = `UPDATE course_items SET position = position - 1, updated_at = $4
        WHERE section_id = $1 AND position > $2 AND position <= $3`
		if _, err := tx.ExecContext(ctx, shift, sectionID, oldPos, newPos, now); err != nil {
			return fmt.Errorf("shift items back: %w", err)
		}
	} else {
		const shift = `UPDATE course_items SET position = position + 1, updated_at = $4
        WHERE section_id = $1 AND position >= $2 AND position < $3`
		if _, err := tx.ExecContext(ctx, shift, sectionID, newPos, oldPos, now); err != nil {
			return fmt.Errorf("shift items forward: %w", err)
		}
	}

	const place = `UPDATE course_items SET position = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, place, itemID, newPos, now); err != nil {
		return fmt.Errorf("place item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move item: %w", err)
	}
	return nil
}

// MoveToSection relocates an item into another section: the old section's
// trailing items close the gap, the target section's items at and after the
// landing slot open one. Both shifts and the relocation commit together.
func (r *ItemRepository) MoveToSection(ctx context.Context, itemID, oldSectionID, newSectionID string, oldPos, newPos int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move item across sections: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	const closeGap = `UPDATE course_items SET position = position - 1, updated_at = $3
        WHERE section_id = $1 AND position > $2`
	if _, err := tx.ExecContext(ctx, closeGap, oldSectionID, oldPos, now); err != nil {
		return fmt.Errorf("close source gap: %w", err)
	}

	const openSlot = `UPDATE course_items SET position = position + 1, updated_at = $3
        WHERE section_id = $1 AND position >= $2`
	if _, err := tx.ExecContext(ctx, openSlot, newSectionID, newPos, now); err != nil {
		return fmt.Errorf("open target slot: %w", err)
	}

	const place = `UPDATE course_items SET section_id = $2, position = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, place, itemID, newSectionID, newPos, now); err != nil {
		return fmt.Errorf("place item in target section: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move item across sections: %w", err)
	}
	return nil
}

// Delete removes an item. Siblings keep their positions; the gap is tolerated.
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM course_items WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}
