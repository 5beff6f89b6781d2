package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aulalabs/aula-api/internal/models"
)

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, fullname, shortname, category_id, summary, cover_image, tags, language, format, num_sections, start_date, end_date, visible, status, completion, gradebook, ai, files, created_by, last_modified_by, created_at, updated_at`

// List returns courses filtered by the provided criteria. For student views
// the visible set is the published catalog plus the student's own courses.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentView {
		if len(filter.EnrolledCourseIDs) > 0 {
			conditions = append(conditions, fmt.Sprintf("((status = 'published' AND visible = TRUE) OR id = ANY($%d))", len(args)+1))
			args = append(args, pq.Array(filter.EnrolledCourseIDs))
		} else {
			conditions = append(conditions, "(status = 'published' AND visible = TRUE)")
		}
	} else {
		if filter.Status != "" {
			conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
			args = append(args, filter.Status)
		}
		if filter.Visible != nil {
			conditions = append(conditions, fmt.Sprintf("visible = $%d", len(args)+1))
			args = append(args, *filter.Visible)
		}
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)+1))
		args = append(args, filter.CategoryID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(fullname ILIKE $%d OR shortname ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if len(filter.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags ?| $%d", len(args)+1))
		args = append(args, pq.Array(filter.Tags))
	}
	if filter.CreatedBy != "" {
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)+1))
		args = append(args, filter.CreatedBy)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM courses%s ORDER BY updated_at DESC LIMIT %d OFFSET %d`, courseColumns, clause, limit, skip)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ShortnameExists checks uniqueness of a shortname, optionally excluding one id.
func (r *CourseRepository) ShortnameExists(ctx context.Context, shortname, excludeID string) (bool, error) {
	query := "SELECT COUNT(*) FROM courses WHERE shortname = $1"
	args := []interface{}{shortname}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("check shortname: %w", err)
	}
	return count > 0, nil
}

const insertCourseQuery = `INSERT INTO courses (id, fullname, shortname, category_id, summary, cover_image, tags, language, format, num_sections, start_date, end_date, visible, status, completion, gradebook, ai, files, created_by, last_modified_by, created_at, updated_at)
        VALUES (:id, :fullname, :shortname, :category_id, :summary, :cover_image, :tags, :language, :format, :num_sections, :start_date, :end_date, :visible, :status, :completion, :gradebook, :ai, :files, :created_by, :last_modified_by, :created_at, :updated_at)`

// CreateWithSections persists a course and its auto-created sections in one
// transaction, and bumps the owning category's course counter.
func (r *CourseRepository) CreateWithSections(ctx context.Context, course *models.Course, sections []models.CourseSection) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.NamedExecContext(ctx, insertCourseQuery, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	for i := range sections {
		section := &sections[i]
		section.CourseID = course.ID
		if section.ID == "" {
			section.ID = uuid.NewString()
		}
		section.CreatedAt = now
		section.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertSectionQuery, section); err != nil {
			return fmt.Errorf("create course section %d: %w", section.Position, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE course_categories SET course_count = course_count + 1 WHERE id = $1`, course.CategoryID); err != nil {
		return fmt.Errorf("bump category course count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// Update applies the provided field set to a course row.
func (r *CourseRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
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

	query := fmt.Sprintf("UPDATE courses SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Touch refreshes a course's updated_at after content mutations.
func (r *CourseRepository) Touch(ctx context.Context, id string) error {
	const query = `UPDATE courses SET updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch course: %w", err)
	}
	return nil
}

// BulkUpdate applies the field set to every listed course id.
func (r *CourseRepository) BulkUpdate(ctx context.Context, ids []string, fields map[string]interface{}) error {
	if len(ids) == 0 || len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	var args []interface{}
	for column, value := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)+1))
	args = append(args, time.Now().UTC())

	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	query := fmt.Sprintf("UPDATE courses SET %s WHERE id IN (%s)", strings.Join(sets, ", "), strings.Join(placeholders, ","))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk update courses: %w", err)
	}
	return nil
}

// DeleteCascade removes a course and everything hanging off it in one
// transaction: sections, items, enrollments, grades and completion state.
func (r *CourseRepository) DeleteCascade(ctx context.Context, id, categoryID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete course: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cascade := []string{
		`DELETE FROM course_sections WHERE course_id = $1`,
		`DELETE FROM course_items WHERE course_id = $1`,
		`DELETE FROM enrollments WHERE course_id = $1`,
		`DELETE FROM grades WHERE course_id = $1`,
		`DELETE FROM completion_state WHERE course_id = $1`,
		`DELETE FROM courses WHERE id = $1`,
	}
	for _, query := range cascade {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("cascade delete course: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE course_categories SET course_count = course_count - 1 WHERE id = $1`, categoryID); err != nil {
		return fmt.Errorf("drop category course count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete course: %w", err)
	}
	return nil
}

// Stats returns management counters for one course.
func (r *CourseRepository) Stats(ctx context.Context, id string) (*models.CourseStats, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM course_sections WHERE course_id = $1) AS section_count,
        (SELECT COUNT(*) FROM course_items WHERE course_id = $1) AS item_count,
        (SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = 'active') AS enrollment_count,
        (SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND role = 'student' AND status = 'active') AS student_count`
	var stats models.CourseStats
	row := r.db.QueryRowxContext(ctx, query, id)
	if err := row.Scan(&stats.SectionCount, &stats.ItemCount, &stats.EnrollmentCount, &stats.StudentCount); err != nil {
		return nil, fmt.Errorf("course stats: %w", err)
	}
	return &stats, nil
}

// CountByCategory returns the number of courses in a category.
func (r *CourseRepository) CountByCategory(ctx context.Context, categoryID string) (int, error) {
	const query = `SELECT COUNT(*) FROM courses WHERE category_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, categoryID); err != nil {
		return 0, fmt.Errorf("count courses by category: %w", err)
	}
	return count, nil
}
