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

// EnrollmentRepository handles persistence of enrollments and self-enrollment
// methods.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.course_id, e.user_id, e.role, e.status, e.progress_percentage, e.enrolled_by, e.enrolled_at, e.updated_at, e.completed_at`

// ListByCourse returns a course's enrollments with user identity joined on.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	conditions := []string{"e.course_id = $1"}
	args := []interface{}{filter.CourseID}

	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("e.role = $%d", len(args)+1))
		args = append(args, filter.Role)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	query := fmt.Sprintf(`SELECT %s,
        u.first_name AS user_first_name, u.last_name AS user_last_name, u.email AS user_email
        FROM enrollments e JOIN users u ON u.id = e.user_id%s
        ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d`, enrollmentColumns, clause, limit, skip)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments e" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByCourseAndUser returns the enrollment linking a user to a course.
func (r *EnrollmentRepository) FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.course_id = $1 AND e.user_id = $2`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, userID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create persists a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, course_id, user_id, role, status, progress_percentage, enrolled_by, enrolled_at, updated_at, completed_at)
        VALUES (:id, :course_id, :user_id, :role, :status, :progress_percentage, :enrolled_by, :enrolled_at, :updated_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Update applies the provided field set to an enrollment row.
func (r *EnrollmentRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
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

	query := fmt.Sprintf("UPDATE enrollments SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment row.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// EnrolledCourseIDs returns the ids of every course the user is enrolled in,
// optionally restricted to active enrollments.
func (r *EnrollmentRepository) EnrolledCourseIDs(ctx context.Context, userID string, activeOnly bool) ([]string, error) {
	query := `SELECT course_id FROM enrollments WHERE user_id = $1`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("enrolled course ids: %w", err)
	}
	return ids, nil
}

// ListForUser returns a user's enrollments with course display fields joined.
func (r *EnrollmentRepository) ListForUser(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error) {
	query := fmt.Sprintf(`SELECT %s,
        c.fullname AS course_fullname, c.shortname AS course_shortname, c.status AS course_status
        FROM enrollments e JOIN courses c ON c.id = e.course_id
        WHERE e.user_id = $1 ORDER BY e.enrolled_at DESC`, enrollmentColumns)
	var enrollments []models.EnrollmentWithCourse
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return enrollments, nil
}

// CreateMethod persists a self-enrollment method for a course.
func (r *EnrollmentRepository) CreateMethod(ctx context.Context, method *models.EnrollmentMethod) error {
	if method.ID == "" {
		method.ID = uuid.NewString()
	}
	if method.CreatedAt.IsZero() {
		method.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_methods (id, course_id, type, code, role, enabled, created_at)
        VALUES (:id, :course_id, :type, :code, :role, :enabled, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, method); err != nil {
		return fmt.Errorf("create enrollment method: %w", err)
	}
	return nil
}

// FindMethodByCode returns the enabled self-enrollment method for a code.
func (r *EnrollmentRepository) FindMethodByCode(ctx context.Context, courseID, code string) (*models.EnrollmentMethod, error) {
	const query = `SELECT id, course_id, type, code, role, enabled, created_at
        FROM enrollment_methods WHERE course_id = $1 AND code = $2 AND enabled = TRUE`
	var method models.EnrollmentMethod
	if err := r.db.GetContext(ctx, &method, query, courseID, code); err != nil {
		return nil, err
	}
	return &method, nil
}

// ListMethods returns a course's enrollment methods.
func (r *EnrollmentRepository) ListMethods(ctx context.Context, courseID string) ([]models.EnrollmentMethod, error) {
	const query = `SELECT id, course_id, type, code, role, enabled, created_at
        FROM enrollment_methods WHERE course_id = $1 ORDER BY created_at DESC`
	var methods []models.EnrollmentMethod
	if err := r.db.SelectContext(ctx, &methods, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollment methods: %w", err)
	}
	return methods, nil
}

// UpdateMethod applies the provided field set to an enrollment method.
func (r *EnrollmentRepository) UpdateMethod(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields))
	args := []interface{}{id}
	for column, value := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}
	query := fmt.Sprintf("UPDATE enrollment_methods SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update enrollment method: %w", err)
	}
	return nil
}
