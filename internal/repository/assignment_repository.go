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

// AssignmentRepository handles persistence of assignments and submissions.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `id, course_id, item_id, title, instructions, due_date, max_submissions, max_grade, created_at, updated_at`

// ListByCourse returns a course's assignments.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE course_id = $1 ORDER BY created_at DESC`, assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// FindByID returns an assignment by its ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments WHERE id = $1`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Create persists a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now
	const query = `INSERT INTO assignments (id, course_id, item_id, title, instructions, due_date, max_submissions, max_grade, created_at, updated_at)
        VALUES (:id, :course_id, :item_id, :title, :instructions, :due_date, :max_submissions, :max_grade, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update applies the provided field set to an assignment row.
func (r *AssignmentRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
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

	query := fmt.Sprintf("UPDATE assignments SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment row.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM assignments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

const submissionColumns = `s.id, s.assignment_id, s.user_id, s.course_id, s.submission_number, s.content, s.file_url, s.status, s.grade, s.feedback, s.graded_by, s.graded_at, s.submitted_at`

// CreateSubmission persists a student delivery.
func (r *AssignmentRepository) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions (id, assignment_id, user_id, course_id, submission_number, content, file_url, status, grade, feedback, graded_by, graded_at, submitted_at)
        VALUES (:id, :assignment_id, :user_id, :course_id, :submission_number, :content, :file_url, :status, :grade, :feedback, :graded_by, :graded_at, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindSubmission returns a submission by its ID.
func (r *AssignmentRepository) FindSubmission(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions s WHERE s.id = $1`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListSubmissions returns an assignment's submissions with student identity.
func (r *AssignmentRepository) ListSubmissions(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        u.first_name AS user_first_name, u.last_name AS user_last_name, u.email AS user_email
        FROM submissions s JOIN users u ON u.id = s.user_id
        WHERE s.assignment_id = $1 ORDER BY s.submitted_at DESC`, submissionColumns)
	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// CountSubmissions returns how many times the user has submitted.
func (r *AssignmentRepository) CountSubmissions(ctx context.Context, assignmentID, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM submissions WHERE assignment_id = $1 AND user_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assignmentID, userID); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

// GradeSubmission records a mark and feedback on a submission.
func (r *AssignmentRepository) GradeSubmission(ctx context.Context, id string, grade float64, feedback *string, gradedBy string) error {
	const query = `UPDATE submissions
        SET status = 'graded', grade = $2, feedback = $3, graded_by = $4, graded_at = $5
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, feedback, gradedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	return nil
}
