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

// QuizRepository handles persistence of quizzes and attempts.
type QuizRepository struct {
	db *sqlx.DB
}

// NewQuizRepository constructs the repository.
func NewQuizRepository(db *sqlx.DB) *QuizRepository {
	return &QuizRepository{db: db}
}

const quizColumns = `id, course_id, item_id, title, description, question_ids, max_attempts, time_limit_minutes, passing_grade, created_at, updated_at`

// ListByCourse returns a course's quizzes.
func (r *QuizRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Quiz, error) {
	query := fmt.Sprintf(`SELECT %s FROM quizzes WHERE course_id = $1 ORDER BY created_at DESC`, quizColumns)
	var quizzes []models.Quiz
	if err := r.db.SelectContext(ctx, &quizzes, query, courseID); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// FindByID returns a quiz by its ID.
func (r *QuizRepository) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	query := fmt.Sprintf(`SELECT %s FROM quizzes WHERE id = $1`, quizColumns)
	var quiz models.Quiz
	if err := r.db.GetContext(ctx, &quiz, query, id); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// Create persists a new quiz.
func (r *QuizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = now
	}
	quiz.UpdatedAt = now
	const query = `INSERT INTO quizzes (id, course_id, item_id, title, description, question_ids, max_attempts, time_limit_minutes, passing_grade, created_at, updated_at)
        VALUES (:id, :course_id, :item_id, :title, :description, :question_ids, :max_attempts, :time_limit_minutes, :passing_grade, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, quiz); err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

// Update applies the provided field set to a quiz row.
func (r *QuizRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
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

	query := fmt.Sprintf("UPDATE quizzes SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	return nil
}

// Delete removes a quiz row.
func (r *QuizRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM quizzes WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	return nil
}

const attemptColumns = `id, quiz_id, user_id, course_id, attempt_number, status, answers, score, earned_points, total_points, started_at, finished_at`

// CreateAttempt persists a new in-progress attempt.
func (r *QuizRepository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = time.Now().UTC()
	}
	const query = `INSERT INTO quiz_attempts (id, quiz_id, user_id, course_id, attempt_number, status, answers, score, earned_points, total_points, started_at, finished_at)
        VALUES (:id, :quiz_id, :user_id, :course_id, :attempt_number, :status, :answers, :score, :earned_points, :total_points, :started_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// FindAttempt returns an attempt by its ID.
func (r *QuizRepository) FindAttempt(ctx context.Context, id string) (*models.QuizAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM quiz_attempts WHERE id = $1`, attemptColumns)
	var attempt models.QuizAttempt
	if err := r.db.GetContext(ctx, &attempt, query, id); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListAttempts returns a user's attempts at one quiz, newest first.
func (r *QuizRepository) ListAttempts(ctx context.Context, quizID, userID string) ([]models.QuizAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM quiz_attempts WHERE quiz_id = $1 AND user_id = $2 ORDER BY attempt_number DESC`, attemptColumns)
	var attempts []models.QuizAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, quizID, userID); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// CountAttempts returns how many attempts the user has made at a quiz.
func (r *QuizRepository) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id = $1 AND user_id = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, quizID, userID); err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// FinishAttempt records the scored submission on an attempt.
func (r *QuizRepository) FinishAttempt(ctx context.Context, id string, answers models.AttemptAnswers, score, earned, total float64) error {
	const query = `UPDATE quiz_attempts
        SET status = 'completed', answers = $2, score = $3, earned_points = $4, total_points = $5, finished_at = $6
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, answers, score, earned, total, time.Now().UTC()); err != nil {
		return fmt.Errorf("finish attempt: %w", err)
	}
	return nil
}
