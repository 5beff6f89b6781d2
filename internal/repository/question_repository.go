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

// QuestionRepository handles persistence of the per-course question bank.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs the repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `id, course_id, category_id, type, question_text, points, options, correct_answer, feedback, created_by, created_at, updated_at`

// ListByCourse returns a course's question bank, optionally filtered by
// category and type.
func (r *QuestionRepository) ListByCourse(ctx context.Context, courseID, categoryID string, questionType models.QuestionType) ([]models.Question, error) {
	conditions := []string{"course_id = $1"}
	args := []interface{}{courseID}

	if categoryID != "" {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)+1))
		args = append(args, categoryID)
	}
	if questionType != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, questionType)
	}

	query := fmt.Sprintf(`SELECT %s FROM questions WHERE %s ORDER BY created_at DESC`, questionColumns, strings.Join(conditions, " AND "))
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, args...); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// FindByID returns a question by its ID.
func (r *QuestionRepository) FindByID(ctx context.Context, id string) (*models.Question, error) {
	query := fmt.Sprintf(`SELECT %s FROM questions WHERE id = $1`, questionColumns)
	var question models.Question
	if err := r.db.GetContext(ctx, &question, query, id); err != nil {
		return nil, err
	}
	return &question, nil
}

// FindByIDs returns the questions matching the given ids. Order is not
// guaranteed; callers resolve quiz order from the quiz's own id list.
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM questions WHERE id = ANY($1)`, questionColumns)
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	return questions, nil
}

// Create persists a new question.
func (r *QuestionRepository) Create(ctx context.Context, question *models.Question) error {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if question.CreatedAt.IsZero() {
		question.CreatedAt = now
	}
	question.UpdatedAt = now
	const query = `INSERT INTO questions (id, course_id, category_id, type, question_text, points, options, correct_answer, feedback, created_by, created_at, updated_at)
        VALUES (:id, :course_id, :category_id, :type, :question_text, :points, :options, :correct_answer, :feedback, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, question); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// Update applies the provided field set to a question row.
func (r *QuestionRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
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

	query := fmt.Sprintf("UPDATE questions SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

// Delete removes a question row.
func (r *QuestionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM questions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// ListCategories returns a course's question categories.
func (r *QuestionRepository) ListCategories(ctx context.Context, courseID string) ([]models.QuestionCategory, error) {
	const query = `SELECT id, course_id, name, description, parent_id, created_at
        FROM question_categories WHERE course_id = $1 ORDER BY name ASC`
	var categories []models.QuestionCategory
	if err := r.db.SelectContext(ctx, &categories, query, courseID); err != nil {
		return nil, fmt.Errorf("list question categories: %w", err)
	}
	return categories, nil
}

// CreateCategory persists a new question category.
func (r *QuestionRepository) CreateCategory(ctx context.Context, category *models.QuestionCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO question_categories (id, course_id, name, description, parent_id, created_at)
        VALUES (:id, :course_id, :name, :description, :parent_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create question category: %w", err)
	}
	return nil
}
