package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aulalabs/aula-api/internal/models"
)

// GradeRepository handles persistence of grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// Upsert writes a grade, replacing any previous mark for the same
// (user, item, course) triple.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	if grade.GradedAt.IsZero() {
		grade.GradedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grades (id, user_id, item_id, course_id, grade, feedback, graded_by, graded_at)
        VALUES (:id, :user_id, :item_id, :course_id, :grade, :feedback, :graded_by, :graded_at)
        ON CONFLICT (user_id, item_id, course_id) DO UPDATE
        SET grade = EXCLUDED.grade, feedback = EXCLUDED.feedback, graded_by = EXCLUDED.graded_by, graded_at = EXCLUDED.graded_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// ListByCourse returns every grade in a course.
func (r *GradeRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Grade, error) {
	const query = `SELECT id, user_id, item_id, course_id, grade, feedback, graded_by, graded_at
        FROM grades WHERE course_id = $1`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, courseID); err != nil {
		return nil, fmt.Errorf("list course grades: %w", err)
	}
	return grades, nil
}

// ListByCourseAndUser returns one student's grades with item titles joined.
func (r *GradeRepository) ListByCourseAndUser(ctx context.Context, courseID, userID string) ([]models.GradeWithItem, error) {
	const query = `SELECT g.id, g.user_id, g.item_id, g.course_id, g.grade, g.feedback, g.graded_by, g.graded_at,
        i.title AS item_title, i.item_type AS item_type
        FROM grades g JOIN course_items i ON i.id = g.item_id
        WHERE g.course_id = $1 AND g.user_id = $2
        ORDER BY g.graded_at DESC`
	var grades []models.GradeWithItem
	if err := r.db.SelectContext(ctx, &grades, query, courseID, userID); err != nil {
		return nil, fmt.Errorf("list user grades: %w", err)
	}
	return grades, nil
}

// ListByUser returns every grade a user holds across courses, newest first.
func (r *GradeRepository) ListByUser(ctx context.Context, userID string) ([]models.GradeWithItem, error) {
	const query = `SELECT g.id, g.user_id, g.item_id, g.course_id, g.grade, g.feedback, g.graded_by, g.graded_at,
        i.title AS item_title, i.item_type AS item_type, c.fullname AS course_name
        FROM grades g
        JOIN course_items i ON i.id = g.item_id
        JOIN courses c ON c.id = g.course_id
        WHERE g.user_id = $1
        ORDER BY g.graded_at DESC`
	var grades []models.GradeWithItem
	if err := r.db.SelectContext(ctx, &grades, query, userID); err != nil {
		return nil, fmt.Errorf("list grades by user: %w", err)
	}
	return grades, nil
}

// FindByUserAndItem returns the grade for one user on one item, if any.
func (r *GradeRepository) FindByUserAndItem(ctx context.Context, userID, itemID string) (*models.Grade, error) {
	const query = `SELECT id, user_id, item_id, course_id, grade, feedback, graded_by, graded_at
        FROM grades WHERE user_id = $1 AND item_id = $2`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, userID, itemID); err != nil {
		return nil, err
	}
	return &grade, nil
}
