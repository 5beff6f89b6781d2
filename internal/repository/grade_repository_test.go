package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/internal/models"
)

func newGradeMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return sqlxDB, mock, func() { sqlxDB.Close() }
}

func TestGradeUpsertReplacesOnConflict(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (user_id, item_id, course_id) DO UPDATE`)).
		WithArgs(sqlmock.AnyArg(), "stu1", "asg", "c1", 87.5, nil, "owner", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	grade := &models.Grade{UserID: "stu1", ItemID: "asg", CourseID: "c1", Grade: 87.5, GradedBy: "owner"}
	require.NoError(t, repo.Upsert(context.Background(), grade))
	assert.NotEmpty(t, grade.ID)
	assert.False(t, grade.GradedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeListByCourseAndUserJoinsItems(t *testing.T) {
	db, mock, cleanup := newGradeMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "item_id", "course_id", "grade", "feedback", "graded_by", "graded_at", "item_title", "item_type"}).
		AddRow("g1", "stu1", "asg", "c1", 80.0, nil, "owner", time.Now(), "Ensayo", "assignment")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM grades g JOIN course_items i ON i.id = g.item_id`)).
		WithArgs("c1", "stu1").
		WillReturnRows(rows)

	grades, err := repo.ListByCourseAndUser(context.Background(), "c1", "stu1")
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, "Ensayo", grades[0].ItemTitle)
	assert.NoError(t, mock.ExpectationsWereMet())
}
