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

func newSectionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return sqlxDB, mock, func() { sqlxDB.Close() }
}

func TestSectionListByCourseOrdersByPosition(t *testing.T) {
	db, mock, cleanup := newSectionMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "title", "summary", "position", "visible", "created_at", "updated_at"}).
		AddRow("s1", "c1", "Introducción", nil, 0, true, time.Now(), time.Now()).
		AddRow("s2", "c1", "Tema 1", nil, 1, true, time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, course_id, title, summary, position, visible, created_at, updated_at FROM course_sections WHERE course_id = $1 ORDER BY position ASC, created_at ASC`)).
		WithArgs("c1").
		WillReturnRows(rows)

	sections, err := repo.ListByCourse(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "Introducción", sections[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionMaxPositionEmptyCourse(t *testing.T) {
	db, mock, cleanup := newSectionMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(position), -1) FROM course_sections WHERE course_id = $1`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(-1))

	max, err := repo.MaxPosition(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, -1, max)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newSectionMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO course_sections`)).
		WithArgs(sqlmock.AnyArg(), "c1", "Tema 2", nil, 2, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	section := &models.CourseSection{CourseID: "c1", Title: "Tema 2", Position: 2, Visible: true}
	require.NoError(t, repo.Create(context.Background(), section))
	assert.NotEmpty(t, section.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionMoveLaterShiftsBack(t *testing.T) {
	db, mock, cleanup := newSectionMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	// (oldPos, newPos] slides back one when moving toward the tail
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_sections SET position = position - 1, updated_at = $4`)).
		WithArgs("c1", 1, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_sections SET position = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("s1", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Move(context.Background(), "c1", "s1", 1, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionMoveEarlierShiftsForward(t *testing.T) {
	db, mock, cleanup := newSectionMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	// [newPos, oldPos) slides forward one when moving toward the head
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_sections SET position = position + 1, updated_at = $4`)).
		WithArgs("c1", 0, 4, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_sections SET position = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("s5", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Move(context.Background(), "c1", "s5", 4, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionMoveSamePositionNoQueries(t *testing.T) {
	db, mock, cleanup := newSectionMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	require.NoError(t, repo.Move(context.Background(), "c1", "s1", 2, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionDeleteWithItemsIsTransactional(t *testing.T) {
	db, mock, cleanup := newSectionMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM course_items WHERE section_id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM course_sections WHERE id = $1`)).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteWithItems(context.Background(), "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
