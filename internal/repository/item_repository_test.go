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
)

func newItemMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return sqlxDB, mock, func() { sqlxDB.Close() }
}

func TestItemListBySectionOrdersByPosition(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	rows := sqlmock.NewRows([]string{"id", "section_id", "course_id", "title", "item_type", "description", "position", "visible", "content", "availability", "completion", "created_at", "updated_at"}).
		AddRow("i1", "s1", "c1", "Lectura", "page", nil, 0, true, []byte(`{}`), []byte(`{}`), []byte(`{"type":"manual"}`), time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`FROM course_items WHERE section_id = $1 ORDER BY position ASC, created_at ASC`)).
		WithArgs("s1").
		WillReturnRows(rows)

	items, err := repo.ListBySection(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Lectura", items[0].Title)
	assert.Equal(t, "manual", items[0].Completion.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemListGradableFiltersByType(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM course_items WHERE course_id = $1 AND item_type IN ('assignment', 'quiz')`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "section_id", "course_id", "title", "item_type", "description", "position", "visible", "content", "availability", "completion", "created_at", "updated_at"}))

	items, err := repo.ListGradable(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemMoveWithinSectionShifts(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_items SET position = position - 1, updated_at = $4`)).
		WithArgs("s1", 0, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_items SET position = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("i1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MoveWithinSection(context.Background(), "s1", "i1", 0, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemMoveToSectionClosesGapAndOpensSlot(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectBegin()
	// source: items after the old slot close the gap
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_items SET position = position - 1, updated_at = $3
        WHERE section_id = $1 AND position > $2`)).
		WithArgs("s1", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// target: items at and after the landing slot slide up
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_items SET position = position + 1, updated_at = $3
        WHERE section_id = $1 AND position >= $2`)).
		WithArgs("s2", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE course_items SET section_id = $2, position = $3, updated_at = $4 WHERE id = $1`)).
		WithArgs("i1", "s2", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MoveToSection(context.Background(), "i1", "s1", "s2", 2, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemDelete(t *testing.T) {
	db, mock, cleanup := newItemMock(t)
	defer cleanup()
	repo := NewItemRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM course_items WHERE id = $1`)).
		WithArgs("i1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "i1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
