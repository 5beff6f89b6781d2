package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type itemSectionLookupStub struct {
	sections map[string]*models.CourseSection
}

func (s *itemSectionLookupStub) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	if sec, ok := s.sections[id]; ok {
		return sec, nil
	}
	return nil, sql.ErrNoRows
}

type itemRepoStub struct {
	items       map[string]*models.CourseItem
	maxPosition int
	listed      []models.CourseItem

	created    *models.CourseItem
	withinArgs []interface{}
	acrossArgs []interface{}
}

func (s *itemRepoStub) ListBySection(ctx context.Context, sectionID string) ([]models.CourseItem, error) {
	return s.listed, nil
}

func (s *itemRepoStub) FindByID(ctx context.Context, id string) (*models.CourseItem, error) {
	if item, ok := s.items[id]; ok {
		return item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *itemRepoStub) MaxPosition(ctx context.Context, sectionID string) (int, error) {
	return s.maxPosition, nil
}

func (s *itemRepoStub) Create(ctx context.Context, item *models.CourseItem) error {
	s.created = item
	return nil
}

func (s *itemRepoStub) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

func (s *itemRepoStub) MoveWithinSection(ctx context.Context, sectionID, itemID string, oldPos, newPos int) error {
	s.withinArgs = []interface{}{sectionID, itemID, oldPos, newPos}
	return nil
}

func (s *itemRepoStub) MoveToSection(ctx context.Context, itemID, oldSectionID, newSectionID string, oldPos, newPos int) error {
	s.acrossArgs = []interface{}{itemID, oldSectionID, newSectionID, oldPos, newPos}
	return nil
}

func (s *itemRepoStub) Delete(ctx context.Context, id string) error {
	return nil
}

func newItemFixture() (*itemRepoStub, *itemSectionLookupStub, *courseLookupStub) {
	repo := &itemRepoStub{
		items: map[string]*models.CourseItem{
			"i1": {ID: "i1", SectionID: "s1", CourseID: "c1", Title: "Lectura", ItemType: models.ItemTypePage, Position: 2, Visible: true},
		},
	}
	sections := &itemSectionLookupStub{sections: map[string]*models.CourseSection{
		"s1": {ID: "s1", CourseID: "c1"},
		"s2": {ID: "s2", CourseID: "c1"},
		"sx": {ID: "sx", CourseID: "other"},
	}}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true}}
	return repo, sections, courses
}

func TestItemListHidesInvisibleFromStudents(t *testing.T) {
	repo, sections, courses := newItemFixture()
	repo.listed = []models.CourseItem{
		{ID: "a", Visible: true},
		{ID: "b", Visible: false},
		{ID: "c", Visible: true},
	}
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	items, err := svc.List(context.Background(), claimsFor(models.RoleStudent, "u1"), "s1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[1].ID)

	repo.listed = []models.CourseItem{
		{ID: "a", Visible: true},
		{ID: "b", Visible: false},
	}
	items, err = svc.List(context.Background(), claimsFor(models.RoleTeacher, "t1"), "s1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestItemGetHiddenIsNotFoundForStudents(t *testing.T) {
	repo, sections, courses := newItemFixture()
	repo.items["i1"].Visible = false
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	_, err := svc.Get(context.Background(), claimsFor(models.RoleStudent, "u1"), "i1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	item, err := svc.Get(context.Background(), claimsFor(models.RoleTeacher, "t1"), "i1")
	require.NoError(t, err)
	assert.Equal(t, "i1", item.ID)
}

func TestItemCreateAppendsAndDefaultsCompletion(t *testing.T) {
	repo, sections, courses := newItemFixture()
	repo.maxPosition = 6
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	item, err := svc.Create(context.Background(), claimsFor(models.RoleTeacher, "t1"), "s1", models.CreateItemRequest{
		Title:    "Video de bienvenida",
		ItemType: models.ItemTypeVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, item.Position)
	assert.Equal(t, "manual", item.Completion.Type)
	assert.Equal(t, "c1", item.CourseID)
}

func TestItemCreateRejectsUnknownType(t *testing.T) {
	repo, sections, courses := newItemFixture()
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	_, err := svc.Create(context.Background(), claimsFor(models.RoleTeacher, "t1"), "s1", models.CreateItemRequest{
		Title:    "Algo",
		ItemType: models.ItemType("scorm"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestItemMoveWithinSectionClamps(t *testing.T) {
	repo, sections, courses := newItemFixture()
	repo.maxPosition = 4
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	_, err := svc.Move(context.Background(), claimsFor(models.RoleTeacher, "t1"), "i1", models.MoveItemRequest{NewPosition: 40})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"s1", "i1", 2, 4}, repo.withinArgs)
	assert.Nil(t, repo.acrossArgs)
}

func TestItemMoveAcrossSectionsAllowsAppendSlot(t *testing.T) {
	repo, sections, courses := newItemFixture()
	repo.maxPosition = 3
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	target := "s2"
	_, err := svc.Move(context.Background(), claimsFor(models.RoleTeacher, "t1"), "i1", models.MoveItemRequest{NewPosition: 50, TargetSectionID: &target})
	require.NoError(t, err)
	// one slot past the target tail is valid on a cross-section move
	assert.Equal(t, []interface{}{"i1", "s1", "s2", 2, 4}, repo.acrossArgs)
}

func TestItemMoveRejectsForeignSection(t *testing.T) {
	repo, sections, courses := newItemFixture()
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	target := "sx"
	_, err := svc.Move(context.Background(), claimsFor(models.RoleTeacher, "t1"), "i1", models.MoveItemRequest{NewPosition: 0, TargetSectionID: &target})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestItemDuplicateAppendsCopy(t *testing.T) {
	repo, sections, courses := newItemFixture()
	repo.maxPosition = 8
	svc := NewItemService(repo, sections, courses, openAccess{}, nil, nil)

	dup, err := svc.Duplicate(context.Background(), claimsFor(models.RoleTeacher, "t1"), "i1")
	require.NoError(t, err)
	assert.Equal(t, "Lectura (copia)", dup.Title)
	assert.Equal(t, 9, dup.Position)
	assert.Equal(t, "s1", dup.SectionID)
	assert.Empty(t, dup.ID)
}
