package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type courseRepoStub struct {
	courses    map[string]*models.Course
	shortnames map[string]bool

	catalog   []models.Course
	listCalls int

	createdCourse   *models.Course
	createdSections []models.CourseSection
	updatedFields   map[string]interface{}
}

func (s *courseRepoStub) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	s.listCalls++
	if filter.Limit > 0 && filter.Limit < len(s.catalog) {
		return s.catalog[:filter.Limit], nil
	}
	return s.catalog, nil
}

func (s *courseRepoStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := s.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *courseRepoStub) ShortnameExists(ctx context.Context, shortname, excludeID string) (bool, error) {
	return s.shortnames[shortname], nil
}

func (s *courseRepoStub) CreateWithSections(ctx context.Context, course *models.Course, sections []models.CourseSection) error {
	s.createdCourse = course
	s.createdSections = sections
	return nil
}

func (s *courseRepoStub) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	s.updatedFields = fields
	return nil
}

func (s *courseRepoStub) BulkUpdate(ctx context.Context, ids []string, fields map[string]interface{}) error {
	return nil
}

func (s *courseRepoStub) DeleteCascade(ctx context.Context, id, categoryID string) error {
	return nil
}

func (s *courseRepoStub) Stats(ctx context.Context, id string) (*models.CourseStats, error) {
	return &models.CourseStats{}, nil
}

type sectionListStub struct{}

func (sectionListStub) ListByCourse(ctx context.Context, courseID string) ([]models.CourseSection, error) {
	return nil, nil
}

type itemListStub struct{}

func (itemListStub) ListByCourse(ctx context.Context, courseID string) ([]models.CourseItem, error) {
	return nil, nil
}

func (itemListStub) InsertMany(ctx context.Context, items []models.CourseItem) error { return nil }

type enrolledIDsStub struct{}

func (enrolledIDsStub) EnrolledCourseIDs(ctx context.Context, userID string, activeOnly bool) ([]string, error) {
	return nil, nil
}

type catalogCacheStub struct {
	values map[string][]models.Course
	sets   []string
}

func (c *catalogCacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*[]models.Course) = v
	return nil
}

func (c *catalogCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.values[key] = value.([]models.Course)
	c.sets = append(c.sets, key)
	return nil
}

func (c *catalogCacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.values = map[string][]models.Course{}
	return nil
}

func newCourseService(repo *courseRepoStub) *CourseService {
	return NewCourseService(repo, sectionListStub{}, itemListStub{}, enrolledIDsStub{}, openAccess{}, nil, time.Minute, nil, nil)
}

func TestCatalogCacheKeyedByPageSize(t *testing.T) {
	repo := &courseRepoStub{catalog: []models.Course{{ID: "c1"}, {ID: "c2"}}}
	cache := &catalogCacheStub{values: map[string][]models.Course{}}
	svc := NewCourseService(repo, sectionListStub{}, itemListStub{}, enrolledIDsStub{}, openAccess{}, cache, time.Minute, nil, nil)

	short, err := svc.List(context.Background(), claimsFor(models.RoleStudent, "s1"), models.CourseFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, short, 1)

	// a short cached page must not be replayed for a wider request
	full, err := svc.List(context.Background(), claimsFor(models.RoleStudent, "s2"), models.CourseFilter{Limit: 20})
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.ElementsMatch(t, []string{"catalog:published:1", "catalog:published:20"}, cache.sets)

	again, err := svc.List(context.Background(), claimsFor(models.RoleStudent, "s3"), models.CourseFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 2, repo.listCalls)
}

func TestCourseCreateDefaultsToDraft(t *testing.T) {
	repo := &courseRepoStub{shortnames: map[string]bool{}}
	svc := newCourseService(repo)

	course, err := svc.Create(context.Background(), claimsFor(models.RoleTeacher, "t1"), models.CreateCourseRequest{
		Fullname:   "Historia del Arte",
		Shortname:  "ARTE-101",
		CategoryID: "cat1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, course.Status)
	assert.Equal(t, "t1", course.CreatedBy)
	assert.Equal(t, "es", course.Language)
	assert.Equal(t, models.FormatTopics, course.Format)
	assert.True(t, course.Visible)
}

func TestCourseCreateBuildsInitialSections(t *testing.T) {
	repo := &courseRepoStub{shortnames: map[string]bool{}}
	svc := newCourseService(repo)

	_, err := svc.Create(context.Background(), claimsFor(models.RoleTeacher, "t1"), models.CreateCourseRequest{
		Fullname:    "Biología",
		Shortname:   "BIO-1",
		CategoryID:  "cat1",
		NumSections: 3,
	})
	require.NoError(t, err)
	require.Len(t, repo.createdSections, 4)
	assert.Equal(t, "Introducción", repo.createdSections[0].Title)
	assert.Equal(t, "Tema 1", repo.createdSections[1].Title)
	assert.Equal(t, "Tema 3", repo.createdSections[3].Title)
	assert.Equal(t, 3, repo.createdSections[3].Position)
}

func TestCourseCreateWeeklyFormatTitles(t *testing.T) {
	repo := &courseRepoStub{shortnames: map[string]bool{}}
	svc := newCourseService(repo)

	_, err := svc.Create(context.Background(), claimsFor(models.RoleAdmin, "a1"), models.CreateCourseRequest{
		Fullname:    "Curso intensivo",
		Shortname:   "INT-1",
		CategoryID:  "cat1",
		Format:      models.FormatWeeks,
		NumSections: 2,
	})
	require.NoError(t, err)
	require.Len(t, repo.createdSections, 3)
	assert.Equal(t, "Semana 1", repo.createdSections[1].Title)
	assert.Equal(t, "Semana 2", repo.createdSections[2].Title)
}

func TestCourseCreateShortnameConflict(t *testing.T) {
	repo := &courseRepoStub{shortnames: map[string]bool{"ARTE-101": true}}
	svc := newCourseService(repo)

	_, err := svc.Create(context.Background(), claimsFor(models.RoleTeacher, "t1"), models.CreateCourseRequest{
		Fullname:   "Historia del Arte",
		Shortname:  "ARTE-101",
		CategoryID: "cat1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestCourseCreateStudentsRejected(t *testing.T) {
	svc := newCourseService(&courseRepoStub{shortnames: map[string]bool{}})

	_, err := svc.Create(context.Background(), claimsFor(models.RoleStudent, "u1"), models.CreateCourseRequest{
		Fullname:   "Mi curso",
		Shortname:  "MIO-1",
		CategoryID: "cat1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestCourseUpdateArchivedLock(t *testing.T) {
	repo := &courseRepoStub{
		courses:    map[string]*models.Course{"c1": {ID: "c1", Status: models.CourseStatusArchived, CreatedBy: "owner"}},
		shortnames: map[string]bool{},
	}
	svc := newCourseService(repo)

	title := "Nuevo nombre"
	_, err := svc.Update(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.UpdateCourseRequest{Fullname: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseArchived.Code, errorCode(t, err))

	// an admin may unarchive, but only as a status-only change
	status := models.CourseStatusPublished
	_, err = svc.Update(context.Background(), claimsFor(models.RoleAdmin, "a1"), "c1", models.UpdateCourseRequest{Status: &status, Fullname: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseArchived.Code, errorCode(t, err))

	_, err = svc.Update(context.Background(), claimsFor(models.RoleAdmin, "a1"), "c1", models.UpdateCourseRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, status, repo.updatedFields["status"])
	assert.Equal(t, "a1", repo.updatedFields["last_modified_by"])
}

func TestCourseDeleteAdminOnly(t *testing.T) {
	repo := &courseRepoStub{
		courses: map[string]*models.Course{"c1": {ID: "c1", CategoryID: "cat1", CreatedBy: "owner"}},
	}
	svc := newCourseService(repo)

	err := svc.Delete(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	require.NoError(t, svc.Delete(context.Background(), claimsFor(models.RoleAdmin, "a1"), "c1"))
}

func TestCourseDuplicateResetsLifecycle(t *testing.T) {
	source := &models.Course{ID: "c1", Fullname: "Original", Shortname: "ORIG", Status: models.CourseStatusPublished, CreatedBy: "owner"}
	repo := &courseRepoStub{
		courses:    map[string]*models.Course{"c1": source},
		shortnames: map[string]bool{"ORIG": true},
	}
	svc := newCourseService(repo)

	clone, err := svc.Duplicate(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.DuplicateCourseRequest{
		Fullname:  "Copia",
		Shortname: "COPIA",
	})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, clone.Status)
	assert.Equal(t, "owner", clone.CreatedBy)
	assert.Equal(t, "COPIA", clone.Shortname)
	assert.Equal(t, models.CourseStatusPublished, source.Status)
}

func TestCourseBulkUpdateNeedsFields(t *testing.T) {
	svc := newCourseService(&courseRepoStub{})

	err := svc.BulkUpdate(context.Background(), claimsFor(models.RoleAdmin, "a1"), models.BulkCourseUpdateRequest{CourseIDs: []string{"c1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	err = svc.BulkUpdate(context.Background(), claimsFor(models.RoleTeacher, "t1"), models.BulkCourseUpdateRequest{CourseIDs: []string{"c1"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}
