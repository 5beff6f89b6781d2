package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

// catalogCacheKey is per page size so a short page cached by one caller is
// never served to another asking for a longer one.
func catalogCacheKey(limit int) string {
	return fmt.Sprintf("catalog:published:%d", limit)
}

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ShortnameExists(ctx context.Context, shortname, excludeID string) (bool, error)
	CreateWithSections(ctx context.Context, course *models.Course, sections []models.CourseSection) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	BulkUpdate(ctx context.Context, ids []string, fields map[string]interface{}) error
	DeleteCascade(ctx context.Context, id, categoryID string) error
	Stats(ctx context.Context, id string) (*models.CourseStats, error)
}

type courseSectionRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseSection, error)
}

type courseItemRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseItem, error)
	InsertMany(ctx context.Context, items []models.CourseItem) error
}

type courseEnrollmentRepository interface {
	EnrolledCourseIDs(ctx context.Context, userID string, activeOnly bool) ([]string, error)
}

type courseAccessChecker interface {
	CanView(ctx context.Context, claims *models.JWTClaims, course *models.Course) error
	CanEdit(ctx context.Context, claims *models.JWTClaims, course *models.Course) error
	CanManage(ctx context.Context, claims *models.JWTClaims, course *models.Course) error
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CourseService provides course lifecycle use cases.
type CourseService struct {
	repo        courseRepository
	sections    courseSectionRepository
	items       courseItemRepository
	enrollments courseEnrollmentRepository
	access      courseAccessChecker
	cache       courseCache
	catalogTTL  time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, sections courseSectionRepository, items courseItemRepository, enrollments courseEnrollmentRepository, access courseAccessChecker, cache courseCache, catalogTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if catalogTTL <= 0 {
		catalogTTL = 5 * time.Minute
	}
	return &CourseService{
		repo:        repo,
		sections:    sections,
		items:       items,
		enrollments: enrollments,
		access:      access,
		cache:       cache,
		catalogTTL:  catalogTTL,
		validator:   validate,
		logger:      logger,
	}
}

// List returns the courses visible to the actor. Students get the published
// catalog widened by their own enrollments; the unfiltered catalog page is
// served from cache when possible.
func (s *CourseService) List(ctx context.Context, claims *models.JWTClaims, filter models.CourseFilter) ([]models.Course, error) {
	if claims.Role == models.RoleStudent {
		filter.StudentView = true
		enrolled, err := s.enrollments.EnrolledCourseIDs(ctx, claims.UserID, false)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
		}
		filter.EnrolledCourseIDs = enrolled

		if s.cache != nil && s.cacheableCatalogRequest(filter) {
			key := catalogCacheKey(filter.Limit)
			var cached []models.Course
			if err := s.cache.Get(ctx, key, &cached); err == nil {
				return cached, nil
			}
			courses, err := s.repo.List(ctx, filter)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
			}
			if err := s.cache.Set(ctx, key, courses, s.catalogTTL); err != nil {
				s.logger.Warn("failed to cache catalog", zap.Error(err))
			}
			return courses, nil
		}
	} else if claims.Role == models.RoleTeacher && filter.CreatedBy == "" {
		// Teachers browse everything; the handler may scope to own courses.
	}

	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns one course after the view gate.
func (s *CourseService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Course, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	return course, nil
}

// Create persists a new course with its auto-created sections. Section 0 is
// always the introduction block; the rest are titled from the course format.
func (s *CourseService) Create(ctx context.Context, claims *models.JWTClaims, req models.CreateCourseRequest) (*models.Course, error) {
	if claims.Role != models.RoleAdmin && claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins and teachers can create courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	shortname := strings.TrimSpace(req.Shortname)
	exists, err := s.repo.ShortnameExists(ctx, shortname, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check shortname")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "shortname already in use")
	}

	format := req.Format
	if format == "" {
		format = models.FormatTopics
	}
	language := req.Language
	if language == "" {
		language = "es"
	}
	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	completion, gradebook, ai, files := models.DefaultCourseSettings()

	course := &models.Course{
		Fullname:    req.Fullname,
		Shortname:   shortname,
		CategoryID:  req.CategoryID,
		Summary:     req.Summary,
		Tags:        models.StringList(req.Tags),
		Language:    language,
		Format:      format,
		NumSections: req.NumSections,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Visible:     visible,
		Status:      models.CourseStatusDraft,
		Completion:  completion,
		Gradebook:   gradebook,
		AI:          ai,
		Files:       files,
		CreatedBy:   claims.UserID,
	}

	sections := buildInitialSections(format, req.NumSections)
	if err := s.repo.CreateWithSections(ctx, course, sections); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateCatalog(ctx)
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("shortname", course.Shortname))
	return course, nil
}

// Update applies a partial update after the edit gate. Archived courses admit
// exactly one change: an admin flipping the status back out of archived.
func (s *CourseService) Update(ctx context.Context, claims *models.JWTClaims, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course update payload")
	}

	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	if course.Status == models.CourseStatusArchived {
		if claims.Role != models.RoleAdmin || !isStatusOnlyUpdate(req) {
			return nil, appErrors.Clone(appErrors.ErrCourseArchived, "archived courses cannot be edited")
		}
	} else if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Fullname != nil {
		fields["fullname"] = *req.Fullname
	}
	if req.Shortname != nil {
		shortname := strings.TrimSpace(*req.Shortname)
		exists, err := s.repo.ShortnameExists(ctx, shortname, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check shortname")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "shortname already in use")
		}
		fields["shortname"] = shortname
	}
	if req.CategoryID != nil {
		fields["category_id"] = *req.CategoryID
	}
	if req.Summary != nil {
		fields["summary"] = *req.Summary
	}
	if req.CoverImage != nil {
		fields["cover_image"] = *req.CoverImage
	}
	if req.Tags != nil {
		fields["tags"] = models.StringList(req.Tags)
	}
	if req.Language != nil {
		fields["language"] = *req.Language
	}
	if req.Format != nil {
		fields["format"] = *req.Format
	}
	if req.StartDate != nil {
		fields["start_date"] = *req.StartDate
	}
	if req.EndDate != nil {
		fields["end_date"] = *req.EndDate
	}
	if req.Visible != nil {
		fields["visible"] = *req.Visible
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.Completion != nil {
		fields["completion"] = *req.Completion
	}
	if req.Gradebook != nil {
		fields["gradebook"] = *req.Gradebook
	}
	if req.AI != nil {
		fields["ai"] = *req.AI
	}
	if req.Files != nil {
		fields["files"] = *req.Files
	}
	fields["last_modified_by"] = claims.UserID

	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateCatalog(ctx)
	return s.findCourse(ctx, id)
}

// Delete removes a course and all dependent data. Admin only.
func (s *CourseService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can delete courses")
	}
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCascade(ctx, id, course.CategoryID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidateCatalog(ctx)
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

// Duplicate copies a course with its sections and items into a new draft.
// Enrollments, grades and attempts are not copied.
func (s *CourseService) Duplicate(ctx context.Context, claims *models.JWTClaims, id string, req models.DuplicateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duplicate payload")
	}

	source, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if claims.Role != models.RoleAdmin {
		if claims.Role != models.RoleTeacher || source.CreatedBy != claims.UserID {
			if err := s.access.CanEdit(ctx, claims, source); err != nil {
				return nil, err
			}
		}
	}

	shortname := strings.TrimSpace(req.Shortname)
	exists, err := s.repo.ShortnameExists(ctx, shortname, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check shortname")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "shortname already in use")
	}

	clone := *source
	clone.ID = ""
	clone.Fullname = req.Fullname
	clone.Shortname = shortname
	clone.Status = models.CourseStatusDraft
	clone.CreatedBy = claims.UserID
	clone.LastModifiedBy = nil
	clone.CreatedAt = time.Time{}

	sourceSections, err := s.sections.ListByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sections")
	}
	sectionCopies := make([]models.CourseSection, len(sourceSections))
	sectionIDMap := make(map[string]int, len(sourceSections))
	for i, section := range sourceSections {
		sectionIDMap[section.ID] = i
		sectionCopies[i] = models.CourseSection{
			Title:    section.Title,
			Summary:  section.Summary,
			Position: section.Position,
			Visible:  section.Visible,
		}
	}

	if err := s.repo.CreateWithSections(ctx, &clone, sectionCopies); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to duplicate course")
	}

	sourceItems, err := s.items.ListByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load items")
	}
	itemCopies := make([]models.CourseItem, 0, len(sourceItems))
	for _, item := range sourceItems {
		idx, ok := sectionIDMap[item.SectionID]
		if !ok {
			continue
		}
		itemCopies = append(itemCopies, models.CourseItem{
			SectionID:    sectionCopies[idx].ID,
			CourseID:     clone.ID,
			Title:        item.Title,
			ItemType:     item.ItemType,
			Description:  item.Description,
			Position:     item.Position,
			Visible:      item.Visible,
			Content:      item.Content,
			Availability: item.Availability,
			Completion:   item.Completion,
		})
	}
	if err := s.items.InsertMany(ctx, itemCopies); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to duplicate course items")
	}

	s.logger.Info("course duplicated", zap.String("source_id", id), zap.String("course_id", clone.ID))
	return &clone, nil
}

// BulkUpdate applies one change to many courses. Admin only.
func (s *CourseService) BulkUpdate(ctx context.Context, claims *models.JWTClaims, req models.BulkCourseUpdateRequest) error {
	if claims.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can bulk update courses")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk update payload")
	}

	fields := map[string]interface{}{}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.Visible != nil {
		fields["visible"] = *req.Visible
	}
	if req.CategoryID != nil {
		fields["category_id"] = *req.CategoryID
	}
	if len(fields) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	if err := s.repo.BulkUpdate(ctx, req.CourseIDs, fields); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk update courses")
	}
	s.invalidateCatalog(ctx)
	return nil
}

// Stats returns management counters after the edit-level gate.
func (s *CourseService) Stats(ctx context.Context, claims *models.JWTClaims, id string) (*models.CourseStats, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if claims.Role != models.RoleAdmin {
		if err := s.access.CanView(ctx, claims, course); err != nil {
			return nil, err
		}
	}
	stats, err := s.repo.Stats(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course stats")
	}
	return stats, nil
}

func (s *CourseService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "catalog:*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}

// cacheableCatalogRequest is true only for the first unfiltered catalog page
// of a student with no enrollments, so the shared cache entry never leaks
// personal course lists.
func (s *CourseService) cacheableCatalogRequest(filter models.CourseFilter) bool {
	return len(filter.EnrolledCourseIDs) == 0 &&
		filter.CategoryID == "" && filter.Search == "" && len(filter.Tags) == 0 &&
		filter.CreatedBy == "" && filter.Skip == 0
}

func isStatusOnlyUpdate(req models.UpdateCourseRequest) bool {
	return req.Status != nil &&
		req.Fullname == nil && req.Shortname == nil && req.CategoryID == nil &&
		req.Summary == nil && req.CoverImage == nil && req.Tags == nil &&
		req.Language == nil && req.Format == nil && req.StartDate == nil &&
		req.EndDate == nil && req.Visible == nil && req.Completion == nil &&
		req.Gradebook == nil && req.AI == nil && req.Files == nil
}

// buildInitialSections returns the introduction block plus numSections titled
// blocks matching the course format.
func buildInitialSections(format models.CourseFormat, numSections int) []models.CourseSection {
	sections := []models.CourseSection{{Title: "Introducción", Position: 0, Visible: true}}
	for i := 1; i <= numSections; i++ {
		title := fmt.Sprintf("Tema %d", i)
		if format == models.FormatWeeks {
			title = fmt.Sprintf("Semana %d", i)
		}
		sections = append(sections, models.CourseSection{Title: title, Position: i, Visible: true})
	}
	return sections
}
