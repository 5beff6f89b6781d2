package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type sectionRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseSection, error)
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
	MaxPosition(ctx context.Context, courseID string) (int, error)
	Create(ctx context.Context, section *models.CourseSection) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Move(ctx context.Context, courseID, sectionID string, oldPos, newPos int) error
	DeleteWithItems(ctx context.Context, id string) error
	CountItems(ctx context.Context, id string) (int, error)
}

type gateCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// SectionService provides section management and ordering use cases.
type SectionService struct {
	repo      sectionRepository
	courses   gateCourseRepository
	access    courseAccessChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs a SectionService instance.
func NewSectionService(repo sectionRepository, courses gateCourseRepository, access courseAccessChecker, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SectionService{repo: repo, courses: courses, access: access, validator: validate, logger: logger}
}

// List returns a course's sections in display order after the view gate.
func (s *SectionService) List(ctx context.Context, claims *models.JWTClaims, courseID string) ([]models.CourseSection, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	sections, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, nil
}

// Create adds a section. An omitted position appends after the current tail;
// an explicit position is stored verbatim without shifting siblings.
func (s *SectionService) Create(ctx context.Context, claims *models.JWTClaims, courseID string, req models.CreateSectionRequest) (*models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		max, err := s.repo.MaxPosition(ctx, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve section position")
		}
		position = max + 1
	}

	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	section := &models.CourseSection{
		CourseID: courseID,
		Title:    req.Title,
		Summary:  req.Summary,
		Position: position,
		Visible:  visible,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	return section, nil
}

// Update applies a partial update to a section after the edit gate.
func (s *SectionService) Update(ctx context.Context, claims *models.JWTClaims, sectionID string, req models.UpdateSectionRequest) (*models.CourseSection, error) {
	_, course, err := s.loadSectionAndCourse(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Summary != nil {
		fields["summary"] = *req.Summary
	}
	if req.Visible != nil {
		fields["visible"] = *req.Visible
	}
	if len(fields) > 0 {
		if err := s.repo.Update(ctx, sectionID, fields); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
		}
	}
	return s.repo.FindByID(ctx, sectionID)
}

// Move relocates a section to a new position. The target is clamped to the
// current tail, then siblings between old and new slide one step the other
// way so positions stay dense.
func (s *SectionService) Move(ctx context.Context, claims *models.JWTClaims, sectionID string, req models.MoveSectionRequest) ([]models.CourseSection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	section, course, err := s.loadSectionAndCourse(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	max, err := s.repo.MaxPosition(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve section positions")
	}
	newPos := req.NewPosition
	if newPos > max {
		newPos = max
	}
	if newPos < 0 {
		newPos = 0
	}

	if err := s.repo.Move(ctx, course.ID, sectionID, section.Position, newPos); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move section")
	}

	sections, err := s.repo.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload sections")
	}
	return sections, nil
}

// Delete removes a section. Non-empty sections require force; their items go
// with them. Sibling positions are left untouched, so the order keeps a gap.
func (s *SectionService) Delete(ctx context.Context, claims *models.JWTClaims, sectionID string, force bool) error {
	_, course, err := s.loadSectionAndCourse(ctx, sectionID)
	if err != nil {
		return err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return err
	}

	itemCount, err := s.repo.CountItems(ctx, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count section items")
	}
	if itemCount > 0 && !force {
		return appErrors.Clone(appErrors.ErrConflict, "section contains items; retry with force=true")
	}

	if err := s.repo.DeleteWithItems(ctx, sectionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete section")
	}
	s.logger.Info("section deleted", zap.String("section_id", sectionID), zap.String("course_id", course.ID), zap.Int("items_removed", itemCount))
	return nil
}

func (s *SectionService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *SectionService) loadSectionAndCourse(ctx context.Context, sectionID string) (*models.CourseSection, *models.Course, error) {
	section, err := s.repo.FindByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	course, err := s.loadCourse(ctx, section.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return section, course, nil
}
