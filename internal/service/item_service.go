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

type itemRepository interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.CourseItem, error)
	FindByID(ctx context.Context, id string) (*models.CourseItem, error)
	MaxPosition(ctx context.Context, sectionID string) (int, error)
	Create(ctx context.Context, item *models.CourseItem) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	MoveWithinSection(ctx context.Context, sectionID, itemID string, oldPos, newPos int) error
	MoveToSection(ctx context.Context, itemID, oldSectionID, newSectionID string, oldPos, newPos int) error
	Delete(ctx context.Context, id string) error
}

type itemSectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseSection, error)
}

// ItemService provides item management and ordering use cases.
type ItemService struct {
	repo      itemRepository
	sections  itemSectionRepository
	courses   gateCourseRepository
	access    courseAccessChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewItemService constructs an ItemService instance.
func NewItemService(repo itemRepository, sections itemSectionRepository, courses gateCourseRepository, access courseAccessChecker, validate *validator.Validate, logger *zap.Logger) *ItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ItemService{repo: repo, sections: sections, courses: courses, access: access, validator: validate, logger: logger}
}

// List returns a section's items in display order. Students only see visible
// items; editing roles see everything.
func (s *ItemService) List(ctx context.Context, claims *models.JWTClaims, sectionID string) ([]models.CourseItem, error) {
	_, course, err := s.loadSectionAndCourse(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}

	items, err := s.repo.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list items")
	}

	if claims.Role == models.RoleStudent {
		visible := items[:0]
		for _, item := range items {
			if item.Visible {
				visible = append(visible, item)
			}
		}
		items = visible
	}
	return items, nil
}

// Get returns one item after the view gate.
func (s *ItemService) Get(ctx context.Context, claims *models.JWTClaims, itemID string) (*models.CourseItem, error) {
	item, course, err := s.loadItemAndCourse(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	if claims.Role == models.RoleStudent && !item.Visible {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
	}
	return item, nil
}

// Create adds an item to a section. The content payload is decoded against
// the item type before anything is stored. An omitted position appends.
func (s *ItemService) Create(ctx context.Context, claims *models.JWTClaims, sectionID string, req models.CreateItemRequest) (*models.CourseItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item payload")
	}
	if !models.ValidItemType(req.ItemType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown item type")
	}
	if _, err := models.DecodeItemContent(req.ItemType, req.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item content")
	}

	section, course, err := s.loadSectionAndCourse(ctx, sectionID)
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
		max, err := s.repo.MaxPosition(ctx, sectionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve item position")
		}
		position = max + 1
	}

	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	item := &models.CourseItem{
		SectionID:   sectionID,
		CourseID:    section.CourseID,
		Title:       req.Title,
		ItemType:    req.ItemType,
		Description: req.Description,
		Position:    position,
		Visible:     visible,
		Content:     req.Content,
	}
	if req.Availability != nil {
		item.Availability = *req.Availability
	}
	if req.Completion != nil {
		item.Completion = *req.Completion
	} else {
		item.Completion = models.CompletionRule{Type: "manual"}
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create item")
	}
	return item, nil
}

// Update applies a partial update. The item type is immutable; new content is
// re-validated against the existing type.
func (s *ItemService) Update(ctx context.Context, claims *models.JWTClaims, itemID string, req models.UpdateItemRequest) (*models.CourseItem, error) {
	item, course, err := s.loadItemAndCourse(ctx, itemID)
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
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Visible != nil {
		fields["visible"] = *req.Visible
	}
	if len(req.Content) > 0 {
		if _, err := models.DecodeItemContent(item.ItemType, req.Content); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item content")
		}
		fields["content"] = req.Content
	}
	if req.Availability != nil {
		fields["availability"] = *req.Availability
	}
	if req.Completion != nil {
		fields["completion"] = *req.Completion
	}

	if len(fields) > 0 {
		if err := s.repo.Update(ctx, itemID, fields); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update item")
		}
	}
	return s.repo.FindByID(ctx, itemID)
}

// Move relocates an item within its section, or into another section of the
// same course when target_section_id is set. Cross-course moves are rejected.
func (s *ItemService) Move(ctx context.Context, claims *models.JWTClaims, itemID string, req models.MoveItemRequest) ([]models.CourseItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid move payload")
	}
	item, course, err := s.loadItemAndCourse(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	targetSectionID := item.SectionID
	if req.TargetSectionID != nil && *req.TargetSectionID != item.SectionID {
		target, err := s.sections.FindByID(ctx, *req.TargetSectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "target section not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load target section")
		}
		if target.CourseID != item.CourseID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "target section belongs to another course")
		}
		targetSectionID = target.ID
	}

	max, err := s.repo.MaxPosition(ctx, targetSectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve item positions")
	}
	newPos := req.NewPosition
	if targetSectionID == item.SectionID {
		if newPos > max {
			newPos = max
		}
		if newPos < 0 {
			newPos = 0
		}
		if err := s.repo.MoveWithinSection(ctx, item.SectionID, itemID, item.Position, newPos); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move item")
		}
	} else {
		// Landing past the target's tail appends.
		if newPos > max+1 {
			newPos = max + 1
		}
		if newPos < 0 {
			newPos = 0
		}
		if err := s.repo.MoveToSection(ctx, itemID, item.SectionID, targetSectionID, item.Position, newPos); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move item across sections")
		}
	}

	items, err := s.repo.ListBySection(ctx, targetSectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload items")
	}
	return items, nil
}

// Duplicate copies an item into the same section, appended at the tail.
func (s *ItemService) Duplicate(ctx context.Context, claims *models.JWTClaims, itemID string) (*models.CourseItem, error) {
	item, course, err := s.loadItemAndCourse(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	max, err := s.repo.MaxPosition(ctx, item.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve item position")
	}

	duplicate := &models.CourseItem{
		SectionID:    item.SectionID,
		CourseID:     item.CourseID,
		Title:        item.Title + " (copia)",
		ItemType:     item.ItemType,
		Description:  item.Description,
		Position:     max + 1,
		Visible:      item.Visible,
		Content:      item.Content,
		Availability: item.Availability,
		Completion:   item.Completion,
	}
	if err := s.repo.Create(ctx, duplicate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to duplicate item")
	}
	return duplicate, nil
}

// Delete removes an item. Sibling positions keep their values, so the
// section's order simply has a hole until something moves.
func (s *ItemService) Delete(ctx context.Context, claims *models.JWTClaims, itemID string) error {
	_, course, err := s.loadItemAndCourse(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, itemID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete item")
	}
	return nil
}

func (s *ItemService) loadSectionAndCourse(ctx context.Context, sectionID string) (*models.CourseSection, *models.Course, error) {
	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	course, err := s.courses.FindByID(ctx, section.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return section, course, nil
}

func (s *ItemService) loadItemAndCourse(ctx context.Context, itemID string) (*models.CourseItem, *models.Course, error) {
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	course, err := s.courses.FindByID(ctx, item.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return item, course, nil
}
