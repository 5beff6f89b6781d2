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

type categoryRepository interface {
	ListByParent(ctx context.Context, parentID *string, visibleOnly bool) ([]models.CourseCategory, error)
	ListAll(ctx context.Context) ([]models.CourseCategory, error)
	FindByID(ctx context.Context, id string) (*models.CourseCategory, error)
	Create(ctx context.Context, category *models.CourseCategory) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	CountChildren(ctx context.Context, id string) (int, error)
}

type categoryCourseRepository interface {
	CountByCategory(ctx context.Context, categoryID string) (int, error)
}

// CategoryService provides category management use cases.
type CategoryService struct {
	repo      categoryRepository
	courses   categoryCourseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCategoryService constructs a CategoryService instance.
func NewCategoryService(repo categoryRepository, courses categoryCourseRepository, validate *validator.Validate, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CategoryService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns categories under a parent. Admins see hidden ones too.
func (s *CategoryService) List(ctx context.Context, parentID *string, includeHidden bool) ([]models.CourseCategory, error) {
	categories, err := s.repo.ListByParent(ctx, parentID, !includeHidden)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	return categories, nil
}

// Tree returns the visible category hierarchy.
func (s *CategoryService) Tree(ctx context.Context) ([]*models.CategoryNode, error) {
	categories, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load categories")
	}
	return models.BuildCategoryTree(categories), nil
}

// Get returns one category by id.
func (s *CategoryService) Get(ctx context.Context, id string) (*models.CourseCategory, error) {
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	return category, nil
}

// Create persists a new category, validating the parent exists.
func (s *CategoryService) Create(ctx context.Context, req models.CreateCategoryRequest) (*models.CourseCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	if req.ParentID != nil {
		if _, err := s.Get(ctx, *req.ParentID); err != nil {
			return nil, err
		}
	}

	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}
	category := &models.CourseCategory{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		Position:    req.Position,
		Visible:     visible,
	}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	return category, nil
}

// Update applies a partial update to a category.
func (s *CategoryService) Update(ctx context.Context, id string, req models.UpdateCategoryRequest) (*models.CourseCategory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.ParentID != nil {
		if *req.ParentID == id {
			return nil, appErrors.Clone(appErrors.ErrValidation, "category cannot be its own parent")
		}
		if _, err := s.Get(ctx, *req.ParentID); err != nil {
			return nil, err
		}
		fields["parent_id"] = *req.ParentID
	}
	if req.Position != nil {
		fields["position"] = *req.Position
	}
	if req.Visible != nil {
		fields["visible"] = *req.Visible
	}

	if len(fields) > 0 {
		if err := s.repo.Update(ctx, id, fields); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update category")
		}
	}
	return s.Get(ctx, id)
}

// Delete removes an empty category. Categories holding courses or
// subcategories cannot be deleted.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	courseCount, err := s.courses.CountByCategory(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count category courses")
	}
	if courseCount > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "category still contains courses")
	}

	childCount, err := s.repo.CountChildren(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count subcategories")
	}
	if childCount > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "category still contains subcategories")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}
	return nil
}
