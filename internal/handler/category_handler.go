package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aulalabs/aula-api/internal/models"
	"github.com/aulalabs/aula-api/internal/service"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
	"github.com/aulalabs/aula-api/pkg/response"
)

// CategoryHandler exposes course category endpoints.
type CategoryHandler struct {
	categories *service.CategoryService
}

// NewCategoryHandler constructs CategoryHandler.
func NewCategoryHandler(categories *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// List godoc
// @Summary List course categories
// @Tags Categories
// @Produce json
// @Security BearerAuth
// @Param parent_id query string false "Restrict to children of a category"
// @Param include_hidden query bool false "Include hidden categories"
// @Success 200 {object} response.Envelope
// @Router /course-categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	var parentID *string
	if v := c.Query("parent_id"); v != "" {
		parentID = &v
	}
	includeHidden := c.Query("include_hidden") == "true"

	categories, err := h.categories.List(c.Request.Context(), parentID, includeHidden)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// Tree godoc
// @Summary Course category tree
// @Tags Categories
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /course-categories/tree [get]
func (h *CategoryHandler) Tree(c *gin.Context) {
	tree, err := h.categories.Tree(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tree, nil)
}

// Get godoc
// @Summary Get category detail
// @Tags Categories
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Success 200 {object} response.Envelope
// @Router /course-categories/{id} [get]
func (h *CategoryHandler) Get(c *gin.Context) {
	category, err := h.categories.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// Create godoc
// @Summary Create category
// @Tags Categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Router /course-categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var req models.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	category, err := h.categories.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// Update godoc
// @Summary Update category
// @Tags Categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Param payload body models.UpdateCategoryRequest true "Category payload"
// @Success 200 {object} response.Envelope
// @Router /course-categories/{id} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	var req models.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	category, err := h.categories.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, category, nil)
}

// Delete godoc
// @Summary Delete empty category
// @Tags Categories
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Success 204 "No Content"
// @Router /course-categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	if err := h.categories.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
