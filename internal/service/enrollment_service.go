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

type enrollmentRepository interface {
	ListByCourse(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error)
	CreateMethod(ctx context.Context, method *models.EnrollmentMethod) error
	FindMethodByCode(ctx context.Context, courseID, code string) (*models.EnrollmentMethod, error)
	ListMethods(ctx context.Context, courseID string) ([]models.EnrollmentMethod, error)
	UpdateMethod(ctx context.Context, id string, fields map[string]interface{}) error
}

type enrollmentUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// EnrollmentService provides enrollment management use cases.
type EnrollmentService struct {
	repo      enrollmentRepository
	users     enrollmentUserRepository
	courses   gateCourseRepository
	access    courseAccessChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService instance.
func NewEnrollmentService(repo enrollmentRepository, users enrollmentUserRepository, courses gateCourseRepository, access courseAccessChecker, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{repo: repo, users: users, courses: courses, access: access, validator: validate, logger: logger}
}

// List returns a course's participants. Requires editing rights.
func (s *EnrollmentService) List(ctx context.Context, claims *models.JWTClaims, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, models.Pagination, error) {
	course, err := s.loadCourse(ctx, filter.CourseID)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if err := s.requireManagement(ctx, claims, course); err != nil {
		return nil, models.Pagination{}, err
	}

	enrollments, total, err := s.repo.ListByCourse(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, models.Pagination{Skip: filter.Skip, Limit: filter.Limit, TotalCount: total}, nil
}

// Enroll adds one user to a course. (course, user) is unique.
func (s *EnrollmentService) Enroll(ctx context.Context, claims *models.JWTClaims, courseID string, req models.EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManagement(ctx, claims, course); err != nil {
		return nil, err
	}
	return s.enrollUser(ctx, claims, course, req.UserID, req.Role)
}

// BulkEnroll adds many users with partial-success semantics: users already
// enrolled or missing are skipped and counted, never failing the batch.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, claims *models.JWTClaims, courseID string, req models.BulkEnrollRequest) (*models.BulkEnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManagement(ctx, claims, course); err != nil {
		return nil, err
	}

	result := &models.BulkEnrollResult{}
	for _, userID := range req.UserIDs {
		if _, err := s.enrollUser(ctx, claims, course, userID, req.Role); err != nil {
			result.Skipped++
			s.logger.Debug("bulk enroll skipped user", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		result.Enrolled++
	}
	return result, nil
}

// Update changes role, status or progress on an enrollment.
func (s *EnrollmentService) Update(ctx context.Context, claims *models.JWTClaims, enrollmentID string, req models.UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment update payload")
	}
	_, course, err := s.loadEnrollmentAndCourse(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManagement(ctx, claims, course); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Role != nil {
		fields["role"] = *req.Role
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.ProgressPercentage != nil {
		fields["progress_percentage"] = *req.ProgressPercentage
	}
	if len(fields) > 0 {
		if err := s.repo.Update(ctx, enrollmentID, fields); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
		}
	}
	return s.repo.FindByID(ctx, enrollmentID)
}

// Unenroll removes a user from a course. Grades and attempts survive.
func (s *EnrollmentService) Unenroll(ctx context.Context, claims *models.JWTClaims, enrollmentID string) error {
	_, course, err := s.loadEnrollmentAndCourse(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if err := s.requireManagement(ctx, claims, course); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, enrollmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

// MyCourses returns the actor's enrollments with course display fields.
func (s *EnrollmentService) MyCourses(ctx context.Context, claims *models.JWTClaims) ([]models.EnrollmentWithCourse, error) {
	enrollments, err := s.repo.ListForUser(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// SelfEnroll redeems an enrollment code on a published course.
func (s *EnrollmentService) SelfEnroll(ctx context.Context, claims *models.JWTClaims, courseID string, req models.SelfEnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid self-enrollment payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is not open for enrollment")
	}

	method, err := s.repo.FindMethodByCode(ctx, courseID, req.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid enrollment code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment code")
	}

	return s.enrollUser(ctx, claims, course, claims.UserID, method.Role)
}

// CreateMethod configures a self-enrollment code for a course.
func (s *EnrollmentService) CreateMethod(ctx context.Context, claims *models.JWTClaims, courseID string, req models.CreateEnrollmentMethodRequest) (*models.EnrollmentMethod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment method payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManagement(ctx, claims, course); err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	method := &models.EnrollmentMethod{
		CourseID: courseID,
		Type:     "self",
		Code:     req.Code,
		Role:     req.Role,
		Enabled:  enabled,
	}
	if err := s.repo.CreateMethod(ctx, method); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment method")
	}
	return method, nil
}

// ListMethods returns a course's self-enrollment configuration.
func (s *EnrollmentService) ListMethods(ctx context.Context, claims *models.JWTClaims, courseID string) ([]models.EnrollmentMethod, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManagement(ctx, claims, course); err != nil {
		return nil, err
	}
	methods, err := s.repo.ListMethods(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment methods")
	}
	return methods, nil
}

func (s *EnrollmentService) enrollUser(ctx context.Context, claims *models.JWTClaims, course *models.Course, userID string, role models.EnrollmentRole) (*models.Enrollment, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Status != models.UserStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user account is not active")
	}

	if _, err := s.repo.FindByCourseAndUser(ctx, course.ID, userID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already enrolled")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	enrolledBy := claims.UserID
	enrollment := &models.Enrollment{
		CourseID:   course.ID,
		UserID:     userID,
		Role:       role,
		Status:     models.EnrollmentStatusActive,
		EnrolledBy: &enrolledBy,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// requireManagement allows admins always; everyone else needs teacher-level
// authority over the course. Editors cannot manage membership no matter what
// they are enrolled as.
func (s *EnrollmentService) requireManagement(ctx context.Context, claims *models.JWTClaims, course *models.Course) error {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	if course.Status == models.CourseStatusArchived {
		return appErrors.Clone(appErrors.ErrCourseArchived, "archived courses cannot be modified")
	}
	return s.access.CanManage(ctx, claims, course)
}

func (s *EnrollmentService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) loadEnrollmentAndCourse(ctx context.Context, enrollmentID string) (*models.Enrollment, *models.Course, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	course, err := s.loadCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return enrollment, course, nil
}
