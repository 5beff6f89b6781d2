package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type accessEnrollmentRepository interface {
	FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error)
}

// AccessService is the single authority on who may view or edit a course.
// Every content handler routes through it before touching course data.
type AccessService struct {
	enrollments accessEnrollmentRepository
	logger      *zap.Logger
}

// NewAccessService constructs an AccessService instance.
func NewAccessService(enrollments accessEnrollmentRepository, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{enrollments: enrollments, logger: logger}
}

// CanEdit reports whether the actor may modify the course and its content.
// The archived check runs before any role check so callers get the lifecycle
// conflict rather than a misleading permission error.
func (s *AccessService) CanEdit(ctx context.Context, claims *models.JWTClaims, course *models.Course) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}

	if course.Status == models.CourseStatusArchived {
		return appErrors.Clone(appErrors.ErrCourseArchived, "archived courses cannot be edited")
	}

	switch claims.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if course.CreatedBy == claims.UserID {
			return nil
		}
		if s.hasEnrollmentRole(ctx, course.ID, claims.UserID, models.EnrollRoleTeacher) {
			return nil
		}
	case models.RoleEditor:
		if s.hasEnrollmentRole(ctx, course.ID, claims.UserID, models.EnrollRoleEditor) {
			return nil
		}
	}

	return appErrors.Clone(appErrors.ErrForbidden, "no permission to edit this course")
}

// CanManage reports whether the actor holds teacher-level authority over the
// course. Grading and membership management require it; editors never pass,
// regardless of their enrollments.
func (s *AccessService) CanManage(ctx context.Context, claims *models.JWTClaims, course *models.Course) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}

	if course.Status == models.CourseStatusArchived {
		return appErrors.Clone(appErrors.ErrCourseArchived, "archived courses cannot be modified")
	}

	switch claims.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if course.CreatedBy == claims.UserID {
			return nil
		}
		if s.hasEnrollmentRole(ctx, course.ID, claims.UserID, models.EnrollRoleTeacher) {
			return nil
		}
	}

	return appErrors.Clone(appErrors.ErrForbidden, "teacher or admin rights required")
}

// CanView reports whether the actor may read the course. Published, visible
// courses are open to any authenticated user; everything else requires either
// editing rights or an active enrollment.
func (s *AccessService) CanView(ctx context.Context, claims *models.JWTClaims, course *models.Course) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}

	if claims.Role == models.RoleAdmin {
		return nil
	}
	if course.Status == models.CourseStatusPublished && course.Visible {
		return nil
	}
	if claims.Role == models.RoleTeacher && course.CreatedBy == claims.UserID {
		return nil
	}

	enrollment, err := s.enrollments.FindByCourseAndUser(ctx, course.ID, claims.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("enrollment lookup failed during access check", zap.Error(err))
		}
		return appErrors.Clone(appErrors.ErrForbidden, "no permission to view this course")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.Clone(appErrors.ErrForbidden, "enrollment is not active")
	}
	return nil
}

func (s *AccessService) hasEnrollmentRole(ctx context.Context, courseID, userID string, role models.EnrollmentRole) bool {
	enrollment, err := s.enrollments.FindByCourseAndUser(ctx, courseID, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("enrollment lookup failed during access check", zap.Error(err))
		}
		return false
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return false
	}
	return enrollment.Role == role
}
