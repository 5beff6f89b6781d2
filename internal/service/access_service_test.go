package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type enrollmentLookupStub struct {
	enrollments map[string]*models.Enrollment
}

func (s *enrollmentLookupStub) FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[courseID+"/"+userID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func claimsFor(role models.UserRole, userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected a domain error, got %v", err)
	return appErr.Code
}

func TestCanEditArchivedBeforeRoles(t *testing.T) {
	svc := NewAccessService(&enrollmentLookupStub{}, nil)
	course := &models.Course{ID: "c1", Status: models.CourseStatusArchived, CreatedBy: "t1"}

	// even the admin and the owner get the lifecycle conflict, not a role error
	err := svc.CanEdit(context.Background(), claimsFor(models.RoleAdmin, "a1"), course)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseArchived.Code, errorCode(t, err))

	err = svc.CanEdit(context.Background(), claimsFor(models.RoleTeacher, "t1"), course)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseArchived.Code, errorCode(t, err))
}

func TestCanEditRoleMatrix(t *testing.T) {
	stub := &enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/editor-in": {CourseID: "c1", UserID: "editor-in", Role: models.EnrollRoleEditor, Status: models.EnrollmentStatusActive},
		"c1/t-helper":  {CourseID: "c1", UserID: "t-helper", Role: models.EnrollRoleTeacher, Status: models.EnrollmentStatusActive},
		"c1/ended":     {CourseID: "c1", UserID: "ended", Role: models.EnrollRoleEditor, Status: models.EnrollmentStatusEnded},
	}}
	svc := NewAccessService(stub, nil)
	course := &models.Course{ID: "c1", Status: models.CourseStatusDraft, CreatedBy: "owner"}

	require.NoError(t, svc.CanEdit(context.Background(), claimsFor(models.RoleAdmin, "any"), course))
	require.NoError(t, svc.CanEdit(context.Background(), claimsFor(models.RoleTeacher, "owner"), course))
	require.NoError(t, svc.CanEdit(context.Background(), claimsFor(models.RoleTeacher, "t-helper"), course))
	require.NoError(t, svc.CanEdit(context.Background(), claimsFor(models.RoleEditor, "editor-in"), course))

	err := svc.CanEdit(context.Background(), claimsFor(models.RoleTeacher, "stranger"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	err = svc.CanEdit(context.Background(), claimsFor(models.RoleEditor, "ended"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	err = svc.CanEdit(context.Background(), claimsFor(models.RoleStudent, "editor-in"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	// a teacher helping under an editor-role enrollment is not a course teacher
	err = svc.CanEdit(context.Background(), claimsFor(models.RoleTeacher, "editor-in"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestCanManageTeacherOnly(t *testing.T) {
	stub := &enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/editor-in": {CourseID: "c1", UserID: "editor-in", Role: models.EnrollRoleEditor, Status: models.EnrollmentStatusActive},
		"c1/t-helper":  {CourseID: "c1", UserID: "t-helper", Role: models.EnrollRoleTeacher, Status: models.EnrollmentStatusActive},
	}}
	svc := NewAccessService(stub, nil)
	course := &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true, CreatedBy: "owner"}

	require.NoError(t, svc.CanManage(context.Background(), claimsFor(models.RoleAdmin, "any"), course))
	require.NoError(t, svc.CanManage(context.Background(), claimsFor(models.RoleTeacher, "owner"), course))
	require.NoError(t, svc.CanManage(context.Background(), claimsFor(models.RoleTeacher, "t-helper"), course))

	// an enrolled editor may edit content but never grade or manage membership
	err := svc.CanManage(context.Background(), claimsFor(models.RoleEditor, "editor-in"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	err = svc.CanManage(context.Background(), claimsFor(models.RoleStudent, "editor-in"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	archived := &models.Course{ID: "c1", Status: models.CourseStatusArchived, CreatedBy: "owner"}
	err = svc.CanManage(context.Background(), claimsFor(models.RoleTeacher, "owner"), archived)
	assert.Equal(t, appErrors.ErrCourseArchived.Code, errorCode(t, err))
}

func TestCanViewPublishedOpenToAll(t *testing.T) {
	svc := NewAccessService(&enrollmentLookupStub{}, nil)
	course := &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true, CreatedBy: "owner"}

	require.NoError(t, svc.CanView(context.Background(), claimsFor(models.RoleStudent, "anyone"), course))
}

func TestCanViewHiddenRequiresMembership(t *testing.T) {
	stub := &enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/member": {CourseID: "c1", UserID: "member", Role: models.EnrollRoleStudent, Status: models.EnrollmentStatusActive},
	}}
	svc := NewAccessService(stub, nil)
	course := &models.Course{ID: "c1", Status: models.CourseStatusDraft, Visible: false, CreatedBy: "owner"}

	require.NoError(t, svc.CanView(context.Background(), claimsFor(models.RoleAdmin, "any"), course))
	require.NoError(t, svc.CanView(context.Background(), claimsFor(models.RoleTeacher, "owner"), course))
	require.NoError(t, svc.CanView(context.Background(), claimsFor(models.RoleStudent, "member"), course))

	err := svc.CanView(context.Background(), claimsFor(models.RoleStudent, "stranger"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestCanViewSuspendedEnrollmentRejected(t *testing.T) {
	stub := &enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/paused": {CourseID: "c1", UserID: "paused", Role: models.EnrollRoleStudent, Status: models.EnrollmentStatusSuspended},
	}}
	svc := NewAccessService(stub, nil)
	course := &models.Course{ID: "c1", Status: models.CourseStatusDraft, CreatedBy: "owner"}

	err := svc.CanView(context.Background(), claimsFor(models.RoleStudent, "paused"), course)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}
