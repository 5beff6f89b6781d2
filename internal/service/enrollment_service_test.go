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

type enrollmentRepoStub struct {
	existing map[string]*models.Enrollment
	methods  map[string]*models.EnrollmentMethod

	created []*models.Enrollment
}

func (s *enrollmentRepoStub) ListByCourse(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (s *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error) {
	if e, ok := s.existing[courseID+"/"+userID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	s.created = append(s.created, enrollment)
	return nil
}

func (s *enrollmentRepoStub) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

func (s *enrollmentRepoStub) Delete(ctx context.Context, id string) error { return nil }

func (s *enrollmentRepoStub) ListForUser(ctx context.Context, userID string) ([]models.EnrollmentWithCourse, error) {
	return nil, nil
}

func (s *enrollmentRepoStub) CreateMethod(ctx context.Context, method *models.EnrollmentMethod) error {
	return nil
}

func (s *enrollmentRepoStub) FindMethodByCode(ctx context.Context, courseID, code string) (*models.EnrollmentMethod, error) {
	if m, ok := s.methods[courseID+"/"+code]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) ListMethods(ctx context.Context, courseID string) ([]models.EnrollmentMethod, error) {
	return nil, nil
}

func (s *enrollmentRepoStub) UpdateMethod(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

type userLookupStub struct {
	users map[string]*models.User
}

func (s *userLookupStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func enrollmentFixture(courseStatus models.CourseStatus) (*enrollmentRepoStub, *EnrollmentService) {
	repo := &enrollmentRepoStub{
		existing: map[string]*models.Enrollment{
			"c1/taken": {ID: "e1", CourseID: "c1", UserID: "taken"},
		},
		methods: map[string]*models.EnrollmentMethod{
			"c1/ABCD": {ID: "m1", CourseID: "c1", Code: "ABCD", Role: models.EnrollRoleStudent, Enabled: true},
		},
	}
	users := &userLookupStub{users: map[string]*models.User{
		"u1":     {ID: "u1", Status: models.UserStatusActive},
		"u2":     {ID: "u2", Status: models.UserStatusActive},
		"taken":  {ID: "taken", Status: models.UserStatusActive},
		"frozen": {ID: "frozen", Status: models.UserStatusSuspended},
	}}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: courseStatus, Visible: true, CreatedBy: "owner"}}
	svc := NewEnrollmentService(repo, users, courses, openAccess{}, nil, nil)
	return repo, svc
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	_, svc := enrollmentFixture(models.CourseStatusPublished)

	_, err := svc.Enroll(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.EnrollRequest{UserID: "taken", Role: models.EnrollRoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestEnrollRejectsInactiveUser(t *testing.T) {
	_, svc := enrollmentFixture(models.CourseStatusPublished)

	_, err := svc.Enroll(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.EnrollRequest{UserID: "frozen", Role: models.EnrollRoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestEnrollRecordsActor(t *testing.T) {
	repo, svc := enrollmentFixture(models.CourseStatusPublished)

	enrollment, err := svc.Enroll(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.EnrollRequest{UserID: "u1", Role: models.EnrollRoleStudent})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.EnrolledBy)
	assert.Equal(t, "owner", *enrollment.EnrolledBy)
	assert.Len(t, repo.created, 1)
}

func TestBulkEnrollPartialSuccess(t *testing.T) {
	repo, svc := enrollmentFixture(models.CourseStatusPublished)

	result, err := svc.BulkEnroll(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.BulkEnrollRequest{
		UserIDs: []string{"u1", "taken", "ghost", "u2", "frozen"},
		Role:    models.EnrollRoleStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enrolled)
	assert.Equal(t, 3, result.Skipped)
	assert.Len(t, repo.created, 2)
}

func TestSelfEnrollRequiresPublishedCourse(t *testing.T) {
	_, svc := enrollmentFixture(models.CourseStatusDraft)

	_, err := svc.SelfEnroll(context.Background(), claimsFor(models.RoleStudent, "u1"), "c1", models.SelfEnrollRequest{Code: "ABCD"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestSelfEnrollBadCodeForbidden(t *testing.T) {
	_, svc := enrollmentFixture(models.CourseStatusPublished)

	_, err := svc.SelfEnroll(context.Background(), claimsFor(models.RoleStudent, "u1"), "c1", models.SelfEnrollRequest{Code: "WRONG"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestSelfEnrollUsesMethodRole(t *testing.T) {
	_, svc := enrollmentFixture(models.CourseStatusPublished)

	enrollment, err := svc.SelfEnroll(context.Background(), claimsFor(models.RoleStudent, "u1"), "c1", models.SelfEnrollRequest{Code: "ABCD"})
	require.NoError(t, err)
	assert.Equal(t, "u1", enrollment.UserID)
	assert.Equal(t, models.EnrollRoleStudent, enrollment.Role)
}

func TestEnrollDeniedForEnrolledEditor(t *testing.T) {
	editorEnrollment := &models.Enrollment{ID: "e9", CourseID: "c1", UserID: "ed1", Role: models.EnrollRoleEditor, Status: models.EnrollmentStatusActive}
	repo := &enrollmentRepoStub{
		existing: map[string]*models.Enrollment{"c1/ed1": editorEnrollment},
	}
	users := &userLookupStub{users: map[string]*models.User{
		"u2": {ID: "u2", Status: models.UserStatusActive},
	}}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true, CreatedBy: "owner"}}
	access := NewAccessService(&enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/ed1": editorEnrollment,
	}}, nil)
	svc := NewEnrollmentService(repo, users, courses, access, nil, nil)

	// an enrolled editor edits content but never manages membership
	_, err := svc.Enroll(context.Background(), claimsFor(models.RoleEditor, "ed1"), "c1", models.EnrollRequest{UserID: "u2", Role: models.EnrollRoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
	assert.Empty(t, repo.created)

	_, _, err = svc.List(context.Background(), claimsFor(models.RoleEditor, "ed1"), models.EnrollmentFilter{CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestEnrollmentManagementBlockedOnArchivedForNonAdmins(t *testing.T) {
	_, svc := enrollmentFixture(models.CourseStatusArchived)

	_, err := svc.Enroll(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.EnrollRequest{UserID: "u1", Role: models.EnrollRoleStudent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseArchived.Code, errorCode(t, err))

	// admins can still manage membership on archived courses
	_, err = svc.Enroll(context.Background(), claimsFor(models.RoleAdmin, "root"), "c1", models.EnrollRequest{UserID: "u1", Role: models.EnrollRoleStudent})
	require.NoError(t, err)
}
