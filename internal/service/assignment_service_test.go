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

type assignmentRepoStub struct {
	assignments map[string]*models.Assignment
	submissions map[string]*models.Submission
	count       int

	createdSubmission *models.Submission
	gradedID          string
	gradedValue       float64
	gradedBy          string
}

func (s *assignmentRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range s.assignments {
		if a.CourseID == courseID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *assignmentRepoStub) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := s.assignments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentRepoStub) Create(ctx context.Context, assignment *models.Assignment) error {
	assignment.ID = "a-new"
	return nil
}

func (s *assignmentRepoStub) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

func (s *assignmentRepoStub) Delete(ctx context.Context, id string) error { return nil }

func (s *assignmentRepoStub) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	submission.ID = "sub-new"
	s.createdSubmission = submission
	return nil
}

func (s *assignmentRepoStub) FindSubmission(ctx context.Context, id string) (*models.Submission, error) {
	if sub, ok := s.submissions[id]; ok {
		return sub, nil
	}
	return nil, sql.ErrNoRows
}

func (s *assignmentRepoStub) ListSubmissions(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	return nil, nil
}

func (s *assignmentRepoStub) CountSubmissions(ctx context.Context, assignmentID, userID string) (int, error) {
	return s.count, nil
}

func (s *assignmentRepoStub) GradeSubmission(ctx context.Context, id string, grade float64, feedback *string, gradedBy string) error {
	s.gradedID = id
	s.gradedValue = grade
	s.gradedBy = gradedBy
	return nil
}

func assignmentFixture(access courseAccessChecker, enrollments *enrollmentLookupStub) (*assignmentRepoStub, *gradeUpsertStub, *AssignmentService) {
	itemID := "item-1"
	repo := &assignmentRepoStub{
		assignments: map[string]*models.Assignment{
			"a1": {ID: "a1", CourseID: "c1", ItemID: &itemID, Title: "Ensayo final", MaxSubmissions: 2, MaxGrade: 100},
		},
		submissions: map[string]*models.Submission{
			"sub1": {ID: "sub1", AssignmentID: "a1", UserID: "stu1", CourseID: "c1", SubmissionNumber: 1, Status: models.SubmissionSubmitted},
		},
	}
	grades := &gradeUpsertStub{}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true, CreatedBy: "owner"}}
	svc := NewAssignmentService(repo, grades, enrollments, courses, access, nil, nil)
	return repo, grades, svc
}

func TestGradeSubmissionDeniedForEnrolledEditor(t *testing.T) {
	enrollments := &enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/ed1": {CourseID: "c1", UserID: "ed1", Role: models.EnrollRoleEditor, Status: models.EnrollmentStatusActive},
	}}
	repo, grades, svc := assignmentFixture(NewAccessService(enrollments, nil), enrollments)

	_, err := svc.GradeSubmission(context.Background(), claimsFor(models.RoleEditor, "ed1"), "sub1", models.GradeSubmissionRequest{Grade: 95})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
	assert.Empty(t, repo.gradedID)
	assert.Nil(t, grades.upserted)
}

func TestGradeSubmissionMirrorsItemGrade(t *testing.T) {
	enrollments := &enrollmentLookupStub{}
	repo, grades, svc := assignmentFixture(NewAccessService(enrollments, nil), enrollments)

	_, err := svc.GradeSubmission(context.Background(), claimsFor(models.RoleTeacher, "owner"), "sub1", models.GradeSubmissionRequest{Grade: 85})
	require.NoError(t, err)
	assert.Equal(t, "sub1", repo.gradedID)
	assert.Equal(t, 85.0, repo.gradedValue)
	assert.Equal(t, "owner", repo.gradedBy)

	require.NotNil(t, grades.upserted)
	assert.Equal(t, "item-1", grades.upserted.ItemID)
	assert.Equal(t, "stu1", grades.upserted.UserID)
	assert.Equal(t, "owner", grades.upserted.GradedBy)
}

func TestGradeSubmissionRejectsAboveMax(t *testing.T) {
	enrollments := &enrollmentLookupStub{}
	repo, _, svc := assignmentFixture(NewAccessService(enrollments, nil), enrollments)

	_, err := svc.GradeSubmission(context.Background(), claimsFor(models.RoleTeacher, "owner"), "sub1", models.GradeSubmissionRequest{Grade: 150})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
	assert.Empty(t, repo.gradedID)
}

func TestSubmitEnforcesCap(t *testing.T) {
	enrollments := &enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/stu1": {CourseID: "c1", UserID: "stu1", Role: models.EnrollRoleStudent, Status: models.EnrollmentStatusActive},
	}}
	repo, _, svc := assignmentFixture(openAccess{}, enrollments)
	content := "mi entrega"

	repo.count = 2
	_, err := svc.Submit(context.Background(), claimsFor(models.RoleStudent, "stu1"), "a1", models.SubmitAssignmentRequest{Content: &content})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))

	repo.count = 1
	submission, err := svc.Submit(context.Background(), claimsFor(models.RoleStudent, "stu1"), "a1", models.SubmitAssignmentRequest{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, 2, submission.SubmissionNumber)
	assert.Equal(t, models.SubmissionSubmitted, submission.Status)
}

func TestSubmitRequiresEnrollment(t *testing.T) {
	enrollments := &enrollmentLookupStub{}
	_, _, svc := assignmentFixture(openAccess{}, enrollments)
	content := "sin matrícula"

	_, err := svc.Submit(context.Background(), claimsFor(models.RoleStudent, "stranger"), "a1", models.SubmitAssignmentRequest{Content: &content})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}
