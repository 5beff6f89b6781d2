package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type gradeRepoStub struct {
	grades   []models.Grade
	upserted *models.Grade
}

func (s *gradeRepoStub) Upsert(ctx context.Context, grade *models.Grade) error {
	s.upserted = grade
	return nil
}

func (s *gradeRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.Grade, error) {
	return s.grades, nil
}

func (s *gradeRepoStub) ListByCourseAndUser(ctx context.Context, courseID, userID string) ([]models.GradeWithItem, error) {
	return nil, nil
}

func (s *gradeRepoStub) ListByUser(ctx context.Context, userID string) ([]models.GradeWithItem, error) {
	var out []models.GradeWithItem
	for _, g := range s.grades {
		if g.UserID == userID {
			out = append(out, models.GradeWithItem{Grade: g})
		}
	}
	return out, nil
}

type gradeItemRepoStub struct {
	items    map[string]*models.CourseItem
	gradable []models.CourseItem
}

func (s *gradeItemRepoStub) FindByID(ctx context.Context, id string) (*models.CourseItem, error) {
	if item, ok := s.items[id]; ok {
		return item, nil
	}
	return nil, sql.ErrNoRows
}

func (s *gradeItemRepoStub) ListGradable(ctx context.Context, courseID string) ([]models.CourseItem, error) {
	return s.gradable, nil
}

type gradeEnrollmentRepoStub struct {
	students    []models.EnrollmentDetail
	enrollments map[string]*models.Enrollment
}

func (s *gradeEnrollmentRepoStub) ListByCourse(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return s.students, len(s.students), nil
}

func (s *gradeEnrollmentRepoStub) FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error) {
	if e, ok := s.enrollments[courseID+"/"+userID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func gradeFixture() (*gradeRepoStub, *gradeItemRepoStub, *gradeEnrollmentRepoStub, *GradeService) {
	repo := &gradeRepoStub{}
	items := &gradeItemRepoStub{
		items: map[string]*models.CourseItem{
			"asg":  {ID: "asg", CourseID: "c1", Title: "Ensayo", ItemType: models.ItemTypeAssignment},
			"page": {ID: "page", CourseID: "c1", Title: "Apuntes", ItemType: models.ItemTypePage},
			"ext":  {ID: "ext", CourseID: "other", ItemType: models.ItemTypeAssignment},
		},
	}
	enrollments := &gradeEnrollmentRepoStub{
		enrollments: map[string]*models.Enrollment{
			"c1/stu1": {ID: "e1", CourseID: "c1", UserID: "stu1", Status: models.EnrollmentStatusActive},
			"c1/gone": {ID: "e2", CourseID: "c1", UserID: "gone", Status: models.EnrollmentStatusEnded},
		},
	}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Fullname: "Historia", Status: models.CourseStatusPublished, CreatedBy: "owner"}}
	svc := NewGradeService(repo, items, enrollments, courses, openAccess{}, nil, nil)
	return repo, items, enrollments, svc
}

func TestMyGradesReturnsOnlyCallerRows(t *testing.T) {
	repo, _, _, svc := gradeFixture()
	repo.grades = []models.Grade{
		{ID: "g1", UserID: "stu1", ItemID: "asg", CourseID: "c1", Grade: 80},
		{ID: "g2", UserID: "stu2", ItemID: "asg", CourseID: "c1", Grade: 90},
	}

	grades, err := svc.MyGrades(context.Background(), claimsFor(models.RoleStudent, "stu1"))
	require.NoError(t, err)
	require.Len(t, grades, 1)
	assert.Equal(t, "g1", grades[0].ID)
}

func TestSetGradeHappyPath(t *testing.T) {
	repo, _, _, svc := gradeFixture()

	grade, err := svc.SetGrade(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.SetGradeRequest{
		UserID: "stu1",
		ItemID: "asg",
		Grade:  87.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 87.5, grade.Grade)
	assert.Equal(t, "owner", grade.GradedBy)
	assert.Same(t, grade, repo.upserted)
}

func TestSetGradeRejectsNonGradableItem(t *testing.T) {
	_, _, _, svc := gradeFixture()

	_, err := svc.SetGrade(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.SetGradeRequest{
		UserID: "stu1",
		ItemID: "page",
		Grade:  50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestSetGradeRejectsForeignItem(t *testing.T) {
	_, _, _, svc := gradeFixture()

	_, err := svc.SetGrade(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.SetGradeRequest{
		UserID: "stu1",
		ItemID: "ext",
		Grade:  50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestSetGradeRequiresActiveEnrollment(t *testing.T) {
	_, _, _, svc := gradeFixture()

	_, err := svc.SetGrade(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.SetGradeRequest{
		UserID: "ghost",
		ItemID: "asg",
		Grade:  50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	_, err = svc.SetGrade(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", models.SetGradeRequest{
		UserID: "gone",
		ItemID: "asg",
		Grade:  50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestGradingDeniedForEnrolledEditor(t *testing.T) {
	repo := &gradeRepoStub{}
	items := &gradeItemRepoStub{
		items: map[string]*models.CourseItem{
			"asg": {ID: "asg", CourseID: "c1", Title: "Ensayo", ItemType: models.ItemTypeAssignment},
		},
	}
	enrollments := &gradeEnrollmentRepoStub{
		enrollments: map[string]*models.Enrollment{
			"c1/stu1": {ID: "e1", CourseID: "c1", UserID: "stu1", Status: models.EnrollmentStatusActive},
		},
	}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true, CreatedBy: "owner"}}
	access := NewAccessService(&enrollmentLookupStub{enrollments: map[string]*models.Enrollment{
		"c1/ed1": {CourseID: "c1", UserID: "ed1", Role: models.EnrollRoleEditor, Status: models.EnrollmentStatusActive},
	}}, nil)
	svc := NewGradeService(repo, items, enrollments, courses, access, nil, nil)

	// the editor enrollment grants content editing, never grading
	_, err := svc.SetGrade(context.Background(), claimsFor(models.RoleEditor, "ed1"), "c1", models.SetGradeRequest{
		UserID: "stu1",
		ItemID: "asg",
		Grade:  95,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
	assert.Nil(t, repo.upserted)

	_, err = svc.Gradebook(context.Background(), claimsFor(models.RoleEditor, "ed1"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	_, _, err = svc.Export(context.Background(), claimsFor(models.RoleEditor, "ed1"), "c1", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestStudentGradesOwnOnly(t *testing.T) {
	_, _, _, svc := gradeFixture()

	_, err := svc.StudentGrades(context.Background(), claimsFor(models.RoleStudent, "stu1"), "c1", "stu2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	_, err = svc.StudentGrades(context.Background(), claimsFor(models.RoleStudent, "stu1"), "c1", "stu1")
	require.NoError(t, err)
}

func TestGradebookAveragesGradedItemsOnly(t *testing.T) {
	repo, items, enrollments, svc := gradeFixture()
	items.gradable = []models.CourseItem{
		{ID: "asg", CourseID: "c1", Title: "Ensayo", ItemType: models.ItemTypeAssignment},
		{ID: "qz", CourseID: "c1", Title: "Parcial", ItemType: models.ItemTypeQuiz},
	}
	enrollments.students = []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{UserID: "stu1"}, UserFirstName: "Ana", UserLastName: "García", UserEmail: "ana@example.com"},
		{Enrollment: models.Enrollment{UserID: "stu2"}, UserFirstName: "Luis", UserLastName: "Pérez", UserEmail: "luis@example.com"},
	}
	repo.grades = []models.Grade{
		{UserID: "stu1", ItemID: "asg", CourseID: "c1", Grade: 80, GradedAt: time.Now()},
		{UserID: "stu1", ItemID: "qz", CourseID: "c1", Grade: 65, GradedAt: time.Now()},
		{UserID: "stu2", ItemID: "asg", CourseID: "c1", Grade: 90.5, GradedAt: time.Now()},
	}

	book, err := svc.Gradebook(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1")
	require.NoError(t, err)
	require.Len(t, book.Students, 2)

	ana := book.Students[0]
	require.NotNil(t, ana.Average)
	assert.Equal(t, 72.5, *ana.Average)

	// ungraded cells stay empty and do not drag the average down
	luis := book.Students[1]
	require.NotNil(t, luis.Average)
	assert.Equal(t, 90.5, *luis.Average)
	assert.Nil(t, luis.Grades["qz"].Grade)
}

func TestGradebookReadableOnArchivedByOwner(t *testing.T) {
	repo := &gradeRepoStub{}
	items := &gradeItemRepoStub{}
	enrollments := &gradeEnrollmentRepoStub{}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: models.CourseStatusArchived, CreatedBy: "owner"}}
	access := NewAccessService(&enrollmentLookupStub{}, nil)
	svc := NewGradeService(repo, items, enrollments, courses, access, nil, nil)

	_, err := svc.Gradebook(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1")
	require.NoError(t, err)

	_, err = svc.Gradebook(context.Background(), claimsFor(models.RoleAdmin, "a1"), "c1")
	require.NoError(t, err)

	_, err = svc.Gradebook(context.Background(), claimsFor(models.RoleTeacher, "other"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCourseArchived.Code, errorCode(t, err))
}

func TestExportCSVListsStudents(t *testing.T) {
	repo, items, enrollments, svc := gradeFixture()
	items.gradable = []models.CourseItem{
		{ID: "asg", CourseID: "c1", Title: "Ensayo", ItemType: models.ItemTypeAssignment},
	}
	enrollments.students = []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{UserID: "stu1"}, UserFirstName: "Ana", UserLastName: "García", UserEmail: "ana@example.com"},
	}
	repo.grades = []models.Grade{
		{UserID: "stu1", ItemID: "asg", CourseID: "c1", Grade: 80, GradedAt: time.Now()},
	}

	payload, contentType, err := svc.Export(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	body := string(payload)
	assert.True(t, strings.Contains(body, "Ensayo"))
	assert.True(t, strings.Contains(body, "Ana García"))
	assert.True(t, strings.Contains(body, "80.00"))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	_, _, _, svc := gradeFixture()

	_, _, err := svc.Export(context.Background(), claimsFor(models.RoleTeacher, "owner"), "c1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestRoundTo2(t *testing.T) {
	assert.Equal(t, 66.67, roundTo2(200.0/3.0))
	assert.Equal(t, 50.0, roundTo2(50))
	assert.Equal(t, 33.33, roundTo2(100.0/3.0))
}
