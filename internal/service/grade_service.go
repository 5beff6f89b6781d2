package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
	"github.com/aulalabs/aula-api/pkg/export"
)

type gradeRepository interface {
	Upsert(ctx context.Context, grade *models.Grade) error
	ListByCourse(ctx context.Context, courseID string) ([]models.Grade, error)
	ListByCourseAndUser(ctx context.Context, courseID, userID string) ([]models.GradeWithItem, error)
	ListByUser(ctx context.Context, userID string) ([]models.GradeWithItem, error)
}

type gradeItemRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseItem, error)
	ListGradable(ctx context.Context, courseID string) ([]models.CourseItem, error)
}

type gradeEnrollmentRepository interface {
	ListByCourse(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error)
}

// GradeService provides grading and gradebook use cases.
type GradeService struct {
	repo        gradeRepository
	items       gradeItemRepository
	enrollments gradeEnrollmentRepository
	courses     gateCourseRepository
	access      courseAccessChecker
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs a GradeService instance.
func NewGradeService(repo gradeRepository, items gradeItemRepository, enrollments gradeEnrollmentRepository, courses gateCourseRepository, access courseAccessChecker, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GradeService{
		repo:        repo,
		items:       items,
		enrollments: enrollments,
		courses:     courses,
		access:      access,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// SetGrade writes a manual mark. The student must be actively enrolled and
// the item gradable; an existing mark for the same triple is replaced.
func (s *GradeService) SetGrade(ctx context.Context, claims *models.JWTClaims, courseID string, req models.SetGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanManage(ctx, claims, course); err != nil {
		return nil, err
	}

	item, err := s.items.FindByID(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load item")
	}
	if item.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "item belongs to another course")
	}
	if item.ItemType != models.ItemTypeAssignment && item.ItemType != models.ItemTypeQuiz {
		return nil, appErrors.Clone(appErrors.ErrValidation, "item type does not accept grades")
	}

	enrollment, err := s.enrollments.FindByCourseAndUser(ctx, courseID, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not active")
	}

	grade := &models.Grade{
		UserID:   req.UserID,
		ItemID:   req.ItemID,
		CourseID: courseID,
		Grade:    req.Grade,
		Feedback: req.Feedback,
		GradedBy: claims.UserID,
	}
	if err := s.repo.Upsert(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save grade")
	}
	return grade, nil
}

// StudentGrades returns one student's marks in a course. Students may only
// read their own.
func (s *GradeService) StudentGrades(ctx context.Context, claims *models.JWTClaims, courseID, userID string) ([]models.GradeWithItem, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if claims.Role == models.RoleStudent {
		if claims.UserID != userID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only read their own grades")
		}
		if err := s.access.CanView(ctx, claims, course); err != nil {
			return nil, err
		}
	} else if err := s.requireGradebookAccess(ctx, claims, course); err != nil {
		return nil, err
	}

	grades, err := s.repo.ListByCourseAndUser(ctx, courseID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// MyGrades returns the caller's marks across every course.
func (s *GradeService) MyGrades(ctx context.Context, claims *models.JWTClaims) ([]models.GradeWithItem, error) {
	grades, err := s.repo.ListByUser(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// Gradebook assembles the full student x item matrix for a course.
func (s *GradeService) Gradebook(ctx context.Context, claims *models.JWTClaims, courseID string) (*models.Gradebook, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.requireGradebookAccess(ctx, claims, course); err != nil {
		return nil, err
	}

	items, err := s.items.ListGradable(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list gradable items")
	}

	students, _, err := s.enrollments.ListByCourse(ctx, models.EnrollmentFilter{
		CourseID: courseID,
		Role:     models.EnrollRoleStudent,
		Status:   models.EnrollmentStatusActive,
		Limit:    100,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	grades, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	byStudent := make(map[string]map[string]models.Grade)
	for _, g := range grades {
		if byStudent[g.UserID] == nil {
			byStudent[g.UserID] = make(map[string]models.Grade)
		}
		byStudent[g.UserID][g.ItemID] = g
	}

	book := &models.Gradebook{
		CourseID:       courseID,
		CourseFullname: course.Fullname,
		Items:          items,
		Students:       make([]models.GradebookStudent, 0, len(students)),
		Settings:       course.Gradebook,
	}
	for _, student := range students {
		row := models.GradebookStudent{
			UserID:    student.UserID,
			FirstName: student.UserFirstName,
			LastName:  student.UserLastName,
			Email:     student.UserEmail,
			Grades:    make(map[string]models.GradebookCell, len(items)),
			Progress:  student.ProgressPercentage,
		}
		var sum float64
		var graded int
		for _, item := range items {
			cell := models.GradebookCell{}
			if g, ok := byStudent[student.UserID][item.ID]; ok {
				value := g.Grade
				cell.Grade = &value
				cell.Feedback = g.Feedback
				gradedAt := g.GradedAt
				cell.GradedAt = &gradedAt
				sum += value
				graded++
			}
			row.Grades[item.ID] = cell
		}
		if graded > 0 {
			avg := roundTo2(sum / float64(graded))
			row.Average = &avg
		}
		book.Students = append(book.Students, row)
	}
	return book, nil
}

// Export renders the gradebook as csv or pdf bytes plus a content type.
func (s *GradeService) Export(ctx context.Context, claims *models.JWTClaims, courseID, format string) ([]byte, string, error) {
	book, err := s.Gradebook(ctx, claims, courseID)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"Student", "Email"}
	for _, item := range book.Items {
		headers = append(headers, item.Title)
	}
	headers = append(headers, "Average")

	rows := make([]map[string]string, 0, len(book.Students))
	for _, student := range book.Students {
		row := map[string]string{
			"Student": student.FirstName + " " + student.LastName,
			"Email":   student.Email,
		}
		for _, item := range book.Items {
			value := ""
			if cell, ok := student.Grades[item.ID]; ok && cell.Grade != nil {
				value = fmt.Sprintf("%.2f", *cell.Grade)
			}
			row[item.Title] = value
		}
		if student.Average != nil {
			row["Average"] = fmt.Sprintf("%.2f", *student.Average)
		}
		rows = append(rows, row)
	}
	dataset := export.Dataset{Headers: headers, Rows: rows}

	switch strings.ToLower(format) {
	case "csv", "":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(dataset, book.CourseFullname)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// requireGradebookAccess lets admins and teaching staff read the gradebook
// even on archived courses; the archived lock only blocks writes. Editors
// never reach the gradebook.
func (s *GradeService) requireGradebookAccess(ctx context.Context, claims *models.JWTClaims, course *models.Course) error {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	err := s.access.CanManage(ctx, claims, course)
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Code == appErrors.ErrCourseArchived.Code {
		if claims.Role == models.RoleTeacher && course.CreatedBy == claims.UserID {
			return nil
		}
	}
	return err
}

func (s *GradeService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
