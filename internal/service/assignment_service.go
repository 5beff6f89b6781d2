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

type assignmentRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	CreateSubmission(ctx context.Context, submission *models.Submission) error
	FindSubmission(ctx context.Context, id string) (*models.Submission, error)
	ListSubmissions(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
	CountSubmissions(ctx context.Context, assignmentID, userID string) (int, error)
	GradeSubmission(ctx context.Context, id string, grade float64, feedback *string, gradedBy string) error
}

type submissionEnrollmentRepository interface {
	FindByCourseAndUser(ctx context.Context, courseID, userID string) (*models.Enrollment, error)
}

// AssignmentService provides assignment and submission use cases.
type AssignmentService struct {
	repo        assignmentRepository
	grades      attemptGradeRepository
	enrollments submissionEnrollmentRepository
	courses     gateCourseRepository
	access      courseAccessChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs an AssignmentService instance.
func NewAssignmentService(repo assignmentRepository, grades attemptGradeRepository, enrollments submissionEnrollmentRepository, courses gateCourseRepository, access courseAccessChecker, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{repo: repo, grades: grades, enrollments: enrollments, courses: courses, access: access, validator: validate, logger: logger}
}

// List returns a course's assignments after the view gate.
func (s *AssignmentService) List(ctx context.Context, claims *models.JWTClaims, courseID string) ([]models.Assignment, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// Get returns one assignment after the view gate.
func (s *AssignmentService) Get(ctx context.Context, claims *models.JWTClaims, assignmentID string) (*models.Assignment, error) {
	assignment, course, err := s.loadAssignmentAndCourse(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	return assignment, nil
}

// Create persists a new assignment.
func (s *AssignmentService) Create(ctx context.Context, claims *models.JWTClaims, courseID string, req models.CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	maxSubmissions := req.MaxSubmissions
	if maxSubmissions == 0 {
		maxSubmissions = 1
	}
	maxGrade := req.MaxGrade
	if maxGrade == 0 {
		maxGrade = 100
	}
	assignment := &models.Assignment{
		CourseID:       courseID,
		ItemID:         req.ItemID,
		Title:          req.Title,
		Instructions:   req.Instructions,
		DueDate:        req.DueDate,
		MaxSubmissions: maxSubmissions,
		MaxGrade:       maxGrade,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	return assignment, nil
}

// Update applies a partial update to an assignment.
func (s *AssignmentService) Update(ctx context.Context, claims *models.JWTClaims, assignmentID string, req models.UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment update payload")
	}
	_, course, err := s.loadAssignmentAndCourse(ctx, assignmentID)
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
	if req.Instructions != nil {
		fields["instructions"] = *req.Instructions
	}
	if req.DueDate != nil {
		fields["due_date"] = *req.DueDate
	}
	if req.MaxSubmissions != nil {
		fields["max_submissions"] = *req.MaxSubmissions
	}
	if req.MaxGrade != nil {
		fields["max_grade"] = *req.MaxGrade
	}
	if len(fields) > 0 {
		if err := s.repo.Update(ctx, assignmentID, fields); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
		}
	}
	return s.repo.FindByID(ctx, assignmentID)
}

// Delete removes an assignment.
func (s *AssignmentService) Delete(ctx context.Context, claims *models.JWTClaims, assignmentID string) error {
	_, course, err := s.loadAssignmentAndCourse(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, assignmentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}

// Submit records a student delivery. The submission cap and the enrollment
// are checked before anything is stored.
func (s *AssignmentService) Submit(ctx context.Context, claims *models.JWTClaims, assignmentID string, req models.SubmitAssignmentRequest) (*models.Submission, error) {
	if req.Content == nil && req.FileURL == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission needs content or a file")
	}

	assignment, course, err := s.loadAssignmentAndCourse(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}

	enrollment, err := s.enrollments.FindByCourseAndUser(ctx, course.ID, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment is not active")
	}

	count, err := s.repo.CountSubmissions(ctx, assignmentID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
	}
	if assignment.MaxSubmissions > 0 && count >= assignment.MaxSubmissions {
		return nil, appErrors.Clone(appErrors.ErrConflict, "maximum submissions reached")
	}

	submission := &models.Submission{
		AssignmentID:     assignmentID,
		UserID:           claims.UserID,
		CourseID:         course.ID,
		SubmissionNumber: count + 1,
		Content:          req.Content,
		FileURL:          req.FileURL,
		Status:           models.SubmissionSubmitted,
	}
	if err := s.repo.CreateSubmission(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// ListSubmissions returns an assignment's submissions. Staff only.
func (s *AssignmentService) ListSubmissions(ctx context.Context, claims *models.JWTClaims, assignmentID string) ([]models.SubmissionDetail, error) {
	_, course, err := s.loadAssignmentAndCourse(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}
	submissions, err := s.repo.ListSubmissions(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// GradeSubmission marks a submission and mirrors the grade onto the linked
// course item when the assignment has one.
func (s *AssignmentService) GradeSubmission(ctx context.Context, claims *models.JWTClaims, submissionID string, req models.GradeSubmissionRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}

	submission, err := s.repo.FindSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	assignment, course, err := s.loadAssignmentAndCourse(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanManage(ctx, claims, course); err != nil {
		return nil, err
	}
	if req.Grade > assignment.MaxGrade {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade exceeds the assignment maximum")
	}

	if err := s.repo.GradeSubmission(ctx, submissionID, req.Grade, req.Feedback, claims.UserID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	if assignment.ItemID != nil {
		if err := s.grades.Upsert(ctx, &models.Grade{
			UserID:   submission.UserID,
			ItemID:   *assignment.ItemID,
			CourseID: course.ID,
			Grade:    req.Grade,
			Feedback: req.Feedback,
			GradedBy: claims.UserID,
		}); err != nil {
			s.logger.Warn("failed to mirror submission grade", zap.Error(err), zap.String("submission_id", submissionID))
		}
	}

	return s.repo.FindSubmission(ctx, submissionID)
}

func (s *AssignmentService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *AssignmentService) loadAssignmentAndCourse(ctx context.Context, assignmentID string) (*models.Assignment, *models.Course, error) {
	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	course, err := s.loadCourse(ctx, assignment.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return assignment, course, nil
}
