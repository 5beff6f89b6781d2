package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type questionRepository interface {
	ListByCourse(ctx context.Context, courseID, categoryID string, questionType models.QuestionType) ([]models.Question, error)
	FindByID(ctx context.Context, id string) (*models.Question, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Question, error)
	Create(ctx context.Context, question *models.Question) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	ListCategories(ctx context.Context, courseID string) ([]models.QuestionCategory, error)
	CreateCategory(ctx context.Context, category *models.QuestionCategory) error
}

type quizRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Quiz, error)
	FindByID(ctx context.Context, id string) (*models.Quiz, error)
	Create(ctx context.Context, quiz *models.Quiz) error
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	FindAttempt(ctx context.Context, id string) (*models.QuizAttempt, error)
	ListAttempts(ctx context.Context, quizID, userID string) ([]models.QuizAttempt, error)
	CountAttempts(ctx context.Context, quizID, userID string) (int, error)
	FinishAttempt(ctx context.Context, id string, answers models.AttemptAnswers, score, earned, total float64) error
}

type attemptGradeRepository interface {
	Upsert(ctx context.Context, grade *models.Grade) error
}

// QuizService provides question bank, quiz and attempt use cases.
type QuizService struct {
	questions questionRepository
	quizzes   quizRepository
	grades    attemptGradeRepository
	courses   gateCourseRepository
	access    courseAccessChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuizService constructs a QuizService instance.
func NewQuizService(questions questionRepository, quizzes quizRepository, grades attemptGradeRepository, courses gateCourseRepository, access courseAccessChecker, validate *validator.Validate, logger *zap.Logger) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &QuizService{questions: questions, quizzes: quizzes, grades: grades, courses: courses, access: access, validator: validate, logger: logger}
}

// ListQuestions returns the course question bank. Staff only.
func (s *QuizService) ListQuestions(ctx context.Context, claims *models.JWTClaims, courseID, categoryID string, questionType models.QuestionType) ([]models.Question, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByCourse(ctx, courseID, categoryID, questionType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	return questions, nil
}

// CreateQuestion adds a question-bank entry. Multiple choice questions need
// at least two options and exactly one marked correct; true/false ones need
// a correct answer of "true" or "false".
func (s *QuizService) CreateQuestion(ctx context.Context, claims *models.JWTClaims, courseID string, req models.CreateQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}
	if err := validateQuestionShape(req.Type, req.Options, req.CorrectAnswer); err != nil {
		return nil, err
	}

	question := &models.Question{
		CourseID:      courseID,
		CategoryID:    req.CategoryID,
		Type:          req.Type,
		QuestionText:  req.QuestionText,
		Points:        req.Points,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Feedback:      req.Feedback,
		CreatedBy:     claims.UserID,
	}
	if err := s.questions.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	return question, nil
}

// UpdateQuestion applies a partial update to a question-bank entry.
func (s *QuizService) UpdateQuestion(ctx context.Context, claims *models.JWTClaims, questionID string, req models.UpdateQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question update payload")
	}
	question, course, err := s.loadQuestionAndCourse(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	if req.Options != nil || req.CorrectAnswer != nil {
		options := question.Options
		if req.Options != nil {
			options = req.Options
		}
		answer := question.CorrectAnswer
		if req.CorrectAnswer != nil {
			answer = req.CorrectAnswer
		}
		if err := validateQuestionShape(question.Type, options, answer); err != nil {
			return nil, err
		}
	}

	fields := map[string]interface{}{}
	if req.CategoryID != nil {
		fields["category_id"] = *req.CategoryID
	}
	if req.QuestionText != nil {
		fields["question_text"] = *req.QuestionText
	}
	if req.Points != nil {
		fields["points"] = *req.Points
	}
	if req.Options != nil {
		fields["options"] = req.Options
	}
	if req.CorrectAnswer != nil {
		fields["correct_answer"] = *req.CorrectAnswer
	}
	if req.Feedback != nil {
		fields["feedback"] = *req.Feedback
	}
	if len(fields) > 0 {
		if err := s.questions.Update(ctx, questionID, fields); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update question")
		}
	}
	return s.questions.FindByID(ctx, questionID)
}

// DeleteQuestion removes a question-bank entry.
func (s *QuizService) DeleteQuestion(ctx context.Context, claims *models.JWTClaims, questionID string) error {
	_, course, err := s.loadQuestionAndCourse(ctx, questionID)
	if err != nil {
		return err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return err
	}
	if err := s.questions.Delete(ctx, questionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete question")
	}
	return nil
}

// ListQuestionCategories returns the course's question groupings.
func (s *QuizService) ListQuestionCategories(ctx context.Context, claims *models.JWTClaims, courseID string) ([]models.QuestionCategory, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}
	categories, err := s.questions.ListCategories(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list question categories")
	}
	return categories, nil
}

// CreateQuestionCategory adds a question grouping.
func (s *QuizService) CreateQuestionCategory(ctx context.Context, claims *models.JWTClaims, courseID string, req models.CreateQuestionCategoryRequest) (*models.QuestionCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}
	category := &models.QuestionCategory{
		CourseID:    courseID,
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
	}
	if err := s.questions.CreateCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question category")
	}
	return category, nil
}

// ListQuizzes returns a course's quizzes after the view gate.
func (s *QuizService) ListQuizzes(ctx context.Context, claims *models.JWTClaims, courseID string) ([]models.Quiz, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	quizzes, err := s.quizzes.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quizzes")
	}
	return quizzes, nil
}

// GetQuiz returns a quiz with its questions resolved in quiz order. Students
// receive the questions with correct answers stripped.
func (s *QuizService) GetQuiz(ctx context.Context, claims *models.JWTClaims, quizID string) (*models.QuizDetail, error) {
	quiz, course, err := s.loadQuizAndCourse(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}

	questions, err := s.resolveQuestions(ctx, quiz)
	if err != nil {
		return nil, err
	}
	if claims.Role == models.RoleStudent {
		for i := range questions {
			questions[i] = sanitizeQuestion(questions[i])
		}
	}
	return &models.QuizDetail{Quiz: *quiz, Questions: questions}, nil
}

// CreateQuiz builds a quiz from question-bank entries of the same course.
func (s *QuizService) CreateQuiz(ctx context.Context, claims *models.JWTClaims, courseID string, req models.CreateQuizRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz payload")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return nil, err
	}

	questions, err := s.questions.FindByIDs(ctx, req.QuestionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	if len(questions) != len(req.QuestionIDs) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "one or more questions do not exist")
	}
	for _, q := range questions {
		if q.CourseID != courseID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "questions must belong to the same course")
		}
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	quiz := &models.Quiz{
		CourseID:     courseID,
		ItemID:       req.ItemID,
		Title:        req.Title,
		Description:  req.Description,
		QuestionIDs:  models.StringList(req.QuestionIDs),
		MaxAttempts:  maxAttempts,
		TimeLimit:    req.TimeLimit,
		PassingGrade: req.PassingGrade,
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quiz")
	}
	return quiz, nil
}

// UpdateQuiz applies a partial update to a quiz.
func (s *QuizService) UpdateQuiz(ctx context.Context, claims *models.JWTClaims, quizID string, req models.UpdateQuizRequest) (*models.Quiz, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz update payload")
	}
	quiz, course, err := s.loadQuizAndCourse(ctx, quizID)
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
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.QuestionIDs != nil {
		questions, err := s.questions.FindByIDs(ctx, req.QuestionIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
		}
		if len(questions) != len(req.QuestionIDs) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "one or more questions do not exist")
		}
		for _, q := range questions {
			if q.CourseID != quiz.CourseID {
				return nil, appErrors.Clone(appErrors.ErrValidation, "questions must belong to the same course")
			}
		}
		fields["question_ids"] = models.StringList(req.QuestionIDs)
	}
	if req.MaxAttempts != nil {
		fields["max_attempts"] = *req.MaxAttempts
	}
	if req.TimeLimit != nil {
		fields["time_limit_minutes"] = *req.TimeLimit
	}
	if req.PassingGrade != nil {
		fields["passing_grade"] = *req.PassingGrade
	}
	if len(fields) > 0 {
		if err := s.quizzes.Update(ctx, quizID, fields); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update quiz")
		}
	}
	return s.quizzes.FindByID(ctx, quizID)
}

// DeleteQuiz removes a quiz. Past attempts keep their data.
func (s *QuizService) DeleteQuiz(ctx context.Context, claims *models.JWTClaims, quizID string) error {
	_, course, err := s.loadQuizAndCourse(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.access.CanEdit(ctx, claims, course); err != nil {
		return err
	}
	if err := s.quizzes.Delete(ctx, quizID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete quiz")
	}
	return nil
}

// StartAttempt opens a new attempt for the actor. A still-open attempt is
// returned instead of opening a second one; the attempt cap is enforced here.
func (s *QuizService) StartAttempt(ctx context.Context, claims *models.JWTClaims, quizID string) (*models.QuizAttempt, error) {
	quiz, course, err := s.loadQuizAndCourse(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}

	attempts, err := s.quizzes.ListAttempts(ctx, quizID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempts")
	}
	for _, attempt := range attempts {
		if attempt.Status == models.AttemptInProgress {
			open := attempt
			return &open, nil
		}
	}
	if quiz.MaxAttempts > 0 && len(attempts) >= quiz.MaxAttempts {
		return nil, appErrors.Clone(appErrors.ErrConflict, "maximum attempts reached")
	}

	attempt := &models.QuizAttempt{
		QuizID:        quizID,
		UserID:        claims.UserID,
		CourseID:      quiz.CourseID,
		AttemptNumber: len(attempts) + 1,
		Status:        models.AttemptInProgress,
		Answers:       models.AttemptAnswers{},
	}
	if err := s.quizzes.CreateAttempt(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attempt")
	}
	return attempt, nil
}

// SubmitAttempt scores the answers and completes the attempt. The score is
// earned over total points scaled to 100 and rounded to two decimals; only
// multiple choice and true/false questions auto-grade, the rest earn zero
// until marked by hand.
func (s *QuizService) SubmitAttempt(ctx context.Context, claims *models.JWTClaims, attemptID string, req models.SubmitAttemptRequest) (*models.AttemptResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attempt payload")
	}

	attempt, err := s.quizzes.FindAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attempt not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt")
	}
	if attempt.UserID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attempt belongs to another user")
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attempt is already completed")
	}

	quiz, err := s.quizzes.FindByID(ctx, attempt.QuizID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	questions, err := s.resolveQuestions(ctx, quiz)
	if err != nil {
		return nil, err
	}

	earned, total := scoreAnswers(questions, req.Answers)
	score := 0.0
	if total > 0 {
		score = roundTo2(earned / total * 100)
	}

	if err := s.quizzes.FinishAttempt(ctx, attemptID, models.AttemptAnswers(req.Answers), score, earned, total); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attempt")
	}

	if quiz.ItemID != nil {
		if err := s.grades.Upsert(ctx, &models.Grade{
			UserID:   claims.UserID,
			ItemID:   *quiz.ItemID,
			CourseID: quiz.CourseID,
			Grade:    score,
			GradedBy: "system",
		}); err != nil {
			s.logger.Warn("failed to record quiz grade", zap.Error(err), zap.String("attempt_id", attemptID))
		}
	}

	return &models.AttemptResult{
		Score:        score,
		EarnedPoints: earned,
		TotalPoints:  total,
		Passed:       score >= quiz.PassingGrade,
	}, nil
}

// ListAttempts returns the actor's attempts at a quiz.
func (s *QuizService) ListAttempts(ctx context.Context, claims *models.JWTClaims, quizID string) ([]models.QuizAttempt, error) {
	_, course, err := s.loadQuizAndCourse(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	attempts, err := s.quizzes.ListAttempts(ctx, quizID, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attempts")
	}
	return attempts, nil
}

func (s *QuizService) resolveQuestions(ctx context.Context, quiz *models.Quiz) ([]models.Question, error) {
	fetched, err := s.questions.FindByIDs(ctx, quiz.QuestionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz questions")
	}
	byID := make(map[string]models.Question, len(fetched))
	for _, q := range fetched {
		byID[q.ID] = q
	}
	ordered := make([]models.Question, 0, len(quiz.QuestionIDs))
	for _, id := range quiz.QuestionIDs {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

func (s *QuizService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *QuizService) loadQuestionAndCourse(ctx context.Context, questionID string) (*models.Question, *models.Course, error) {
	question, err := s.questions.FindByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	course, err := s.loadCourse(ctx, question.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return question, course, nil
}

func (s *QuizService) loadQuizAndCourse(ctx context.Context, quizID string) (*models.Quiz, *models.Course, error) {
	quiz, err := s.quizzes.FindByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quiz")
	}
	course, err := s.loadCourse(ctx, quiz.CourseID)
	if err != nil {
		return nil, nil, err
	}
	return quiz, course, nil
}

// scoreAnswers grades the auto-gradable question types. Multiple choice
// answers carry the chosen option id; true/false answers compare
// case-insensitively against the stored correct answer.
func scoreAnswers(questions []models.Question, answers map[string]string) (earned, total float64) {
	for _, q := range questions {
		total += q.Points
		answer, answered := answers[q.ID]
		if !answered {
			continue
		}
		switch q.Type {
		case models.QuestionMultipleChoice:
			for _, option := range q.Options {
				if option.Correct && option.ID == answer {
					earned += q.Points
					break
				}
			}
		case models.QuestionTrueFalse:
			if q.CorrectAnswer != nil && strings.EqualFold(strings.TrimSpace(answer), *q.CorrectAnswer) {
				earned += q.Points
			}
		}
	}
	return earned, total
}

func sanitizeQuestion(q models.Question) models.Question {
	q.CorrectAnswer = nil
	q.Feedback = nil
	if len(q.Options) > 0 {
		options := make(models.QuestionOptions, len(q.Options))
		for i, option := range q.Options {
			option.Correct = false
			options[i] = option
		}
		q.Options = options
	}
	return q
}

func validateQuestionShape(questionType models.QuestionType, options models.QuestionOptions, correctAnswer *string) error {
	switch questionType {
	case models.QuestionMultipleChoice:
		if len(options) < 2 {
			return appErrors.Clone(appErrors.ErrValidation, "multiple choice questions need at least two options")
		}
		correct := 0
		for _, option := range options {
			if option.Correct {
				correct++
			}
		}
		if correct != 1 {
			return appErrors.Clone(appErrors.ErrValidation, "exactly one option must be marked correct")
		}
	case models.QuestionTrueFalse:
		if correctAnswer == nil {
			return appErrors.Clone(appErrors.ErrValidation, "true/false questions need a correct answer")
		}
		normalized := strings.ToLower(strings.TrimSpace(*correctAnswer))
		if normalized != "true" && normalized != "false" {
			return appErrors.Clone(appErrors.ErrValidation, `correct answer must be "true" or "false"`)
		}
	}
	return nil
}
