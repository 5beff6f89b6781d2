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

type questionRepoStub struct {
	questions map[string]*models.Question
	created   *models.Question
}

func (s *questionRepoStub) ListByCourse(ctx context.Context, courseID, categoryID string, questionType models.QuestionType) ([]models.Question, error) {
	return nil, nil
}

func (s *questionRepoStub) FindByID(ctx context.Context, id string) (*models.Question, error) {
	if q, ok := s.questions[id]; ok {
		return q, nil
	}
	return nil, sql.ErrNoRows
}

func (s *questionRepoStub) FindByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	out := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (s *questionRepoStub) Create(ctx context.Context, question *models.Question) error {
	s.created = question
	return nil
}

func (s *questionRepoStub) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

func (s *questionRepoStub) Delete(ctx context.Context, id string) error { return nil }

func (s *questionRepoStub) ListCategories(ctx context.Context, courseID string) ([]models.QuestionCategory, error) {
	return nil, nil
}

func (s *questionRepoStub) CreateCategory(ctx context.Context, category *models.QuestionCategory) error {
	return nil
}

type quizRepoStub struct {
	quizzes  map[string]*models.Quiz
	attempts map[string]*models.QuizAttempt
	mine     []models.QuizAttempt

	createdAttempt *models.QuizAttempt
	finished       bool
	finishedScore  float64
	finishedEarned float64
	finishedTotal  float64
}

func (s *quizRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.Quiz, error) {
	return nil, nil
}

func (s *quizRepoStub) FindByID(ctx context.Context, id string) (*models.Quiz, error) {
	if q, ok := s.quizzes[id]; ok {
		return q, nil
	}
	return nil, sql.ErrNoRows
}

func (s *quizRepoStub) Create(ctx context.Context, quiz *models.Quiz) error { return nil }

func (s *quizRepoStub) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

func (s *quizRepoStub) Delete(ctx context.Context, id string) error { return nil }

func (s *quizRepoStub) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	s.createdAttempt = attempt
	return nil
}

func (s *quizRepoStub) FindAttempt(ctx context.Context, id string) (*models.QuizAttempt, error) {
	if a, ok := s.attempts[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (s *quizRepoStub) ListAttempts(ctx context.Context, quizID, userID string) ([]models.QuizAttempt, error) {
	return s.mine, nil
}

func (s *quizRepoStub) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	return len(s.mine), nil
}

func (s *quizRepoStub) FinishAttempt(ctx context.Context, id string, answers models.AttemptAnswers, score, earned, total float64) error {
	s.finished = true
	s.finishedScore = score
	s.finishedEarned = earned
	s.finishedTotal = total
	return nil
}

type gradeUpsertStub struct {
	upserted *models.Grade
}

func (s *gradeUpsertStub) Upsert(ctx context.Context, grade *models.Grade) error {
	s.upserted = grade
	return nil
}

func strPtr(v string) *string { return &v }

func bankFixture() *questionRepoStub {
	return &questionRepoStub{questions: map[string]*models.Question{
		"q-mc": {ID: "q-mc", CourseID: "c1", Type: models.QuestionMultipleChoice, Points: 2, Options: models.QuestionOptions{
			{ID: "opt-a", Text: "Madrid", Correct: true},
			{ID: "opt-b", Text: "Barcelona"},
		}},
		"q-tf": {ID: "q-tf", CourseID: "c1", Type: models.QuestionTrueFalse, Points: 1, CorrectAnswer: strPtr("true")},
		"q-sa": {ID: "q-sa", CourseID: "c1", Type: models.QuestionShortAnswer, Points: 3},
	}}
}

func newQuizFixture(itemID *string) (*questionRepoStub, *quizRepoStub, *gradeUpsertStub, *QuizService) {
	questions := bankFixture()
	quizzes := &quizRepoStub{
		quizzes: map[string]*models.Quiz{
			"qz1": {ID: "qz1", CourseID: "c1", ItemID: itemID, QuestionIDs: models.StringList{"q-mc", "q-tf", "q-sa"}, MaxAttempts: 2, PassingGrade: 50},
		},
		attempts: map[string]*models.QuizAttempt{
			"at1": {ID: "at1", QuizID: "qz1", UserID: "u1", CourseID: "c1", Status: models.AttemptInProgress},
		},
	}
	grades := &gradeUpsertStub{}
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true}}
	svc := NewQuizService(questions, quizzes, grades, courses, openAccess{}, nil, nil)
	return questions, quizzes, grades, svc
}

func TestSubmitAttemptScoresAutoGradableOnly(t *testing.T) {
	_, quizzes, grades, svc := newQuizFixture(strPtr("item-1"))

	result, err := svc.SubmitAttempt(context.Background(), claimsFor(models.RoleStudent, "u1"), "at1", models.SubmitAttemptRequest{
		Answers: map[string]string{
			"q-mc": "opt-a",
			"q-tf": " TRUE ",
			"q-sa": "una respuesta larga",
		},
	})
	require.NoError(t, err)

	// 3 of 6 points: the short answer counts in the total but earns nothing
	assert.Equal(t, 3.0, result.EarnedPoints)
	assert.Equal(t, 6.0, result.TotalPoints)
	assert.Equal(t, 50.0, result.Score)
	assert.True(t, result.Passed)
	assert.True(t, quizzes.finished)

	require.NotNil(t, grades.upserted)
	assert.Equal(t, "item-1", grades.upserted.ItemID)
	assert.Equal(t, "system", grades.upserted.GradedBy)
	assert.Equal(t, 50.0, grades.upserted.Grade)
}

func TestSubmitAttemptRoundsToTwoDecimals(t *testing.T) {
	questions, quizzes, _, svc := newQuizFixture(nil)
	questions.questions["q-sa"].Points = 0
	quizzes.quizzes["qz1"].QuestionIDs = models.StringList{"q-mc", "q-tf", "q-sa"}

	result, err := svc.SubmitAttempt(context.Background(), claimsFor(models.RoleStudent, "u1"), "at1", models.SubmitAttemptRequest{
		Answers: map[string]string{"q-mc": "opt-a"},
	})
	require.NoError(t, err)
	// 2 of 3 points
	assert.Equal(t, 66.67, result.Score)
	assert.True(t, result.Passed)
}

func TestSubmitAttemptWrongAnswersScoreZero(t *testing.T) {
	_, _, grades, svc := newQuizFixture(nil)

	result, err := svc.SubmitAttempt(context.Background(), claimsFor(models.RoleStudent, "u1"), "at1", models.SubmitAttemptRequest{
		Answers: map[string]string{"q-mc": "opt-b", "q-tf": "false"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Score)
	assert.False(t, result.Passed)
	assert.Nil(t, grades.upserted)
}

func TestSubmitAttemptOwnershipAndState(t *testing.T) {
	_, quizzes, _, svc := newQuizFixture(nil)

	_, err := svc.SubmitAttempt(context.Background(), claimsFor(models.RoleStudent, "intruder"), "at1", models.SubmitAttemptRequest{
		Answers: map[string]string{},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	quizzes.attempts["at1"].Status = models.AttemptCompleted
	_, err = svc.SubmitAttempt(context.Background(), claimsFor(models.RoleStudent, "u1"), "at1", models.SubmitAttemptRequest{
		Answers: map[string]string{},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestStartAttemptResumesOpenAttempt(t *testing.T) {
	_, quizzes, _, svc := newQuizFixture(nil)
	quizzes.mine = []models.QuizAttempt{
		{ID: "at1", QuizID: "qz1", UserID: "u1", Status: models.AttemptInProgress},
	}

	attempt, err := svc.StartAttempt(context.Background(), claimsFor(models.RoleStudent, "u1"), "qz1")
	require.NoError(t, err)
	assert.Equal(t, "at1", attempt.ID)
	assert.Nil(t, quizzes.createdAttempt)
}

func TestStartAttemptEnforcesCap(t *testing.T) {
	_, quizzes, _, svc := newQuizFixture(nil)
	quizzes.mine = []models.QuizAttempt{
		{ID: "a", Status: models.AttemptCompleted},
		{ID: "b", Status: models.AttemptCompleted},
	}

	_, err := svc.StartAttempt(context.Background(), claimsFor(models.RoleStudent, "u1"), "qz1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestStartAttemptNumbersSequentially(t *testing.T) {
	_, quizzes, _, svc := newQuizFixture(nil)
	quizzes.mine = []models.QuizAttempt{{ID: "a", Status: models.AttemptCompleted}}

	attempt, err := svc.StartAttempt(context.Background(), claimsFor(models.RoleStudent, "u1"), "qz1")
	require.NoError(t, err)
	assert.Equal(t, 2, attempt.AttemptNumber)
	assert.Equal(t, models.AttemptInProgress, attempt.Status)
}

func TestGetQuizStripsAnswersForStudents(t *testing.T) {
	_, _, _, svc := newQuizFixture(nil)

	detail, err := svc.GetQuiz(context.Background(), claimsFor(models.RoleStudent, "u1"), "qz1")
	require.NoError(t, err)
	require.Len(t, detail.Questions, 3)
	for _, q := range detail.Questions {
		assert.Nil(t, q.CorrectAnswer, "question %s leaked its answer", q.ID)
		assert.Nil(t, q.Feedback)
		for _, option := range q.Options {
			assert.False(t, option.Correct)
		}
	}

	detail, err = svc.GetQuiz(context.Background(), claimsFor(models.RoleTeacher, "t1"), "qz1")
	require.NoError(t, err)
	assert.NotNil(t, detail.Questions[1].CorrectAnswer)
}

func TestCreateQuestionShapeRules(t *testing.T) {
	questions := bankFixture()
	courses := &courseLookupStub{course: &models.Course{ID: "c1"}}
	svc := NewQuizService(questions, &quizRepoStub{}, &gradeUpsertStub{}, courses, openAccess{}, nil, nil)
	claims := claimsFor(models.RoleTeacher, "t1")

	_, err := svc.CreateQuestion(context.Background(), claims, "c1", models.CreateQuestionRequest{
		CategoryID:   "cat1",
		Type:         models.QuestionMultipleChoice,
		QuestionText: "¿Capital de Francia?",
		Points:       1,
		Options:      models.QuestionOptions{{ID: "a", Text: "París", Correct: true}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = svc.CreateQuestion(context.Background(), claims, "c1", models.CreateQuestionRequest{
		CategoryID:    "cat1",
		Type:          models.QuestionTrueFalse,
		QuestionText:  "El sol es una estrella",
		Points:        1,
		CorrectAnswer: strPtr("maybe"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	q, err := svc.CreateQuestion(context.Background(), claims, "c1", models.CreateQuestionRequest{
		CategoryID:    "cat1",
		Type:          models.QuestionTrueFalse,
		QuestionText:  "El sol es una estrella",
		Points:        1,
		CorrectAnswer: strPtr("True"),
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", q.CreatedBy)
}

func TestCreateQuizRejectsForeignQuestions(t *testing.T) {
	questions := bankFixture()
	questions.questions["q-ext"] = &models.Question{ID: "q-ext", CourseID: "other", Type: models.QuestionEssay}
	courses := &courseLookupStub{course: &models.Course{ID: "c1"}}
	svc := NewQuizService(questions, &quizRepoStub{}, &gradeUpsertStub{}, courses, openAccess{}, nil, nil)

	_, err := svc.CreateQuiz(context.Background(), claimsFor(models.RoleTeacher, "t1"), "c1", models.CreateQuizRequest{
		Title:       "Parcial",
		QuestionIDs: []string{"q-mc", "q-ext"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = svc.CreateQuiz(context.Background(), claimsFor(models.RoleTeacher, "t1"), "c1", models.CreateQuizRequest{
		Title:       "Parcial",
		QuestionIDs: []string{"q-mc", "ghost"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}
