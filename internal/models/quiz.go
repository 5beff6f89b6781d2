package models

import (
	"database/sql/driver"
	"time"
)

// QuestionType enumerates supported question variants. Auto-grading only
// understands multiple_choice and true_false; the rest require manual marks.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// QuestionOption is one selectable answer for a multiple_choice question.
type QuestionOption struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

// QuestionOptions is the JSONB-backed option list.
type QuestionOptions []QuestionOption

func (o QuestionOptions) Value() (driver.Value, error) {
	if o == nil {
		return jsonbValue([]QuestionOption{})
	}
	return jsonbValue([]QuestionOption(o))
}

func (o *QuestionOptions) Scan(src interface{}) error { return jsonbScan(src, o) }

// QuestionCategory groups question-bank entries inside a course.
type QuestionCategory struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	ParentID    *string   `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Question is a question-bank entry.
type Question struct {
	ID            string          `db:"id" json:"id"`
	CourseID      string          `db:"course_id" json:"course_id"`
	CategoryID    string          `db:"category_id" json:"category_id"`
	Type          QuestionType    `db:"type" json:"type"`
	QuestionText  string          `db:"question_text" json:"question_text"`
	Points        float64         `db:"points" json:"points"`
	Options       QuestionOptions `db:"options" json:"options"`
	CorrectAnswer *string         `db:"correct_answer" json:"correct_answer,omitempty"`
	Feedback      *string         `db:"feedback" json:"feedback,omitempty"`
	CreatedBy     string          `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Quiz bundles question-bank entries into an attemptable activity.
type Quiz struct {
	ID           string     `db:"id" json:"id"`
	CourseID     string     `db:"course_id" json:"course_id"`
	ItemID       *string    `db:"item_id" json:"item_id,omitempty"`
	Title        string     `db:"title" json:"title"`
	Description  *string    `db:"description" json:"description,omitempty"`
	QuestionIDs  StringList `db:"question_ids" json:"question_ids"`
	MaxAttempts  int        `db:"max_attempts" json:"max_attempts"`
	TimeLimit    int        `db:"time_limit_minutes" json:"time_limit_minutes"`
	PassingGrade float64    `db:"passing_grade" json:"passing_grade"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// QuizDetail is a quiz with its questions resolved.
type QuizDetail struct {
	Quiz
	Questions []Question `json:"questions"`
}

// AttemptStatus is the quiz attempt lifecycle state.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// AttemptAnswers maps question id to the submitted answer.
type AttemptAnswers map[string]string

func (a AttemptAnswers) Value() (driver.Value, error) {
	if a == nil {
		return jsonbValue(map[string]string{})
	}
	return jsonbValue(map[string]string(a))
}

func (a *AttemptAnswers) Scan(src interface{}) error { return jsonbScan(src, a) }

// QuizAttempt is one user's run at a quiz.
type QuizAttempt struct {
	ID            string         `db:"id" json:"id"`
	QuizID        string         `db:"quiz_id" json:"quiz_id"`
	UserID        string         `db:"user_id" json:"user_id"`
	CourseID      string         `db:"course_id" json:"course_id"`
	AttemptNumber int            `db:"attempt_number" json:"attempt_number"`
	Status        AttemptStatus  `db:"status" json:"status"`
	Answers       AttemptAnswers `db:"answers" json:"answers"`
	Score         *float64       `db:"score" json:"score,omitempty"`
	EarnedPoints  *float64       `db:"earned_points" json:"earned_points,omitempty"`
	TotalPoints   *float64       `db:"total_points" json:"total_points,omitempty"`
	StartedAt     time.Time      `db:"started_at" json:"started_at"`
	FinishedAt    *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
}

// AttemptResult is returned after submitting an attempt.
type AttemptResult struct {
	Score        float64 `json:"score"`
	EarnedPoints float64 `json:"earned_points"`
	TotalPoints  float64 `json:"total_points"`
	Passed       bool    `json:"passed"`
}
