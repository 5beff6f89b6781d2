package models

import "time"

// Assignment is a submit-and-grade activity.
type Assignment struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	ItemID         *string   `db:"item_id" json:"item_id,omitempty"`
	Title          string    `db:"title" json:"title"`
	Instructions   *string   `db:"instructions" json:"instructions,omitempty"`
	DueDate        *string   `db:"due_date" json:"due_date,omitempty"`
	MaxSubmissions int       `db:"max_submissions" json:"max_submissions"`
	MaxGrade       float64   `db:"max_grade" json:"max_grade"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SubmissionStatus is the submission lifecycle state.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
)

// Submission is one student delivery for an assignment.
type Submission struct {
	ID               string           `db:"id" json:"id"`
	AssignmentID     string           `db:"assignment_id" json:"assignment_id"`
	UserID           string           `db:"user_id" json:"user_id"`
	CourseID         string           `db:"course_id" json:"course_id"`
	SubmissionNumber int              `db:"submission_number" json:"submission_number"`
	Content          *string          `db:"content" json:"content,omitempty"`
	FileURL          *string          `db:"file_url" json:"file_url,omitempty"`
	Status           SubmissionStatus `db:"status" json:"status"`
	Grade            *float64         `db:"grade" json:"grade,omitempty"`
	Feedback         *string          `db:"feedback" json:"feedback,omitempty"`
	GradedBy         *string          `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt         *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	SubmittedAt      time.Time        `db:"submitted_at" json:"submitted_at"`
}

// SubmissionDetail joins student identity onto a submission row.
type SubmissionDetail struct {
	Submission
	UserFirstName string `db:"user_first_name" json:"user_first_name"`
	UserLastName  string `db:"user_last_name" json:"user_last_name"`
	UserEmail     string `db:"user_email" json:"user_email"`
}
