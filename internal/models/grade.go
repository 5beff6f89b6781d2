package models

import "time"

// Grade is a single mark for a user on a gradable item.
// (user_id, item_id, course_id) is unique; SetGrade upserts on it.
type Grade struct {
	ID       string  `db:"id" json:"id"`
	UserID   string  `db:"user_id" json:"user_id"`
	ItemID   string  `db:"item_id" json:"item_id"`
	CourseID string  `db:"course_id" json:"course_id"`
	Grade    float64 `db:"grade" json:"grade"`
	Feedback *string `db:"feedback" json:"feedback,omitempty"`
	// GradedBy is a user id, or "system" for quiz auto-grading.
	GradedBy string    `db:"graded_by" json:"graded_by"`
	GradedAt time.Time `db:"graded_at" json:"graded_at"`
}

// GradeWithItem joins item display fields onto a grade row.
type GradeWithItem struct {
	Grade
	ItemTitle string   `db:"item_title" json:"item_title"`
	ItemType  ItemType `db:"item_type" json:"item_type"`
	// CourseName is filled only by cross-course listings.
	CourseName string `db:"course_name" json:"course_name,omitempty"`
}

// GradebookCell is one student x item intersection in the gradebook matrix.
type GradebookCell struct {
	Grade    *float64   `json:"grade"`
	Feedback *string    `json:"feedback"`
	GradedAt *time.Time `json:"graded_at"`
}

// GradebookStudent is one gradebook row.
type GradebookStudent struct {
	UserID    string                   `json:"user_id"`
	FirstName string                   `json:"first_name"`
	LastName  string                   `json:"last_name"`
	Email     string                   `json:"email"`
	Grades    map[string]GradebookCell `json:"grades"`
	Average   *float64                 `json:"average"`
	Progress  float64                  `json:"progress"`
}

// Gradebook is the full matrix for a course.
type Gradebook struct {
	CourseID       string             `json:"course_id"`
	CourseFullname string             `json:"course_fullname"`
	Items          []CourseItem       `json:"items"`
	Students       []GradebookStudent `json:"students"`
	Settings       GradebookSettings  `json:"gradebook_settings"`
}
