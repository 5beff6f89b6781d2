package models

import "time"

// EnrollmentRole is the role a user holds inside one course. It is
// independent from the account-level UserRole.
type EnrollmentRole string

const (
	EnrollRoleTeacher EnrollmentRole = "teacher"
	EnrollRoleEditor  EnrollmentRole = "editor"
	EnrollRoleStudent EnrollmentRole = "student"
)

// EnrollmentStatus is the enrollment lifecycle state.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusSuspended EnrollmentStatus = "suspended"
	EnrollmentStatusEnded     EnrollmentStatus = "ended"
)

// Enrollment links a user to a course. (course_id, user_id) is unique.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	CourseID           string           `db:"course_id" json:"course_id"`
	UserID             string           `db:"user_id" json:"user_id"`
	Role               EnrollmentRole   `db:"role" json:"role"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	ProgressPercentage float64          `db:"progress_percentage" json:"progress_percentage"`
	EnrolledBy         *string          `db:"enrolled_by" json:"enrolled_by,omitempty"`
	EnrolledAt         time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
	CompletedAt        *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// EnrollmentDetail joins user identity onto an enrollment row.
type EnrollmentDetail struct {
	Enrollment
	UserFirstName string `db:"user_first_name" json:"user_first_name"`
	UserLastName  string `db:"user_last_name" json:"user_last_name"`
	UserEmail     string `db:"user_email" json:"user_email"`
}

// EnrollmentWithCourse joins course display fields onto an enrollment row.
type EnrollmentWithCourse struct {
	Enrollment
	CourseFullname  string       `db:"course_fullname" json:"course_fullname"`
	CourseShortname string       `db:"course_shortname" json:"course_shortname"`
	CourseStatus    CourseStatus `db:"course_status" json:"course_status"`
}

// EnrollmentFilter captures listing criteria for one course.
type EnrollmentFilter struct {
	CourseID string
	Role     EnrollmentRole
	Status   EnrollmentStatus
	Skip     int
	Limit    int
}

// EnrollmentMethod configures self-enrollment for a course.
type EnrollmentMethod struct {
	ID        string         `db:"id" json:"id"`
	CourseID  string         `db:"course_id" json:"course_id"`
	Type      string         `db:"type" json:"type"`
	Code      string         `db:"code" json:"code"`
	Role      EnrollmentRole `db:"role" json:"role"`
	Enabled   bool           `db:"enabled" json:"enabled"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// BulkEnrollResult reports partial-success counts for a batch enrollment.
type BulkEnrollResult struct {
	Enrolled int `json:"enrolled"`
	Skipped  int `json:"skipped"`
}
