package models

import (
	"database/sql/driver"
	"time"
)

// CourseStatus is the course lifecycle state. Only archived blocks edits;
// draft and suspended courses stay writable.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "draft"
	CourseStatusPublished CourseStatus = "published"
	CourseStatusSuspended CourseStatus = "suspended"
	CourseStatusArchived  CourseStatus = "archived"
)

// CourseFormat controls how auto-created sections are titled.
type CourseFormat string

const (
	FormatTopics CourseFormat = "topics"
	FormatWeeks  CourseFormat = "weeks"
	FormatFree   CourseFormat = "free"
)

// CompletionSettings configures course completion tracking.
type CompletionSettings struct {
	Enabled       bool     `json:"enabled"`
	Method        string   `json:"method"`
	MinPercentage *float64 `json:"min_percentage,omitempty"`
	MinGrade      *float64 `json:"min_grade,omitempty"`
}

func (s CompletionSettings) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *CompletionSettings) Scan(src interface{}) error  { return jsonbScan(src, s) }

// GradebookSettings configures grading scale and pass mark.
type GradebookSettings struct {
	Scale        string  `json:"scale"`
	PassingGrade float64 `json:"passing_grade"`
}

func (s GradebookSettings) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *GradebookSettings) Scan(src interface{}) error  { return jsonbScan(src, s) }

// AISettings configures AI assistance for course content.
type AISettings struct {
	Enabled                  bool   `json:"enabled"`
	DefaultLanguage          string `json:"default_language"`
	RequireTeacherApproval   bool   `json:"require_teacher_approval"`
	BlockPublishOnFailedScan bool   `json:"block_publish_on_failed_check"`
}

func (s AISettings) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *AISettings) Scan(src interface{}) error  { return jsonbScan(src, s) }

// FileSettings configures upload limits for course files.
type FileSettings struct {
	MaxFileSizeMB int      `json:"max_file_size_mb"`
	AllowedTypes  []string `json:"allowed_types"`
	TotalQuotaMB  int      `json:"total_quota_mb"`
}

func (s FileSettings) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *FileSettings) Scan(src interface{}) error  { return jsonbScan(src, s) }

// DefaultCourseSettings returns the settings applied to new courses.
func DefaultCourseSettings() (CompletionSettings, GradebookSettings, AISettings, FileSettings) {
	return CompletionSettings{Method: "manual"},
		GradebookSettings{Scale: "0-100", PassingGrade: 50},
		AISettings{DefaultLanguage: "es", RequireTeacherApproval: true},
		FileSettings{
			MaxFileSizeMB: 50,
			AllowedTypes:  []string{"pdf", "doc", "docx", "ppt", "pptx", "xls", "xlsx", "jpg", "png", "mp4", "zip"},
			TotalQuotaMB:  500,
		}
}

// Course is the root aggregate: it owns sections, items and enrollments.
type Course struct {
	ID             string             `db:"id" json:"id"`
	Fullname       string             `db:"fullname" json:"fullname"`
	Shortname      string             `db:"shortname" json:"shortname"`
	CategoryID     string             `db:"category_id" json:"category_id"`
	Summary        *string            `db:"summary" json:"summary,omitempty"`
	CoverImage     *string            `db:"cover_image" json:"cover_image,omitempty"`
	Tags           StringList         `db:"tags" json:"tags"`
	Language       string             `db:"language" json:"language"`
	Format         CourseFormat       `db:"format" json:"format"`
	NumSections    int                `db:"num_sections" json:"num_sections"`
	StartDate      *string            `db:"start_date" json:"start_date,omitempty"`
	EndDate        *string            `db:"end_date" json:"end_date,omitempty"`
	Visible        bool               `db:"visible" json:"visible"`
	Status         CourseStatus       `db:"status" json:"status"`
	Completion     CompletionSettings `db:"completion" json:"completion"`
	Gradebook      GradebookSettings  `db:"gradebook" json:"gradebook"`
	AI             AISettings         `db:"ai" json:"ai"`
	Files          FileSettings       `db:"files" json:"files"`
	CreatedBy      string             `db:"created_by" json:"created_by"`
	LastModifiedBy *string            `db:"last_modified_by" json:"last_modified_by,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// CourseFilter captures listing criteria.
type CourseFilter struct {
	CategoryID string
	Status     CourseStatus
	Visible    *bool
	Search     string
	Tags       []string
	CreatedBy  string
	// EnrolledCourseIDs widens the visible set for students beyond the
	// published catalog.
	EnrolledCourseIDs []string
	StudentView       bool
	Skip              int
	Limit             int
}

// CourseStats summarises a course for the management screen.
type CourseStats struct {
	SectionCount    int `json:"section_count"`
	ItemCount       int `json:"item_count"`
	EnrollmentCount int `json:"enrollment_count"`
	StudentCount    int `json:"student_count"`
}

// CourseSection is an ordered block of items inside a course. Position is
// zero-based and unique per course.
type CourseSection struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Title     string    `db:"title" json:"title"`
	Summary   *string   `db:"summary" json:"summary,omitempty"`
	Position  int       `db:"position" json:"position"`
	Visible   bool      `db:"visible" json:"visible"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
