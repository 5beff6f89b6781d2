package models

// Request payloads for the write endpoints. Update requests use pointers so
// omitted fields are distinguishable from zero values.

// CreateUserRequest is the admin user-creation payload.
type CreateUserRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	Password  string   `json:"password" validate:"required,min=6"`
	FirstName string   `json:"first_name" validate:"required"`
	LastName  string   `json:"last_name" validate:"required"`
	Role      UserRole `json:"role" validate:"required,oneof=admin teacher editor student"`
	Language  string   `json:"language"`
	Timezone  string   `json:"timezone"`
	Phone     *string  `json:"phone,omitempty"`
}

// UpdateUserRequest is a partial user update.
type UpdateUserRequest struct {
	FirstName   *string          `json:"first_name,omitempty"`
	LastName    *string          `json:"last_name,omitempty"`
	Role        *UserRole        `json:"role,omitempty" validate:"omitempty,oneof=admin teacher editor student"`
	Status      *UserStatus      `json:"status,omitempty" validate:"omitempty,oneof=active inactive suspended"`
	Language    *string          `json:"language,omitempty"`
	Timezone    *string          `json:"timezone,omitempty"`
	AvatarURL   *string          `json:"avatar_url,omitempty"`
	Phone       *string          `json:"phone,omitempty"`
	Preferences *UserPreferences `json:"preferences,omitempty"`
}

// BulkUserUpdateRequest applies one change to many users.
type BulkUserUpdateRequest struct {
	UserIDs []string    `json:"user_ids" validate:"required,min=1"`
	Status  *UserStatus `json:"status,omitempty" validate:"omitempty,oneof=active inactive suspended"`
	Role    *UserRole   `json:"role,omitempty" validate:"omitempty,oneof=admin teacher editor student"`
}

// CreateCategoryRequest creates a course category.
type CreateCategoryRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	Position    int     `json:"position"`
	Visible     *bool   `json:"visible,omitempty"`
}

// UpdateCategoryRequest is a partial category update.
type UpdateCategoryRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	Position    *int    `json:"position,omitempty"`
	Visible     *bool   `json:"visible,omitempty"`
}

// CreateCourseRequest creates a course. NumSections controls how many
// sections are auto-created beyond the introduction block.
type CreateCourseRequest struct {
	Fullname    string       `json:"fullname" validate:"required"`
	Shortname   string       `json:"shortname" validate:"required"`
	CategoryID  string       `json:"category_id" validate:"required"`
	Summary     *string      `json:"summary,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Language    string       `json:"language"`
	Format      CourseFormat `json:"format" validate:"omitempty,oneof=topics weeks free"`
	NumSections int          `json:"num_sections" validate:"omitempty,min=0,max=52"`
	StartDate   *string      `json:"start_date,omitempty"`
	EndDate     *string      `json:"end_date,omitempty"`
	Visible     *bool        `json:"visible,omitempty"`
}

// UpdateCourseRequest is a partial course update.
type UpdateCourseRequest struct {
	Fullname   *string             `json:"fullname,omitempty"`
	Shortname  *string             `json:"shortname,omitempty"`
	CategoryID *string             `json:"category_id,omitempty"`
	Summary    *string             `json:"summary,omitempty"`
	CoverImage *string             `json:"cover_image,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
	Language   *string             `json:"language,omitempty"`
	Format     *CourseFormat       `json:"format,omitempty" validate:"omitempty,oneof=topics weeks free"`
	StartDate  *string             `json:"start_date,omitempty"`
	EndDate    *string             `json:"end_date,omitempty"`
	Visible    *bool               `json:"visible,omitempty"`
	Status     *CourseStatus       `json:"status,omitempty" validate:"omitempty,oneof=draft published suspended archived"`
	Completion *CompletionSettings `json:"completion,omitempty"`
	Gradebook  *GradebookSettings  `json:"gradebook,omitempty"`
	AI         *AISettings         `json:"ai,omitempty"`
	Files      *FileSettings       `json:"files,omitempty"`
}

// BulkCourseUpdateRequest applies one change to many courses.
type BulkCourseUpdateRequest struct {
	CourseIDs  []string      `json:"course_ids" validate:"required,min=1"`
	Status     *CourseStatus `json:"status,omitempty" validate:"omitempty,oneof=draft published suspended archived"`
	Visible    *bool         `json:"visible,omitempty"`
	CategoryID *string       `json:"category_id,omitempty"`
}

// DuplicateCourseRequest names the copy of a course.
type DuplicateCourseRequest struct {
	Fullname  string `json:"fullname" validate:"required"`
	Shortname string `json:"shortname" validate:"required"`
}

// CreateSectionRequest creates a section. An omitted position appends.
type CreateSectionRequest struct {
	Title    string  `json:"title" validate:"required"`
	Summary  *string `json:"summary,omitempty"`
	Position *int    `json:"position,omitempty" validate:"omitempty,min=0"`
	Visible  *bool   `json:"visible,omitempty"`
}

// UpdateSectionRequest is a partial section update.
type UpdateSectionRequest struct {
	Title   *string `json:"title,omitempty"`
	Summary *string `json:"summary,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
}

// MoveSectionRequest relocates a section inside its course.
type MoveSectionRequest struct {
	NewPosition int `json:"new_position" validate:"min=0"`
}

// CreateItemRequest creates an item. An omitted position appends.
type CreateItemRequest struct {
	Title        string             `json:"title" validate:"required"`
	ItemType     ItemType           `json:"item_type" validate:"required"`
	Description  *string            `json:"description,omitempty"`
	Position     *int               `json:"position,omitempty" validate:"omitempty,min=0"`
	Visible      *bool              `json:"visible,omitempty"`
	Content      ItemContent        `json:"content,omitempty"`
	Availability *AvailabilityRules `json:"availability,omitempty"`
	Completion   *CompletionRule    `json:"completion,omitempty"`
}

// UpdateItemRequest is a partial item update. The item type is immutable.
type UpdateItemRequest struct {
	Title        *string            `json:"title,omitempty"`
	Description  *string            `json:"description,omitempty"`
	Visible      *bool              `json:"visible,omitempty"`
	Content      ItemContent        `json:"content,omitempty"`
	Availability *AvailabilityRules `json:"availability,omitempty"`
	Completion   *CompletionRule    `json:"completion,omitempty"`
}

// MoveItemRequest relocates an item, optionally into another section.
type MoveItemRequest struct {
	NewPosition     int     `json:"new_position" validate:"min=0"`
	TargetSectionID *string `json:"target_section_id,omitempty"`
}

// EnrollRequest enrolls one user into a course.
type EnrollRequest struct {
	UserID string         `json:"user_id" validate:"required"`
	Role   EnrollmentRole `json:"role" validate:"required,oneof=teacher editor student"`
}

// BulkEnrollRequest enrolls many users with partial-success semantics.
type BulkEnrollRequest struct {
	UserIDs []string       `json:"user_ids" validate:"required,min=1"`
	Role    EnrollmentRole `json:"role" validate:"required,oneof=teacher editor student"`
}

// UpdateEnrollmentRequest is a partial enrollment update.
type UpdateEnrollmentRequest struct {
	Role               *EnrollmentRole   `json:"role,omitempty" validate:"omitempty,oneof=teacher editor student"`
	Status             *EnrollmentStatus `json:"status,omitempty" validate:"omitempty,oneof=active suspended ended"`
	ProgressPercentage *float64          `json:"progress_percentage,omitempty" validate:"omitempty,min=0,max=100"`
}

// SelfEnrollRequest redeems a self-enrollment code.
type SelfEnrollRequest struct {
	Code string `json:"code" validate:"required"`
}

// CreateEnrollmentMethodRequest configures self-enrollment for a course.
type CreateEnrollmentMethodRequest struct {
	Code    string         `json:"code" validate:"required,min=4"`
	Role    EnrollmentRole `json:"role" validate:"required,oneof=teacher editor student"`
	Enabled *bool          `json:"enabled,omitempty"`
}

// SetGradeRequest writes a manual grade for one student on one item.
type SetGradeRequest struct {
	UserID   string  `json:"user_id" validate:"required"`
	ItemID   string  `json:"item_id" validate:"required"`
	Grade    float64 `json:"grade" validate:"min=0"`
	Feedback *string `json:"feedback,omitempty"`
}

// CreateQuestionRequest adds a question-bank entry.
type CreateQuestionRequest struct {
	CategoryID    string          `json:"category_id" validate:"required"`
	Type          QuestionType    `json:"type" validate:"required,oneof=multiple_choice true_false short_answer essay"`
	QuestionText  string          `json:"question_text" validate:"required"`
	Points        float64         `json:"points" validate:"required,gt=0"`
	Options       QuestionOptions `json:"options,omitempty"`
	CorrectAnswer *string         `json:"correct_answer,omitempty"`
	Feedback      *string         `json:"feedback,omitempty"`
}

// UpdateQuestionRequest is a partial question update.
type UpdateQuestionRequest struct {
	CategoryID    *string         `json:"category_id,omitempty"`
	QuestionText  *string         `json:"question_text,omitempty"`
	Points        *float64        `json:"points,omitempty" validate:"omitempty,gt=0"`
	Options       QuestionOptions `json:"options,omitempty"`
	CorrectAnswer *string         `json:"correct_answer,omitempty"`
	Feedback      *string         `json:"feedback,omitempty"`
}

// CreateQuestionCategoryRequest groups question-bank entries.
type CreateQuestionCategoryRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
}

// CreateQuizRequest builds a quiz from question-bank entries.
type CreateQuizRequest struct {
	Title        string   `json:"title" validate:"required"`
	Description  *string  `json:"description,omitempty"`
	ItemID       *string  `json:"item_id,omitempty"`
	QuestionIDs  []string `json:"question_ids" validate:"required,min=1"`
	MaxAttempts  int      `json:"max_attempts" validate:"omitempty,min=1"`
	TimeLimit    int      `json:"time_limit_minutes" validate:"omitempty,min=0"`
	PassingGrade float64  `json:"passing_grade" validate:"omitempty,min=0,max=100"`
}

// UpdateQuizRequest is a partial quiz update.
type UpdateQuizRequest struct {
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	QuestionIDs  []string `json:"question_ids,omitempty"`
	MaxAttempts  *int     `json:"max_attempts,omitempty" validate:"omitempty,min=1"`
	TimeLimit    *int     `json:"time_limit_minutes,omitempty" validate:"omitempty,min=0"`
	PassingGrade *float64 `json:"passing_grade,omitempty" validate:"omitempty,min=0,max=100"`
}

// SubmitAttemptRequest carries a student's answers keyed by question id.
type SubmitAttemptRequest struct {
	Answers map[string]string `json:"answers" validate:"required"`
}

// CreateAssignmentRequest creates an assignment activity.
type CreateAssignmentRequest struct {
	Title          string  `json:"title" validate:"required"`
	Instructions   *string `json:"instructions,omitempty"`
	ItemID         *string `json:"item_id,omitempty"`
	DueDate        *string `json:"due_date,omitempty"`
	MaxSubmissions int     `json:"max_submissions" validate:"omitempty,min=1"`
	MaxGrade       float64 `json:"max_grade" validate:"omitempty,gt=0"`
}

// UpdateAssignmentRequest is a partial assignment update.
type UpdateAssignmentRequest struct {
	Title          *string  `json:"title,omitempty"`
	Instructions   *string  `json:"instructions,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	MaxSubmissions *int     `json:"max_submissions,omitempty" validate:"omitempty,min=1"`
	MaxGrade       *float64 `json:"max_grade,omitempty" validate:"omitempty,gt=0"`
}

// SubmitAssignmentRequest is one student delivery.
type SubmitAssignmentRequest struct {
	Content *string `json:"content,omitempty"`
	FileURL *string `json:"file_url,omitempty"`
}

// GradeSubmissionRequest marks one submission.
type GradeSubmissionRequest struct {
	Grade    float64 `json:"grade" validate:"min=0"`
	Feedback *string `json:"feedback,omitempty"`
}

// CreateThreadRequest opens a conversation or posts an announcement.
type CreateThreadRequest struct {
	Subject     string     `json:"subject" validate:"required"`
	Content     string     `json:"content" validate:"required"`
	Type        ThreadType `json:"type" validate:"omitempty,oneof=message announcement"`
	RecipientID string     `json:"recipient_id,omitempty"`
	CourseID    *string    `json:"course_id,omitempty"`
}

// ReplyRequest appends a message to an existing thread.
type ReplyRequest struct {
	Content string `json:"content" validate:"required"`
}
