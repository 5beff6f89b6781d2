package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ItemType enumerates the supported course item variants.
type ItemType string

const (
	ItemTypePage       ItemType = "page"
	ItemTypeFile       ItemType = "file"
	ItemTypeVideo      ItemType = "video"
	ItemTypeURL        ItemType = "url"
	ItemTypeForum      ItemType = "forum"
	ItemTypeAssignment ItemType = "assignment"
	ItemTypeQuiz       ItemType = "quiz"
	ItemTypeFeedback   ItemType = "feedback"
	ItemTypeLabel      ItemType = "label"
)

// ValidItemType reports whether t is a known item type.
func ValidItemType(t ItemType) bool {
	switch t {
	case ItemTypePage, ItemTypeFile, ItemTypeVideo, ItemTypeURL, ItemTypeForum,
		ItemTypeAssignment, ItemTypeQuiz, ItemTypeFeedback, ItemTypeLabel:
		return true
	}
	return false
}

// AvailabilityRules restricts when an item becomes visible to a student.
type AvailabilityRules struct {
	StartDate         *string            `json:"start_date,omitempty"`
	EndDate           *string            `json:"end_date,omitempty"`
	RequireCompletion []string           `json:"require_completion,omitempty"`
	RequireGrade      map[string]float64 `json:"require_grade,omitempty"`
	RequireGroup      []string           `json:"require_group,omitempty"`
}

func (r AvailabilityRules) Value() (driver.Value, error) { return jsonbValue(r) }
func (r *AvailabilityRules) Scan(src interface{}) error  { return jsonbScan(src, r) }

// CompletionRule defines how an item is marked complete.
type CompletionRule struct {
	Type     string   `json:"type"`
	MinGrade *float64 `json:"min_grade,omitempty"`
}

func (r CompletionRule) Value() (driver.Value, error) { return jsonbValue(r) }
func (r *CompletionRule) Scan(src interface{}) error  { return jsonbScan(src, r) }

// ItemContent is the raw per-type payload. The schema depends on the item
// type; DecodeItemContent validates it at the boundary.
type ItemContent json.RawMessage

func (c ItemContent) Value() (driver.Value, error) {
	if len(c) == 0 {
		return []byte("{}"), nil
	}
	return []byte(c), nil
}

func (c *ItemContent) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*c = append(ItemContent(nil), v...)
	case string:
		*c = ItemContent(v)
	default:
		return fmt.Errorf("unsupported content source type %T", src)
	}
	return nil
}

func (c ItemContent) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

func (c *ItemContent) UnmarshalJSON(data []byte) error {
	*c = append(ItemContent(nil), data...)
	return nil
}

// Per-type content payloads.
type (
	PageContent struct {
		Body string `json:"body"`
	}
	FileContent struct {
		FileURL  string `json:"file_url"`
		FileName string `json:"file_name,omitempty"`
		SizeKB   int    `json:"size_kb,omitempty"`
	}
	VideoContent struct {
		VideoURL  string `json:"video_url"`
		Duration  int    `json:"duration_seconds,omitempty"`
		Thumbnail string `json:"thumbnail,omitempty"`
	}
	URLContent struct {
		ExternalURL string `json:"external_url"`
		OpenInNew   bool   `json:"open_in_new,omitempty"`
	}
	ForumContent struct {
		Intro         string `json:"intro,omitempty"`
		AllowStudents bool   `json:"allow_student_threads,omitempty"`
	}
	AssignmentContent struct {
		Instructions   string  `json:"instructions,omitempty"`
		DueDate        *string `json:"due_date,omitempty"`
		MaxSubmissions int     `json:"max_submissions,omitempty"`
		MaxGrade       float64 `json:"max_grade,omitempty"`
	}
	QuizContent struct {
		QuizID       string  `json:"quiz_id,omitempty"`
		TimeLimit    int     `json:"time_limit_minutes,omitempty"`
		MaxAttempts  int     `json:"max_attempts,omitempty"`
		PassingGrade float64 `json:"passing_grade,omitempty"`
	}
	FeedbackContent struct {
		Intro     string `json:"intro,omitempty"`
		Anonymous bool   `json:"anonymous,omitempty"`
	}
	LabelContent struct {
		Text string `json:"text"`
	}
)

// DecodeItemContent parses raw content into the variant matching the item
// type, rejecting unknown fields so malformed payloads fail at the boundary.
func DecodeItemContent(itemType ItemType, raw ItemContent) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var dest interface{}
	switch itemType {
	case ItemTypePage:
		dest = &PageContent{}
	case ItemTypeFile:
		dest = &FileContent{}
	case ItemTypeVideo:
		dest = &VideoContent{}
	case ItemTypeURL:
		dest = &URLContent{}
	case ItemTypeForum:
		dest = &ForumContent{}
	case ItemTypeAssignment:
		dest = &AssignmentContent{}
	case ItemTypeQuiz:
		dest = &QuizContent{}
	case ItemTypeFeedback:
		dest = &FeedbackContent{}
	case ItemTypeLabel:
		dest = &LabelContent{}
	default:
		return nil, fmt.Errorf("unknown item type %q", itemType)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return nil, fmt.Errorf("decode %s content: %w", itemType, err)
	}
	return dest, nil
}

// CourseItem is a single resource or activity inside a section. Position is
// zero-based and unique per section; course_id is denormalized for
// course-wide queries.
type CourseItem struct {
	ID           string            `db:"id" json:"id"`
	SectionID    string            `db:"section_id" json:"section_id"`
	CourseID     string            `db:"course_id" json:"course_id"`
	Title        string            `db:"title" json:"title"`
	ItemType     ItemType          `db:"item_type" json:"item_type"`
	Description  *string           `db:"description" json:"description,omitempty"`
	Position     int               `db:"position" json:"position"`
	Visible      bool              `db:"visible" json:"visible"`
	Content      ItemContent       `db:"content" json:"content,omitempty"`
	Availability AvailabilityRules `db:"availability" json:"availability"`
	Completion   CompletionRule    `db:"completion" json:"completion"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}
