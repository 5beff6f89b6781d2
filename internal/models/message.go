package models

import "time"

// ThreadType distinguishes direct messages from course announcements.
type ThreadType string

const (
	ThreadTypeMessage      ThreadType = "message"
	ThreadTypeAnnouncement ThreadType = "announcement"
)

// MessageThread is a conversation between users, optionally tied to a course.
type MessageThread struct {
	ID            string     `db:"id" json:"id"`
	Subject       string     `db:"subject" json:"subject"`
	Type          ThreadType `db:"type" json:"type"`
	CourseID      *string    `db:"course_id" json:"course_id,omitempty"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	RecipientID   string     `db:"recipient_id" json:"recipient_id"`
	Participants  StringList `db:"participants" json:"participants"`
	ReadBy        StringList `db:"read_by" json:"read_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastMessageAt time.Time  `db:"last_message_at" json:"last_message_at"`
}

// ThreadSummary decorates a thread for inbox listings.
type ThreadSummary struct {
	MessageThread
	SenderName string `json:"sender_name,omitempty"`
	Preview    string `json:"preview,omitempty"`
	Unread     bool   `json:"unread"`
}

// Message is a single entry inside a thread.
type Message struct {
	ID        string     `db:"id" json:"id"`
	ThreadID  string     `db:"thread_id" json:"thread_id"`
	SenderID  string     `db:"sender_id" json:"sender_id"`
	Content   string     `db:"content" json:"content"`
	ReadBy    StringList `db:"read_by" json:"read_by"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// MessageDetail decorates a message with its sender's display name.
type MessageDetail struct {
	Message
	SenderName string `json:"sender_name,omitempty"`
}
