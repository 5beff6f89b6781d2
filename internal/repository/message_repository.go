package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aulalabs/aula-api/internal/models"
)

// MessageRepository handles persistence of message threads and messages.
// Participants and read_by are stored as JSONB arrays; membership checks use
// the containment operator.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const threadColumns = `id, subject, type, course_id, created_by, recipient_id, participants, read_by, created_at, last_message_at`

// CreateThread persists a new thread.
func (r *MessageRepository) CreateThread(ctx context.Context, thread *models.MessageThread) error {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	if thread.LastMessageAt.IsZero() {
		thread.LastMessageAt = now
	}
	const query = `INSERT INTO message_threads (id, subject, type, course_id, created_by, recipient_id, participants, read_by, created_at, last_message_at)
        VALUES (:id, :subject, :type, :course_id, :created_by, :recipient_id, :participants, :read_by, :created_at, :last_message_at)`
	if _, err := r.db.NamedExecContext(ctx, query, thread); err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

// FindThread returns a thread by its ID.
func (r *MessageRepository) FindThread(ctx context.Context, id string) (*models.MessageThread, error) {
	query := fmt.Sprintf(`SELECT %s FROM message_threads WHERE id = $1`, threadColumns)
	var thread models.MessageThread
	if err := r.db.GetContext(ctx, &thread, query, id); err != nil {
		return nil, err
	}
	return &thread, nil
}

// ListThreadsForUser returns the user's inbox, newest activity first.
func (r *MessageRepository) ListThreadsForUser(ctx context.Context, userID string, limit, skip int) ([]models.MessageThread, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM message_threads
        WHERE participants @> to_jsonb(ARRAY[$1]::text[])
        ORDER BY last_message_at DESC LIMIT %d OFFSET %d`, threadColumns, limit, skip)
	var threads []models.MessageThread
	if err := r.db.SelectContext(ctx, &threads, query, userID); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

// ListAnnouncements returns a course's announcement threads.
func (r *MessageRepository) ListAnnouncements(ctx context.Context, courseID string) ([]models.MessageThread, error) {
	query := fmt.Sprintf(`SELECT %s FROM message_threads
        WHERE course_id = $1 AND type = 'announcement'
        ORDER BY last_message_at DESC`, threadColumns)
	var threads []models.MessageThread
	if err := r.db.SelectContext(ctx, &threads, query, courseID); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return threads, nil
}

// CountUnread returns how many of the user's threads lack their read mark.
func (r *MessageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM message_threads
        WHERE participants @> to_jsonb(ARRAY[$1]::text[])
        AND NOT read_by @> to_jsonb(ARRAY[$1]::text[])`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread threads: %w", err)
	}
	return count, nil
}

// MarkThreadRead adds the user to the thread's read set.
func (r *MessageRepository) MarkThreadRead(ctx context.Context, threadID, userID string) error {
	const query = `UPDATE message_threads
        SET read_by = read_by || to_jsonb(ARRAY[$2]::text[])
        WHERE id = $1 AND NOT read_by @> to_jsonb(ARRAY[$2]::text[])`
	if _, err := r.db.ExecContext(ctx, query, threadID, userID); err != nil {
		return fmt.Errorf("mark thread read: %w", err)
	}
	return nil
}

// TouchThread bumps last_message_at and resets read_by to the sender only.
func (r *MessageRepository) TouchThread(ctx context.Context, threadID, senderID string, at time.Time) error {
	const query = `UPDATE message_threads
        SET last_message_at = $2, read_by = to_jsonb(ARRAY[$3]::text[])
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, threadID, at, senderID); err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	return nil
}

// CreateMessage appends a message to a thread.
func (r *MessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, thread_id, sender_id, content, read_by, created_at)
        VALUES (:id, :thread_id, :sender_id, :content, :read_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages returns a thread's messages oldest first, with sender names.
func (r *MessageRepository) ListMessages(ctx context.Context, threadID string) ([]models.MessageDetail, error) {
	const query = `SELECT m.id, m.thread_id, m.sender_id, m.content, m.read_by, m.created_at,
        u.first_name || ' ' || u.last_name AS sender_name
        FROM messages m JOIN users u ON u.id = m.sender_id
        WHERE m.thread_id = $1 ORDER BY m.created_at ASC`
	var messages []models.MessageDetail
	if err := r.db.SelectContext(ctx, &messages, query, threadID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// LatestMessages returns the newest message per thread for inbox previews.
func (r *MessageRepository) LatestMessages(ctx context.Context, threadIDs []string) (map[string]models.Message, error) {
	if len(threadIDs) == 0 {
		return map[string]models.Message{}, nil
	}
	const query = `SELECT DISTINCT ON (thread_id) id, thread_id, sender_id, content, read_by, created_at
        FROM messages WHERE thread_id = ANY($1)
        ORDER BY thread_id, created_at DESC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, pq.Array(threadIDs)); err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	latest := make(map[string]models.Message, len(messages))
	for _, m := range messages {
		latest[m.ThreadID] = m
	}
	return latest, nil
}
