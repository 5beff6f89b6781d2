package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

const unreadCacheTTL = time.Minute

type messageRepository interface {
	CreateThread(ctx context.Context, thread *models.MessageThread) error
	FindThread(ctx context.Context, id string) (*models.MessageThread, error)
	ListThreadsForUser(ctx context.Context, userID string, limit, skip int) ([]models.MessageThread, error)
	ListAnnouncements(ctx context.Context, courseID string) ([]models.MessageThread, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkThreadRead(ctx context.Context, threadID, userID string) error
	TouchThread(ctx context.Context, threadID, senderID string, at time.Time) error
	CreateMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, threadID string) ([]models.MessageDetail, error)
	LatestMessages(ctx context.Context, threadIDs []string) (map[string]models.Message, error)
}

type messageUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type unreadCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MessageService provides messaging and announcement use cases. Unread
// counters are cached in Redis with a short TTL and dropped on every write.
type MessageService struct {
	repo      messageRepository
	users     messageUserRepository
	courses   gateCourseRepository
	access    courseAccessChecker
	cache     unreadCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessageService constructs a MessageService instance.
func NewMessageService(repo messageRepository, users messageUserRepository, courses gateCourseRepository, access courseAccessChecker, cache unreadCache, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MessageService{repo: repo, users: users, courses: courses, access: access, cache: cache, validator: validate, logger: logger}
}

// Inbox returns the actor's threads decorated with sender names, previews
// and unread flags.
func (s *MessageService) Inbox(ctx context.Context, claims *models.JWTClaims, limit, skip int) ([]models.ThreadSummary, error) {
	threads, err := s.repo.ListThreadsForUser(ctx, claims.UserID, limit, skip)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list threads")
	}

	ids := make([]string, len(threads))
	for i, thread := range threads {
		ids[i] = thread.ID
	}
	latest, err := s.repo.LatestMessages(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load inbox previews", zap.Error(err))
		latest = map[string]models.Message{}
	}

	summaries := make([]models.ThreadSummary, 0, len(threads))
	for _, thread := range threads {
		summary := models.ThreadSummary{MessageThread: thread, Unread: !contains(thread.ReadBy, claims.UserID)}
		if msg, ok := latest[thread.ID]; ok {
			summary.Preview = preview(msg.Content)
			if sender, err := s.users.FindByID(ctx, msg.SenderID); err == nil {
				summary.SenderName = sender.FirstName + " " + sender.LastName
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// CreateThread opens a direct conversation, or posts a course announcement
// when the type says so. Announcements require editing rights on the course.
func (s *MessageService) CreateThread(ctx context.Context, claims *models.JWTClaims, req models.CreateThreadRequest) (*models.MessageThread, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid thread payload")
	}

	threadType := req.Type
	if threadType == "" {
		threadType = models.ThreadTypeMessage
	}

	thread := &models.MessageThread{
		Subject:   req.Subject,
		Type:      threadType,
		CourseID:  req.CourseID,
		CreatedBy: claims.UserID,
		ReadBy:    models.StringList{claims.UserID},
	}

	switch threadType {
	case models.ThreadTypeMessage:
		if req.RecipientID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "recipient is required for direct messages")
		}
		if req.RecipientID == claims.UserID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cannot message yourself")
		}
		if _, err := s.users.FindByID(ctx, req.RecipientID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipient")
		}
		thread.RecipientID = req.RecipientID
		thread.Participants = models.StringList{claims.UserID, req.RecipientID}
	case models.ThreadTypeAnnouncement:
		if req.CourseID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "announcements require a course")
		}
		course, err := s.courses.FindByID(ctx, *req.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		if err := s.access.CanEdit(ctx, claims, course); err != nil {
			return nil, err
		}
		thread.RecipientID = ""
		thread.Participants = models.StringList{claims.UserID}
	}

	if err := s.repo.CreateThread(ctx, thread); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create thread")
	}

	if err := s.repo.CreateMessage(ctx, &models.Message{
		ThreadID: thread.ID,
		SenderID: claims.UserID,
		Content:  req.Content,
		ReadBy:   models.StringList{claims.UserID},
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create message")
	}

	s.dropUnreadCounters(ctx, thread)
	return thread, nil
}

// GetThread returns a thread with its messages and marks it read for the
// actor. Only participants may read it; announcements also open to anyone
// who can view the course.
func (s *MessageService) GetThread(ctx context.Context, claims *models.JWTClaims, threadID string) (*models.MessageThread, []models.MessageDetail, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireReadAccess(ctx, claims, thread); err != nil {
		return nil, nil, err
	}

	messages, err := s.repo.ListMessages(ctx, threadID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}

	if err := s.repo.MarkThreadRead(ctx, threadID, claims.UserID); err != nil {
		s.logger.Warn("failed to mark thread read", zap.Error(err))
	} else if s.cache != nil {
		if err := s.cache.Delete(ctx, unreadCacheKey(claims.UserID)); err != nil {
			s.logger.Warn("failed to drop unread counter", zap.Error(err))
		}
	}
	return thread, messages, nil
}

// Reply appends a message to a thread and flags it unread for the other
// participants.
func (s *MessageService) Reply(ctx context.Context, claims *models.JWTClaims, threadID string, req models.ReplyRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reply payload")
	}
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireReadAccess(ctx, claims, thread); err != nil {
		return nil, err
	}

	message := &models.Message{
		ThreadID: threadID,
		SenderID: claims.UserID,
		Content:  req.Content,
		ReadBy:   models.StringList{claims.UserID},
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create message")
	}
	if err := s.repo.TouchThread(ctx, threadID, claims.UserID, message.CreatedAt); err != nil {
		s.logger.Warn("failed to bump thread", zap.Error(err))
	}

	s.dropUnreadCounters(ctx, thread)
	return message, nil
}

// UnreadCount returns how many threads await the actor, cached briefly.
func (s *MessageService) UnreadCount(ctx context.Context, claims *models.JWTClaims) (int, error) {
	key := unreadCacheKey(claims.UserID)
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	count, err := s.repo.CountUnread(ctx, claims.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread threads")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, unreadCacheTTL); err != nil {
			s.logger.Warn("failed to cache unread counter", zap.Error(err))
		}
	}
	return count, nil
}

// Announcements returns a course's announcement threads after the view gate.
func (s *MessageService) Announcements(ctx context.Context, claims *models.JWTClaims, courseID string) ([]models.MessageThread, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.access.CanView(ctx, claims, course); err != nil {
		return nil, err
	}
	threads, err := s.repo.ListAnnouncements(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return threads, nil
}

func (s *MessageService) loadThread(ctx context.Context, threadID string) (*models.MessageThread, error) {
	thread, err := s.repo.FindThread(ctx, threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "thread not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load thread")
	}
	return thread, nil
}

func (s *MessageService) requireReadAccess(ctx context.Context, claims *models.JWTClaims, thread *models.MessageThread) error {
	if contains(thread.Participants, claims.UserID) || claims.Role == models.RoleAdmin {
		return nil
	}
	if thread.Type == models.ThreadTypeAnnouncement && thread.CourseID != nil {
		course, err := s.courses.FindByID(ctx, *thread.CourseID)
		if err == nil && s.access.CanView(ctx, claims, course) == nil {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not a participant of this thread")
}

// dropUnreadCounters invalidates the cached counter of everyone in the
// thread so the next poll reflects the new message.
func (s *MessageService) dropUnreadCounters(ctx context.Context, thread *models.MessageThread) {
	if s.cache == nil {
		return
	}
	for _, userID := range thread.Participants {
		if err := s.cache.Delete(ctx, unreadCacheKey(userID)); err != nil {
			s.logger.Warn("failed to drop unread counter", zap.Error(err))
		}
	}
}

func unreadCacheKey(userID string) string {
	return "unread:" + userID
}

func contains(list models.StringList, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func preview(content string) string {
	const max = 120
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
