package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type messageRepoStub struct {
	threads map[string]*models.MessageThread
	inbox   []models.MessageThread
	latest  map[string]models.Message
	unread  int

	createdThread  *models.MessageThread
	createdMessage *models.Message
	markedRead     []string
}

func (s *messageRepoStub) CreateThread(ctx context.Context, thread *models.MessageThread) error {
	thread.ID = "th-new"
	s.createdThread = thread
	return nil
}

func (s *messageRepoStub) FindThread(ctx context.Context, id string) (*models.MessageThread, error) {
	if t, ok := s.threads[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (s *messageRepoStub) ListThreadsForUser(ctx context.Context, userID string, limit, skip int) ([]models.MessageThread, error) {
	return s.inbox, nil
}

func (s *messageRepoStub) ListAnnouncements(ctx context.Context, courseID string) ([]models.MessageThread, error) {
	return nil, nil
}

func (s *messageRepoStub) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.unread, nil
}

func (s *messageRepoStub) MarkThreadRead(ctx context.Context, threadID, userID string) error {
	s.markedRead = append(s.markedRead, threadID+"/"+userID)
	return nil
}

func (s *messageRepoStub) TouchThread(ctx context.Context, threadID, senderID string, at time.Time) error {
	return nil
}

func (s *messageRepoStub) CreateMessage(ctx context.Context, message *models.Message) error {
	s.createdMessage = message
	return nil
}

func (s *messageRepoStub) ListMessages(ctx context.Context, threadID string) ([]models.MessageDetail, error) {
	return nil, nil
}

func (s *messageRepoStub) LatestMessages(ctx context.Context, threadIDs []string) (map[string]models.Message, error) {
	return s.latest, nil
}

type cacheStub struct {
	values  map[string]int
	deleted []string
	sets    map[string]int
}

func newCacheStub() *cacheStub {
	return &cacheStub{values: map[string]int{}, sets: map[string]int{}}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*int) = v
	return nil
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets[key] = value.(int)
	return nil
}

func (c *cacheStub) Delete(ctx context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	return nil
}

func messageFixture() (*messageRepoStub, *cacheStub, *MessageService) {
	repo := &messageRepoStub{
		threads: map[string]*models.MessageThread{
			"th1": {
				ID:           "th1",
				Subject:      "Duda sobre la entrega",
				Type:         models.ThreadTypeMessage,
				CreatedBy:    "u1",
				RecipientID:  "u2",
				Participants: models.StringList{"u1", "u2"},
				ReadBy:       models.StringList{"u1"},
			},
		},
		latest: map[string]models.Message{},
	}
	users := &userLookupStub{users: map[string]*models.User{
		"u1": {ID: "u1", FirstName: "Ana", LastName: "García", Status: models.UserStatusActive},
		"u2": {ID: "u2", FirstName: "Luis", LastName: "Pérez", Status: models.UserStatusActive},
	}}
	cache := newCacheStub()
	courses := &courseLookupStub{course: &models.Course{ID: "c1", Status: models.CourseStatusPublished, Visible: true, CreatedBy: "owner"}}
	svc := NewMessageService(repo, users, courses, openAccess{}, cache, nil, nil)
	return repo, cache, svc
}

func TestCreateThreadDirectMessage(t *testing.T) {
	repo, cache, svc := messageFixture()

	thread, err := svc.CreateThread(context.Background(), claimsFor(models.RoleStudent, "u1"), models.CreateThreadRequest{
		Subject:     "Hola",
		Content:     "¿Tienes un momento?",
		RecipientID: "u2",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ThreadTypeMessage, thread.Type)
	assert.Equal(t, models.StringList{"u1", "u2"}, thread.Participants)
	require.NotNil(t, repo.createdMessage)
	assert.Equal(t, "th-new", repo.createdMessage.ThreadID)

	// both participants get their unread counters dropped
	assert.Contains(t, cache.deleted, "unread:u1")
	assert.Contains(t, cache.deleted, "unread:u2")
}

func TestCreateThreadRejectsSelfMessage(t *testing.T) {
	_, _, svc := messageFixture()

	_, err := svc.CreateThread(context.Background(), claimsFor(models.RoleStudent, "u1"), models.CreateThreadRequest{
		Subject:     "Nota",
		Content:     "para mí",
		RecipientID: "u1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestCreateThreadUnknownRecipient(t *testing.T) {
	_, _, svc := messageFixture()

	_, err := svc.CreateThread(context.Background(), claimsFor(models.RoleStudent, "u1"), models.CreateThreadRequest{
		Subject:     "Hola",
		Content:     "¿estás ahí?",
		RecipientID: "ghost",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestCreateAnnouncementRequiresCourse(t *testing.T) {
	repo, _, svc := messageFixture()

	_, err := svc.CreateThread(context.Background(), claimsFor(models.RoleTeacher, "owner"), models.CreateThreadRequest{
		Subject: "Cambio de aula",
		Content: "La clase del lunes pasa al aula 2",
		Type:    models.ThreadTypeAnnouncement,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	courseID := "c1"
	thread, err := svc.CreateThread(context.Background(), claimsFor(models.RoleTeacher, "owner"), models.CreateThreadRequest{
		Subject:  "Cambio de aula",
		Content:  "La clase del lunes pasa al aula 2",
		Type:     models.ThreadTypeAnnouncement,
		CourseID: &courseID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"owner"}, thread.Participants)
	assert.NotNil(t, repo.createdThread)
}

func TestGetThreadParticipantsOnly(t *testing.T) {
	repo, cache, svc := messageFixture()

	_, _, err := svc.GetThread(context.Background(), claimsFor(models.RoleStudent, "intruder"), "th1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	_, _, err = svc.GetThread(context.Background(), claimsFor(models.RoleStudent, "u2"), "th1")
	require.NoError(t, err)
	assert.Contains(t, repo.markedRead, "th1/u2")
	assert.Contains(t, cache.deleted, "unread:u2")

	// admins can read any thread
	_, _, err = svc.GetThread(context.Background(), claimsFor(models.RoleAdmin, "root"), "th1")
	require.NoError(t, err)
}

func TestUnreadCountUsesCache(t *testing.T) {
	repo, cache, svc := messageFixture()
	repo.unread = 4

	count, err := svc.UnreadCount(context.Background(), claimsFor(models.RoleStudent, "u2"))
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 4, cache.sets["unread:u2"])

	// a warm cache short-circuits the repository
	cache.values["unread:u2"] = 9
	repo.unread = 0
	count, err = svc.UnreadCount(context.Background(), claimsFor(models.RoleStudent, "u2"))
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}

func TestInboxFlagsUnreadAndPreviews(t *testing.T) {
	repo, _, svc := messageFixture()
	long := strings.Repeat("palabra ", 40)
	repo.inbox = []models.MessageThread{
		{ID: "th1", ReadBy: models.StringList{"u2"}},
		{ID: "th2", ReadBy: models.StringList{}},
	}
	repo.latest = map[string]models.Message{
		"th1": {ThreadID: "th1", SenderID: "u1", Content: "corto"},
		"th2": {ThreadID: "th2", SenderID: "u1", Content: long},
	}

	summaries, err := svc.Inbox(context.Background(), claimsFor(models.RoleStudent, "u2"), 20, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.False(t, summaries[0].Unread)
	assert.Equal(t, "corto", summaries[0].Preview)
	assert.Equal(t, "Ana García", summaries[0].SenderName)

	assert.True(t, summaries[1].Unread)
	assert.Len(t, []rune(summaries[1].Preview), 121)
	assert.True(t, strings.HasSuffix(summaries[1].Preview, "…"))
}

func TestReplyDropsCountersForAll(t *testing.T) {
	repo, cache, svc := messageFixture()

	message, err := svc.Reply(context.Background(), claimsFor(models.RoleStudent, "u2"), "th1", models.ReplyRequest{Content: "Claro, dime"})
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"u2"}, message.ReadBy)
	assert.Same(t, message, repo.createdMessage)
	assert.Contains(t, cache.deleted, "unread:u1")
	assert.Contains(t, cache.deleted, "unread:u2")
}
