package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aulalabs/aula-api/internal/models"
	appErrors "github.com/aulalabs/aula-api/pkg/errors"
)

type authRepoStub struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
	resets  map[string]*models.PasswordReset

	createdReset    *models.PasswordReset
	createdUser     *models.User
	updatedPassword string
	usedResetID     string
	lastLogin       *time.Time
}

func (s *authRepoStub) Create(ctx context.Context, user *models.User) error {
	user.ID = "new-user"
	s.createdUser = user
	s.byEmail[user.Email] = user
	return nil
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin = &ts
	return nil
}

func (s *authRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.updatedPassword = passwordHash
	return nil
}

func (s *authRepoStub) CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error {
	s.createdReset = reset
	return nil
}

func (s *authRepoStub) FindPasswordReset(ctx context.Context, token string) (*models.PasswordReset, error) {
	if r, ok := s.resets[token]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) MarkPasswordResetUsed(ctx context.Context, id string) error {
	s.usedResetID = id
	return nil
}

func authFixture(t *testing.T) (*authRepoStub, *AuthService) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secreto123"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &authRepoStub{
		byEmail: map[string]*models.User{
			"ana@example.com": {
				ID:           "u1",
				Email:        "ana@example.com",
				FirstName:    "Ana",
				LastName:     "García",
				Role:         models.RoleTeacher,
				Status:       models.UserStatusActive,
				PasswordHash: string(hash),
			},
			"baja@example.com": {
				ID:           "u2",
				Email:        "baja@example.com",
				Status:       models.UserStatusInactive,
				PasswordHash: string(hash),
			},
		},
		byID:   map[string]*models.User{},
		resets: map[string]*models.PasswordReset{},
	}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: time.Hour,
		Issuer:      "aula-api-test",
	})
	return repo, svc
}

func TestRegisterCreatesStudentAndLogsIn(t *testing.T) {
	repo, svc := authFixture(t)

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:     "Nuevo@Example.com",
		Password:  "secreto123",
		FirstName: "Nuevo",
		LastName:  "Alumno",
	})
	require.NoError(t, err)
	require.NotNil(t, repo.createdUser)
	assert.Equal(t, "nuevo@example.com", repo.createdUser.Email)
	assert.Equal(t, models.RoleStudent, repo.createdUser.Role)
	assert.Equal(t, models.UserStatusActive, repo.createdUser.Status)
	assert.Equal(t, "es", repo.createdUser.Language)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "new-user", resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestRegisterRejectsTakenEmail(t *testing.T) {
	repo, svc := authFixture(t)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:     "ana@example.com",
		Password:  "secreto123",
		FirstName: "Otra",
		LastName:  "Ana",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
	assert.Nil(t, repo.createdUser)
}

func TestLoginIssuesValidToken(t *testing.T) {
	repo, svc := authFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secreto123"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "u1", resp.User.ID)
	require.NotNil(t, repo.lastLogin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "aula-api-test", claims.Issuer)
}

func TestLoginWrongPassword(t *testing.T) {
	_, svc := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "incorrecta"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errorCode(t, err))
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	_, svc := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nadie@example.com", Password: "secreto123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errorCode(t, err))
}

func TestLoginInactiveAccount(t *testing.T) {
	_, svc := authFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "baja@example.com", Password: "secreto123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, errorCode(t, err))
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	_, svc := authFixture(t)
	other := NewAuthService(&authRepoStub{}, nil, nil, AuthConfig{TokenSecret: "another-secret", TokenExpiry: time.Hour})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secreto123"})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, err))

	_, err = svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, err))
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	repo, svc := authFixture(t)

	token, err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "nadie@example.com"})
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Nil(t, repo.createdReset)

	token, err = svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	require.NotNil(t, repo.createdReset)
	assert.Equal(t, "u1", repo.createdReset.UserID)
	assert.Equal(t, token, repo.createdReset.Token)
}

func TestResetPasswordConsumesToken(t *testing.T) {
	repo, svc := authFixture(t)
	repo.resets["tok-1"] = &models.PasswordReset{ID: "r1", UserID: "u1", Token: "tok-1"}

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: "tok-1", NewPassword: "nuevaclave99"})
	require.NoError(t, err)
	assert.Equal(t, "r1", repo.usedResetID)
	require.NotEmpty(t, repo.updatedPassword)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.updatedPassword), []byte("nuevaclave99")))

	err = svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: "expired", NewPassword: "nuevaclave99"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}
