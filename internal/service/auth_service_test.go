package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/drive-api/internal/models"
	appErrors "github.com/noah-isme/drive-api/pkg/errors"
)

type authRepoMock struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
	created []*models.User
}

func (m *authRepoMock) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *authRepoMock) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *authRepoMock) Create(ctx context.Context, user *models.User) error {
	m.created = append(m.created, user)
	return nil
}

func (m *authRepoMock) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "drive-api"}
}

func TestRegisterCreatesRegularUser(t *testing.T) {
	repo := &authRepoMock{}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, info.Role)

	require.Len(t, repo.created, 1)
	assert.NotEqual(t, "secret1", repo.created[0].PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created[0].PasswordHash), []byte("secret1")))
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	repo := &authRepoMock{byEmail: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com"},
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret1",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestLoginIssuesValidatableToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &authRepoMock{byEmail: map[string]*models.User{
		"alice@example.com": {ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: string(hash), Role: models.RoleUser},
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestLoginWrongPasswordIsRejected(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &authRepoMock{byEmail: map[string]*models.User{
		"alice@example.com": {ID: "u1", Email: "alice@example.com", PasswordHash: string(hash)},
	}}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "alice@example.com", Password: "wrong"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := NewAuthService(&authRepoMock{}, nil, nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)

	other := NewAuthService(&authRepoMock{}, nil, nil, AuthConfig{Secret: "other-secret", Expiration: time.Hour})
	hash, err := bcrypt.GenerateFromPassword([]byte("pw123456"), bcrypt.DefaultCost)
	require.NoError(t, err)
	repo := &authRepoMock{byEmail: map[string]*models.User{
		"a@example.com": {ID: "u1", Email: "a@example.com", PasswordHash: string(hash)},
	}}
	issuer := NewAuthService(repo, nil, nil, testAuthConfig())
	res, err := issuer.Login(context.Background(), models.LoginRequest{Email: "a@example.com", Password: "pw123456"})
	require.NoError(t, err)

	_, err = other.ValidateToken(res.AccessToken)
	require.Error(t, err)
}
