package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-live/internal/model"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)
	grade := 10

	token, err := auth.GenerateToken(model.Identity{ID: 7, Name: "Ayu", Role: model.RoleStudent, Grade: &grade})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	id := claims.Identity()
	assert.Equal(t, 7, id.ID)
	assert.Equal(t, "Ayu", id.Name)
	assert.Equal(t, model.RoleStudent, id.Role)
	g, ok := id.GradeLevel()
	assert.True(t, ok)
	assert.Equal(t, 10, g)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)

	other, err := NewAuthService("other", time.Hour).GenerateToken(model.Identity{ID: 1, Role: model.RoleTeacher})
	require.NoError(t, err)
	_, err = auth.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewAuthService("secret", -time.Minute).GenerateToken(model.Identity{ID: 1, Role: model.RoleTeacher})
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: model.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 1, Role: "janitor"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = auth.ValidateToken(badRole)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_GenerateValidatesIdentity(t *testing.T) {
	auth := NewAuthService("secret", time.Hour)

	_, err := auth.GenerateToken(model.Identity{ID: 1, Role: "janitor"})
	assert.Error(t, err)
	_, err = auth.GenerateToken(model.Identity{ID: 0, Role: model.RoleAdmin})
	assert.Error(t, err)
}
