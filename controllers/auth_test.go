package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credit-underwriting-api/middleware"
	"credit-underwriting-api/models"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, CheckPasswordHash("wrong password", hash))
}

func TestGenerateTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	user := models.User{UserID: 7, Email: "ravi@example.com", IsAdmin: true}
	token, err := generateToken(user)
	require.NoError(t, err)

	claims, err := middleware.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID)
	assert.Equal(t, "ravi@example.com", claims.Email)
	assert.True(t, claims.IsAdmin)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := generateToken(models.User{UserID: 7, Email: "ravi@example.com"})
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "a-different-secret")
	_, err = middleware.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	_, err := middleware.ParseToken("not.a.token")
	assert.Error(t, err)
}
