package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := GenerateSessionToken("secret", "user-123", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := ValidateSessionToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestSessionTokenWrongSecret(t *testing.T) {
	token, err := GenerateSessionToken("secret", "user-123", time.Hour)
	require.NoError(t, err)

	_, err = ValidateSessionToken("other-secret", token)
	assert.Error(t, err)
}

func TestSessionTokenExpired(t *testing.T) {
	token, err := GenerateSessionToken("secret", "user-123", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateSessionToken("secret", token)
	assert.Error(t, err)
}

func TestSessionTokenGarbage(t *testing.T) {
	_, err := ValidateSessionToken("secret", "not-a-token")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)

	assert.True(t, CheckPasswordHash("secret123", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
