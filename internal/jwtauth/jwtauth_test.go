package jwtauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodia/pkg/domain-errors"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	svc := New("test-key", "custodia")

	token, err := svc.GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	userID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := New("test-key", "custodia")

	token, err := svc.GenerateToken("user-1", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenWrongKey(t *testing.T) {
	token, err := New("key-a", "custodia").GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	_, err = New("key-b", "custodia").ValidateToken(token)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}
