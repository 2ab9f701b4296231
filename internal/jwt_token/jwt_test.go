package jwttoken

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dochost/pkg/domain-errors"
	"dochost/pkg/requestcontext"
)

func newTestService() *JWTService {
	return NewJWTService("test-signing-key-0123456789abcdef", "dochost", 15*time.Minute)
}

func TestGenerateAndValidateSessionToken(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateSessionToken(context.Background(), "testuser")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, "testuser", claims.Subject)
	assert.Equal(t, "dochost", claims.Issuer)
	assert.NotEmpty(t, claims.ID, "tokens carry a unique JTI")
}

func TestGenerateSessionTokenRequiresUsername(t *testing.T) {
	svc := newTestService()

	_, err := svc.GenerateSessionToken(context.Background(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestService()

	past := time.Now().Add(-time.Hour)
	ctx := requestcontext.WithTime(context.Background(), past)
	token, err := svc.GenerateSessionToken(ctx, "testuser")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	svc := newTestService()
	other := NewJWTService("a-completely-different-key-value", "dochost", 15*time.Minute)

	token, err := other.GenerateSessionToken(context.Background(), "testuser")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	svc := newTestService()
	other := NewJWTService("test-signing-key-0123456789abcdef", "someone-else", 15*time.Minute)

	token, err := other.GenerateSessionToken(context.Background(), "testuser")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newTestService()

	_, err := svc.ValidateToken("not.a.jwt")
	require.Error(t, err)

	_, err = svc.ValidateToken("")
	require.Error(t, err)
}
