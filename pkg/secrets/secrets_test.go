package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dochost/pkg/domain-errors"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("Password123")
	require.NoError(t, err)
	require.NotEqual(t, "Password123", hash)

	assert.NoError(t, Verify("Password123", hash))

	err = Verify("wrong", hash)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestHashRejectsEmptySecret(t *testing.T) {
	_, err := Hash("")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGenerateProducesUniqueSecrets(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("token", "token"))
	assert.False(t, Equal("token", "other"))
	assert.False(t, Equal("", "token"))
	assert.True(t, Equal("", ""))
}
