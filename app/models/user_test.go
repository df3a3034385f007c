package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIssueAPIKey(t *testing.T) {
	u := &User{ID: 1}

	key, err := u.IssueAPIKey()
	require.NoError(t, err)
	require.NotEmpty(t, key)
	assert.True(t, strings.HasPrefix(key, "sfx_"))

	assert.NotEmpty(t, u.APIKeyHash)
	assert.NotEmpty(t, u.APIKeyPrefix)
	assert.NotNil(t, u.APIKeyCreatedAt)
	assert.Nil(t, u.APIKeyLastUsedAt)
	assert.True(t, u.HasActiveAPIKey())
	assert.Equal(t, HashAPIKey(key), u.APIKeyHash)
}

func TestUserRevokeAPIKey(t *testing.T) {
	u := &User{ID: 99}
	_, err := u.IssueAPIKey()
	require.NoError(t, err)

	u.RevokeAPIKey()

	assert.False(t, u.HasActiveAPIKey())
	assert.Equal(t, "", u.APIKeyHash)
	assert.Equal(t, "", u.APIKeyPrefix)
	assert.NotNil(t, u.APIKeyRevokedAt)
}

func TestUserReissueAPIKeyReplacesHash(t *testing.T) {
	u := &User{ID: 7}
	first, err := u.IssueAPIKey()
	require.NoError(t, err)
	firstHash := u.APIKeyHash

	second, err := u.IssueAPIKey()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NotEqual(t, firstHash, u.APIKeyHash)
	assert.True(t, u.HasActiveAPIKey())
}

func TestCreateUser(t *testing.T) {
	u, err := CreateUser("Mia Lehmann", "mia@example.com", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, ROLE_USER, u.Role)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
	assert.NotEqual(t, "s3cret-pass", u.Password)
	assert.True(t, u.CheckPassword("s3cret-pass"))
}

func TestCreateUserRejectsInvalidInput(t *testing.T) {
	_, err := CreateUser("Mia Lehmann", "not-an-email", "s3cret-pass")
	assert.Error(t, err)

	_, err = CreateUser("x", "mia@example.com", "s3cret-pass")
	assert.Error(t, err)

	_, err = CreateUser("Mia Lehmann", "mia@example.com", "short")
	assert.Error(t, err)
}

func TestUserPasswordHashing(t *testing.T) {
	u := &User{}
	require.NoError(t, u.SetPassword("correct horse battery staple"))
	assert.NotEqual(t, "correct horse battery staple", u.Password)
	assert.True(t, u.CheckPassword("correct horse battery staple"))
	assert.False(t, u.CheckPassword("wrong"))
}
