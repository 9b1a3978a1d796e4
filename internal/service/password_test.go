package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndVerify(t *testing.T) {
	svc := NewPasswordService()

	hash, err := svc.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := svc.Verify("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashIsSalted(t *testing.T) {
	svc := NewPasswordService()

	first, err := svc.Hash("secret")
	require.NoError(t, err)
	second, err := svc.Hash("secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestPasswordVerifyRejectsMalformedHash(t *testing.T) {
	svc := NewPasswordService()

	for _, stored := range []string{"", "plaintext", "$bcrypt$whatever", "$argon2id$v=19$m=65536,t=3,p=2$salt"} {
		_, err := svc.Verify("secret", stored)
		assert.Error(t, err, "stored %q", stored)
	}
}
