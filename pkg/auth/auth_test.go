package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "secret"

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)

	token, err := issuer.Issue("uid-1")
	require.NoError(t, err)

	sub, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", sub)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Minute)

	token, err := issuer.Issue("uid-1")
	require.NoError(t, err)

	mutated := token[:len(token)-2] + "xx"
	_, err = issuer.Verify(mutated)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer(testSecret, time.Minute).Issue("uid-1")
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Minute).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, -time.Second)

	token, err := issuer.Issue("uid-1")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	phc, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(phc, "$argon2id$"))

	ok, err := VerifyPassword("hunter2", phc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", phc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	_, err := VerifyPassword("x", "not a phc string")
	assert.ErrorIs(t, err, ErrMalformedHash)

	_, err = VerifyPassword("x", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA")
	assert.ErrorIs(t, err, ErrMalformedHash)
}
