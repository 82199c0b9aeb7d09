package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("lms/courses/abc123.png")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	publicID, parsedExp, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "lms/courses/abc123.png", publicID)
	assert.Equal(t, expiresAt.Unix(), parsedExp.Unix())
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("lms/courses/abc123.png")
	require.NoError(t, err)

	_, _, err = signer.Parse(token + "x")
	assert.Error(t, err)

	other := NewSignedURLSigner("other-secret", time.Minute)
	_, _, err = other.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", -time.Minute)

	token, _, err := signer.Generate("lms/courses/abc123.png")
	require.NoError(t, err)

	_, _, err = signer.Parse(token)
	assert.Error(t, err)
}
