package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("ab12cd")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	ref, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "ab12cd", ref)
}

func TestSignedURLSignerRejectsExpiredToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	current := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return current }

	token, _, err := signer.Sign("ab12cd")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = signer.Verify(token)
	require.ErrorContains(t, err, "expired")
}

func TestSignedURLSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("ab12cd")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[1] = "b3RoZXI"
	_, err = signer.Verify(strings.Join(parts, "."))
	require.ErrorContains(t, err, "signature")

	other := NewSignedURLSigner("different", time.Hour)
	_, err = other.Verify(token)
	require.Error(t, err)
}
