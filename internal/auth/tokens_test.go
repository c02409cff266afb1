package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour).WithClock(func() time.Time { return now })
	userID := uuid.New()

	pair, err := issuer.Issue(userID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), pair.AccessExpiresAt)
	assert.Equal(t, now.Add(24*time.Hour), pair.RefreshExpiresAt)

	got, err := issuer.Parse(pair.Access, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = issuer.Parse(pair.Refresh, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = issuer.Parse(pair.Access, RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour).WithClock(func() time.Time { return now })
	pair, err := issuer.Issue(uuid.New())
	require.NoError(t, err)

	later := NewIssuer("secret", time.Hour, 24*time.Hour).WithClock(func() time.Time { return now.Add(61 * time.Minute) })
	_, err = later.Parse(pair.Access, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = later.Parse(pair.Refresh, RefreshToken)
	assert.NoError(t, err)

	other := NewIssuer("other-secret", time.Hour, 24*time.Hour).WithClock(func() time.Time { return now })
	_, err = other.Parse(pair.Access, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": uuid.NewString(), "typ": "access", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(unsigned, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-token", AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshIssuesNewPair(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour)
	userID := uuid.New()
	pair, err := issuer.Issue(userID)
	require.NoError(t, err)

	got, next, err := issuer.Refresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.NotEqual(t, pair.Access, next.Access)

	_, _, err = issuer.Refresh(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
