package auth

import (
	"context"
	"testing"
	"time"

	"quiz-exam-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tokens := NewTokens("secret")
	raw, err := tokens.Issue("teacher-1", domain.RoleTeacher, time.Hour)
	require.NoError(t, err)

	caller, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{ID: "teacher-1", Role: domain.RoleTeacher}, caller)
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	_, err := NewTokens("secret").Issue("u1", domain.Role("guest"), time.Hour)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestParseRejectsBadTokens(t *testing.T) {
	tokens := NewTokens("secret")
	other, err := NewTokens("other").Issue("u1", domain.RoleStudent, time.Hour)
	require.NoError(t, err)

	expired := NewTokens("secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue("u1", domain.RoleStudent, time.Hour)
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "u1"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": other,
		"expired":      stale,
		"missing role": noRole,
		"empty":        "",
	} {
		_, err := tokens.Parse(raw)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated, name)
	}
}

func TestCallerContext(t *testing.T) {
	_, ok := CallerFrom(context.Background())
	assert.False(t, ok)

	ctx := WithCaller(context.Background(), domain.Caller{ID: "s1", Role: domain.RoleStudent})
	caller, ok := CallerFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "s1", caller.ID)
}
