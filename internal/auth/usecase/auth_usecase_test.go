package usecase

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "a-test-secret-of-some-length"

func TestIssueAndValidateToken(t *testing.T) {
	uc, err := NewAuthUsecase(secret, time.Hour)
	require.NoError(t, err)

	resp, err := uc.IssueToken("  ops  ")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, 2*time.Second)

	op, err := uc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops", op.Name)
	assert.NotEmpty(t, op.TokenID)

	_, err = uc.IssueToken("")
	assert.Error(t, err)
}

func TestValidateTokenRejects(t *testing.T) {
	uc, err := NewAuthUsecase(secret, time.Hour)
	require.NoError(t, err)
	other, err := NewAuthUsecase("another-secret-entirely", time.Hour)
	require.NoError(t, err)

	foreign, err := other.IssueToken("ops")
	require.NoError(t, err)
	_, err = uc.ValidateToken(foreign.AccessToken)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"operator": "ops",
		"exp":      time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := expired.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = uc.ValidateToken(signed)
	assert.Error(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"operator": "ops"})
	signed, err = noExpiry.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = uc.ValidateToken(signed)
	assert.Error(t, err)

	noOperator := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	signed, err = noOperator.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = uc.ValidateToken(signed)
	assert.Error(t, err)

	_, err = uc.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestNewAuthUsecaseRequiresSecret(t *testing.T) {
	_, err := NewAuthUsecase("short", time.Hour)
	assert.Error(t, err)
}
