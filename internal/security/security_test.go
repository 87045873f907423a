package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/security"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	tok, err := svc.CreateForUser("alice")
	require.NoError(t, err)

	sub, err := svc.Subject(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestTokenRejected(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	expired, err := svc.CreateWithTTL("alice", -time.Minute)
	require.NoError(t, err)
	_, err = svc.Subject(expired)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	other, err := security.NewTokenService("other", time.Hour).CreateForUser("alice")
	require.NoError(t, err)
	_, err = svc.Subject(other)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Subject("not-a-token")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPasswordHasher(t *testing.T) {
	h := security.NewPasswordHasher(4)

	hashed, err := h.Hash("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hashed)

	assert.NoError(t, h.Verify("hunter2", hashed))
	assert.ErrorIs(t, h.Verify("wrong", hashed), domain.ErrUnauthorized)
}
