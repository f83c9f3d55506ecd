package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideshare/internal/domain"
)

func TestManager_RoundTrip(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", "rideshare", time.Hour)

	for _, role := range []domain.Role{domain.RolePassenger, domain.RoleDriver} {
		token, err := m.GenerateToken(domain.Actor{Role: role, UserID: "user-1"})
		require.NoError(t, err)

		actor, err := m.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, role, actor.Role)
		assert.Equal(t, "user-1", actor.UserID)
	}
}

func TestManager_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", "rideshare", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewManager("other", "rideshare", time.Hour)
		token, err := other.GenerateToken(domain.Actor{Role: domain.RoleDriver, UserID: "d1"})
		require.NoError(t, err)

		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewManager("secret", "rideshare", -time.Minute)
		token, err := expired.GenerateToken(domain.Actor{Role: domain.RoleDriver, UserID: "d1"})
		require.NoError(t, err)

		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewManager("secret", "someone-else", time.Hour)
		token, err := other.GenerateToken(domain.Actor{Role: domain.RoleDriver, UserID: "d1"})
		require.NoError(t, err)

		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("system role", func(t *testing.T) {
		claims := Claims{
			UserID: "system",
			Role:   domain.RoleSystem,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "rideshare",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ParseToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestManager_GenerateTokenValidatesActor(t *testing.T) {
	t.Parallel()

	m := NewManager("secret", "rideshare", time.Hour)

	_, err := m.GenerateToken(domain.Actor{Role: "admin", UserID: "u"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.GenerateToken(domain.Actor{Role: domain.RolePassenger})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestActorContext(t *testing.T) {
	t.Parallel()

	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)

	want := domain.Actor{Role: domain.RolePassenger, UserID: "p1"}
	got, ok := ActorFromContext(WithActor(context.Background(), want))
	require.True(t, ok)
	assert.Equal(t, want, got)
}
