package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.Reservation.PaymentTimeout)
	assert.False(t, cfg.Reservation.AutoAcceptPaid)
	assert.Equal(t, 3, cfg.Payment.RetryAttempts)
	assert.False(t, cfg.RabbitMQ.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT", "2m")
	t.Setenv("AUTO_ACCEPT_PAID", "true")
	t.Setenv("SWEEP_BATCH_SIZE", "25")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PAYMENT_RETRY_ATTEMPTS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 2*time.Minute, cfg.Reservation.PaymentTimeout)
	assert.True(t, cfg.Reservation.AutoAcceptPaid)
	assert.Equal(t, 25, cfg.Reservation.SweepBatchSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 3, cfg.Payment.RetryAttempts, "invalid values fall back to the default")
}
