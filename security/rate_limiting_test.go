package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

const testWindow = time.Minute

func TestAllowWithinLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, testWindow)

	// First hit claims the window together with its expiry.
	mock.ExpectSetNX("ratelimit:checkin:op1", 0, testWindow).SetVal(true)
	mock.ExpectIncr("ratelimit:checkin:op1").SetVal(1)
	assert.NoError(t, limiter.Allow(context.Background(), "checkin:op1"))

	mock.ExpectSetNX("ratelimit:checkin:op1", 0, testWindow).SetVal(false)
	mock.ExpectIncr("ratelimit:checkin:op1").SetVal(2)
	assert.NoError(t, limiter.Allow(context.Background(), "checkin:op1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowExhaustedWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 2, testWindow)

	mock.ExpectSetNX("ratelimit:orders:op1", 0, testWindow).SetVal(false)
	mock.ExpectIncr("ratelimit:orders:op1").SetVal(3)

	assert.ErrorIs(t, limiter.Allow(context.Background(), "orders:op1"), ErrRateLimited)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowRedisDownNeverBlocks(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, 1, testWindow)

	mock.ExpectSetNX("ratelimit:checkin:op1", 0, testWindow).SetErr(errors.New("connection refused"))
	mock.ExpectIncr("ratelimit:checkin:op1").SetErr(errors.New("connection refused"))

	assert.NoError(t, limiter.Allow(context.Background(), "checkin:op1"))
}
