package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTransport() *Transport {
	return New(Config{Timeout: 50 * time.Millisecond, Attempts: 3, BaseDelay: 10 * time.Millisecond})
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	tr := fastTransport()
	calls := 0

	err := tr.Do(context.Background(), "list files", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoBacksOffExponentially(t *testing.T) {
	tr := fastTransport()
	var stamps []time.Time

	start := time.Now()
	err := tr.Do(context.Background(), "health", func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("connection refused")
	})
	require.Error(t, err)
	require.Len(t, stamps, 3)

	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDoSurfacesConnectionFailed(t *testing.T) {
	tr := fastTransport()

	err := tr.Do(context.Background(), "get file", func(ctx context.Context) error {
		return &StatusError{Code: 503, Message: "database down"}
	})

	var te *Error
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, te.Attempts)
	assert.Contains(t, err.Error(), "could not connect")
}

func TestDoSurfacesTimeout(t *testing.T) {
	tr := fastTransport()
	calls := 0

	err := tr.Do(context.Background(), "stats", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "did not respond within 50ms")
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		kind error
	}{
		{"not found", 404, ErrNotFound},
		{"conflict", 409, ErrRejected},
		{"bad request", 400, ErrRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := fastTransport()
			calls := 0
			err := tr.Do(context.Background(), "put file", func(ctx context.Context) error {
				calls++
				return &StatusError{Code: tt.code}
			})

			assert.Equal(t, 1, calls)
			assert.ErrorIs(t, err, tt.kind)
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
		})
	}
}

func TestDoStopsWhenCallerCancels(t *testing.T) {
	tr := New(Config{Timeout: time.Second, Attempts: 3, BaseDelay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := tr.Do(ctx, "list files", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAppliesDefaults(t *testing.T) {
	tr := New(Config{})
	assert.Equal(t, DefaultTimeout, tr.cfg.Timeout)
	assert.Equal(t, DefaultAttempts, tr.cfg.Attempts)
	assert.Equal(t, DefaultBaseDelay, tr.cfg.BaseDelay)
}
