package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tradelens/backend/internal/logger"
)

// Failure kinds. A *Error always wraps exactly one of these.
var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")
	ErrNotFound         = errors.New("not found")
	ErrRejected         = errors.New("rejected")
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultAttempts  = 3
	DefaultBaseDelay = 2 * time.Second
)

// StatusError is returned by a wrapped call that got a non-2xx answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Error is the single failure surfaced after all attempts are spent.
type Error struct {
	Op       string
	Kind     error
	Attempts int
	Timeout  time.Duration
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return fmt.Sprintf("%s: the store did not respond within %s (%d attempts)", e.Op, e.Timeout, e.Attempts)
	case ErrConnectionFailed:
		return fmt.Sprintf("%s: could not connect to the store after %d attempts: %v", e.Op, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Config controls the resilience policy. Zero fields take the defaults.
type Config struct {
	Timeout   time.Duration
	Attempts  int
	BaseDelay time.Duration
}

// Transport decorates calls with a per-attempt timeout and bounded
// exponential backoff. It holds no state between calls.
type Transport struct {
	cfg Config
}

func New(cfg Config) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return &Transport{cfg: cfg}
}

// newBackOff waits BaseDelay * 2^(n-1) after the n-th failed attempt.
func (t *Transport) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = t.cfg.BaseDelay << uint(t.cfg.Attempts)
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.cfg.Attempts-1)), ctx)
}

// Do runs fn until it succeeds, fails permanently, or runs out of attempts.
// Each attempt gets its own deadline derived from ctx.
func (t *Transport) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	var lastKind error

	attempt := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			lastKind = ErrConnectionFailed
			return backoff.Permanent(ctx.Err())
		}

		kind := t.classify(actx, err)
		lastKind = kind
		if kind == ErrNotFound || kind == ErrRejected {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.WithStore(op).WithFields(map[string]interface{}{
			"attempt": attempts,
			"wait":    wait.String(),
			"error":   err.Error(),
		}).Warn("Store call failed, retrying")
	}

	err := backoff.RetryNotify(attempt, t.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	if lastKind == nil {
		lastKind = ErrConnectionFailed
	}
	return &Error{
		Op:       op,
		Kind:     lastKind,
		Attempts: attempts,
		Timeout:  t.cfg.Timeout,
		Err:      err,
	}
}

func (t *Transport) classify(actx context.Context, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 404:
			return ErrNotFound
		case se.Code >= 400 && se.Code < 500:
			return ErrRejected
		default:
			return ErrConnectionFailed
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return ErrConnectionFailed
}
