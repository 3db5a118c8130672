// Package resilience wraps dependency calls in a timeout, a bounded retry and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned without calling the dependency while the breaker is open.
var ErrOpen = errors.New("resilience: circuit open")

type Policy struct {
	Name           string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// breaker trips once MinRequests calls were seen in the window and the failure ratio reaches FailureRatio
	MinRequests  uint32
	FailureRatio float64
	Window       time.Duration
	OpenTimeout  time.Duration
	HalfOpenMax  uint32
}

func DefaultPolicy(name string) Policy {
	return Policy{
		Name:           name,
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		MinRequests:    5,
		FailureRatio:   0.5,
		Window:         60 * time.Second,
		OpenTimeout:    30 * time.Second,
		HalfOpenMax:    1,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an answer from a healthy dependency (for example "not found"):
// it is neither retried nor counted against the breaker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Executor struct {
	policy Policy
	cb     *gobreaker.CircuitBreaker
}

func New(log *slog.Logger, p Policy) *Executor {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	st := gobreaker.Settings{
		Name:        p.Name,
		MaxRequests: p.HalfOpenMax,
		Interval:    p.Window,
		Timeout:     p.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= p.MinRequests && float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "dependency", name, "from", from.String(), "to", to.String())
		},
	}
	return &Executor{policy: p, cb: gobreaker.NewCircuitBreaker(st)}
}

func (e *Executor) Name() string           { return e.policy.Name }
func (e *Executor) State() gobreaker.State { return e.cb.State() }

// Do runs fn under the policy. Each attempt gets its own timeout.
func Do[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.policy.InitialBackoff
	bo.MaxInterval = e.policy.MaxBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.policy.MaxAttempts-1)), ctx)

	return backoff.RetryWithData(func() (T, error) {
		var zero T
		v, err := e.cb.Execute(func() (any, error) {
			actx := ctx
			if e.policy.Timeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
				defer cancel()
			}
			return fn(actx)
		})
		switch {
		case err == nil:
			return v.(T), nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return zero, backoff.Permanent(ErrOpen)
		case IsPermanent(err), ctx.Err() != nil:
			return zero, backoff.Permanent(err)
		default:
			return zero, err
		}
	}, retry)
}
