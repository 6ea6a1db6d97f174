package resilience

import (
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration

	BreakerMinRequests uint32
	BreakerFailRatio   float64
	BreakerOpenTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxTries:           4,
		InitialInterval:    500 * time.Millisecond,
		MaxInterval:        8 * time.Second,
		BreakerMinRequests: 5,
		BreakerFailRatio:   0.8,
		BreakerOpenTimeout: 60 * time.Second,
	}
}

// Caller retries transient provider failures with exponential backoff and
// trips a circuit breaker when a provider keeps failing.
type Caller struct {
	name    string
	policy  Policy
	breaker *gobreaker.CircuitBreaker
	logger  logger.ILogger
}

func NewCaller(name string, policy Policy, log logger.ILogger) *Caller {
	c := &Caller{name: name, policy: policy, logger: log}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     policy.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < policy.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= policy.BreakerFailRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("RESILIENCE", "Circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
		// Only outages count against the provider. Bad input and
		// cancellation are the caller's problem.
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.IsTransient(err)
		},
	})
	return c
}

func (c *Caller) Name() string {
	return c.name
}

// Call runs op under the caller's retry and breaker policy. Exhausted
// transient failures come back as apperr.KindProviderTransient.
func Call[T any](ctx context.Context, c *Caller, op func(context.Context) (T, error)) (T, error) {
	hinted := newHintedBackOff(c.policy)
	maxTries := c.policy.MaxTries
	if maxTries == 0 {
		maxTries = 1
	}
	attempt := 0

	res, err := backoff.Retry(ctx, func() (T, error) {
		var zero T
		attempt++

		v, err := c.breaker.Execute(func() (interface{}, error) {
			return op(ctx)
		})
		if err == nil {
			out, _ := v.(T)
			return out, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, backoff.Permanent(apperr.New(apperr.KindProviderTransient,
				fmt.Sprintf("%s circuit open", c.name), err))
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ctx.Err())
		}
		if !apperr.IsTransient(err) {
			return zero, backoff.Permanent(err)
		}

		var pe *apperr.ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > 0 {
			hinted.hint(pe.RetryAfter)
		}
		return zero, err
	},
		backoff.WithBackOff(hinted),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("RESILIENCE", "Transient provider failure, retrying", map[string]interface{}{
				"provider": c.name,
				"attempt":  attempt,
				"wait":     wait.String(),
				"error":    err.Error(),
			})
		}),
	)
	if err == nil {
		return res, nil
	}

	if apperr.IsTransient(err) {
		return res, apperr.New(apperr.KindProviderTransient,
			fmt.Sprintf("%s failed after %d attempts", c.name, attempt), err)
	}
	return res, err
}

// hintedBackOff is an exponential backoff that honours a server supplied
// Retry-After once, when it exceeds the computed interval.
type hintedBackOff struct {
	inner *backoff.ExponentialBackOff

	mu      sync.Mutex
	pending time.Duration
}

func newHintedBackOff(p Policy) *hintedBackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	return &hintedBackOff{inner: exp}
}

func (h *hintedBackOff) hint(d time.Duration) {
	h.mu.Lock()
	h.pending = d
	h.mu.Unlock()
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.inner.NextBackOff()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending > next {
		next = h.pending
	}
	h.pending = 0
	return next
}

func (h *hintedBackOff) Reset() {
	h.inner.Reset()
	h.mu.Lock()
	h.pending = 0
	h.mu.Unlock()
}
