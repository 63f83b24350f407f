// Package youtubeapi runs YouTube Data API calls through a pool of credentials. The Executor
// rotates to the next credential when the current one reports exhausted quota and retries
// transient server errors after a fixed delay, so callers only ever see a successful response
// or a non-retryable error. Fetch helpers on API map responses into store records.
package youtubeapi

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/ytchat-collector/telemetry"
)

const tracerName = "youtubeapi"

// Defaults applied by NewExecutor.
const (
	DefaultRetryDelay     = 60 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Call describes one API request against the current client. It must be safe to repeat:
// the executor replays it after rotations and transient failures.
type Call func(ctx context.Context, svc *yt.Service) error

// Requester is what collaborators depend on; *Executor implements it.
type Requester interface {
	Execute(ctx context.Context, call Call) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryDelay sets the sleep between transient-error retries.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// WithMaxQuotaRotations bounds rotations within one Execute call. Zero keeps it unlimited.
func WithMaxQuotaRotations(n int) Option { return func(e *Executor) { e.maxRotations = n } }

// WithMaxServerRetries bounds transient retries within one Execute call. Zero keeps it unlimited.
func WithMaxServerRetries(n int) Option { return func(e *Executor) { e.maxServerRetries = n } }

// WithRateLimit spaces attempts to at most rps per second (shared by all callers).
func WithRateLimit(rps float64) Option {
	return func(e *Executor) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithClientFactory replaces the default service builder.
func WithClientFactory(f ClientFactory) Option {
	return func(e *Executor) {
		if f != nil {
			e.factory = f
		}
	}
}

// Executor owns the credential pool and the client bound to the current credential.
// A single instance is meant to be shared by every caller in the process.
type Executor struct {
	mu    sync.Mutex
	creds []Credential
	idx   int
	gen   uint64
	svc   *yt.Service

	factory          ClientFactory
	retryDelay       time.Duration
	maxRotations     int
	maxServerRetries int
	limiter          *rate.Limiter
	sleep            func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds the executor and the initial client bound to the first credential.
func NewExecutor(ctx context.Context, creds []Credential, opts ...Option) (*Executor, error) {
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	e := &Executor{
		creds:      slices.Clone(creds),
		idx:        -1,
		retryDelay: DefaultRetryDelay,
		factory:    NewClientFactory(ClientOptions{Timeout: DefaultRequestTimeout}),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.advanceLocked(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Execute runs call against the current client. Quota errors rotate the credential and
// replay the call; 5xx errors sleep the retry delay and replay it on the same client. Any
// other error is returned unchanged after a single attempt.
func (e *Executor) Execute(ctx context.Context, call Call) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "youtube.execute")
	defer span.End()

	rotations, retries := 0, 0
	for {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				telemetry.RecordError(span, err)
				return err
			}
		}
		svc, gen := e.current()
		start := time.Now()
		err := call(ctx, svc)
		if err == nil {
			telemetry.RecordRequest(telemetry.OutcomeOK, time.Since(start))
			span.SetAttributes(attribute.Int("rotations", rotations), attribute.Int("retries", retries))
			telemetry.SetSpanSuccess(span)
			return nil
		}

		switch Classify(err) {
		case ErrorClassQuota:
			telemetry.RecordRequest(telemetry.OutcomeQuota, time.Since(start))
			rotations++
			if e.maxRotations > 0 && rotations > e.maxRotations {
				err = fmt.Errorf("%w after %d rotations: %w", ErrAllKeysExhausted, e.maxRotations, err)
				telemetry.RecordError(span, err)
				return err
			}
			if rerr := e.rotateFrom(ctx, gen); rerr != nil {
				telemetry.RecordError(span, rerr)
				return rerr
			}
		case ErrorClassTransient:
			telemetry.RecordRequest(telemetry.OutcomeTransient, time.Since(start))
			retries++
			if e.maxServerRetries > 0 && retries > e.maxServerRetries {
				err = fmt.Errorf("%w after %d retries: %w", ErrServerRetriesExceeded, e.maxServerRetries, err)
				telemetry.RecordError(span, err)
				return err
			}
			telemetry.Inc(telemetry.ServerRetries)
			slog.Warn("youtube server error; retrying",
				slog.Int("status", StatusCode(err)),
				slog.Duration("delay", e.retryDelay),
				slog.String("component", "youtubeapi"))
			if serr := e.sleep(ctx, e.retryDelay); serr != nil {
				telemetry.RecordError(span, serr)
				return serr
			}
		default:
			telemetry.RecordRequest(telemetry.OutcomeFatal, time.Since(start))
			telemetry.RecordError(span, err)
			return err
		}
	}
}

// Do runs fn through r and returns its parsed response.
func Do[T any](ctx context.Context, r Requester, fn func(ctx context.Context, svc *yt.Service) (T, error)) (T, error) {
	var out T
	err := r.Execute(ctx, func(ctx context.Context, svc *yt.Service) error {
		v, err := fn(ctx, svc)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// CurrentIndex returns the zero-based index of the credential in use.
func (e *Executor) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx
}

// PoolSize returns the number of credentials in rotation.
func (e *Executor) PoolSize() int { return len(e.creds) }

func (e *Executor) current() (*yt.Service, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.svc, e.gen
}

// rotateFrom advances past the client generation the caller saw fail. Callers that raced on
// the same exhausted client rotate only once.
func (e *Executor) rotateFrom(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return nil
	}
	slog.Warn("youtube quota exceeded; rotating credential",
		slog.Int("from", e.idx+1),
		slog.Int("pool", len(e.creds)),
		slog.String("component", "youtubeapi"))
	if err := e.advanceLocked(ctx); err != nil {
		return err
	}
	telemetry.RecordRotation(e.idx)
	return nil
}

// advanceLocked moves to the next credential (wrapping) and rebuilds the client.
func (e *Executor) advanceLocked(ctx context.Context) error {
	next := (e.idx + 1) % len(e.creds)
	svc, err := e.factory(ctx, e.creds[next])
	if err != nil {
		return fmt.Errorf("build client for credential %d/%d: %w", next+1, len(e.creds), err)
	}
	e.idx = next
	e.svc = svc
	e.gen++
	telemetry.SetCredentialIndex(next)
	slog.Info("using youtube credential",
		slog.Int("index", next+1),
		slog.Int("pool", len(e.creds)),
		slog.String("credential", e.creds[next].String()),
		slog.String("component", "youtubeapi"))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
