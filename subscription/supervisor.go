// Package subscription owns the lifetime of live queries. Each subscription
// is keyed by the watched path and the subscriber, runs in its own
// goroutine, and is restarted with exponential backoff when it fails.
package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/go-monolith/mono/pkg/types"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("subscription: supervisor closed")

// Key identifies one subscription.
type Key struct {
	Path       string
	Subscriber string
}

// RunFunc runs a live query until ctx is done. It must re-read its
// snapshot on every start; a non-nil error triggers a restart.
type RunFunc func(ctx context.Context) error

// ErrorHandler is called for errors that end a subscription without retry.
type ErrorHandler func(key Key, err error)

type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor is a registry of cancellable subscriptions.
type Supervisor struct {
	logger     types.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	onError    ErrorHandler

	mu     sync.Mutex
	subs   map[Key]*entry
	closed bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBackoff sets the first and the maximum restart delay.
func WithBackoff(first, limit time.Duration) Option {
	return func(s *Supervisor) {
		s.minBackoff = first
		s.maxBackoff = limit
	}
}

// WithErrorHandler registers a callback for permanent failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Supervisor) {
		s.onError = h
	}
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(logger types.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:     logger,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		subs:       make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe starts run under key. An existing subscription with the same
// key is cancelled and replaced.
func (s *Supervisor) Subscribe(key Key, run RunFunc) error {
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	old := s.subs[key]
	s.subs[key] = e
	s.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}

	go s.loop(ctx, key, e, run)
	return nil
}

// Unsubscribe cancels the subscription under key and waits for it to stop.
// It reports whether a subscription existed.
func (s *Supervisor) Unsubscribe(key Key) bool {
	s.mu.Lock()
	e, ok := s.subs[key]
	if ok {
		delete(s.subs, key)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	e.cancel()
	<-e.done
	return true
}

// Has reports whether key is subscribed.
func (s *Supervisor) Has(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[key]
	return ok
}

// Keys returns the active keys ordered by path then subscriber.
func (s *Supervisor) Keys() []Key {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.subs))
	for k := range s.subs {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Subscriber < keys[j].Subscriber
	})
	return keys
}

// Len returns the number of active subscriptions.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close cancels every subscription and waits for all of them to stop.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	subs := s.subs
	s.subs = make(map[Key]*entry)
	s.mu.Unlock()

	for _, e := range subs {
		e.cancel()
	}
	for _, e := range subs {
		<-e.done
	}
}

func (s *Supervisor) loop(ctx context.Context, key Key, e *entry, run RunFunc) {
	defer close(e.done)

	attempt := 0
	for {
		started := time.Now()
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			s.forget(key, e)
			return
		}
		if !Retryable(err) {
			s.logger.Warn("Subscription stopped", "path", key.Path, "subscriber", key.Subscriber, "error", err)
			s.forget(key, e)
			if s.onError != nil {
				s.onError(key, err)
			}
			return
		}

		if time.Since(started) > s.maxBackoff {
			attempt = 0
		}
		delay := s.backoff(attempt)
		attempt++
		s.logger.Warn("Subscription failed, resubscribing",
			"path", key.Path,
			"subscriber", key.Subscriber,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// forget removes key if it still maps to e.
func (s *Supervisor) forget(key Key, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[key] == e {
		delete(s.subs, key)
	}
}

func (s *Supervisor) backoff(attempt int) time.Duration {
	d := s.minBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	return d
}

// Retryable reports whether a live query failing with err should be restarted.
// Validation and authorization failures are final.
func Retryable(err error) bool {
	return !errors.Is(err, dm.ErrValidation) &&
		!errors.Is(err, dm.ErrNotParticipant) &&
		!errors.Is(err, dm.ErrNotFound)
}
