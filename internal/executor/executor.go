/*
Copyright 2024 SuiteSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package executor serializes outbound API calls per connection. Each
// connection gets a queue that admits calls under a rolling one-minute
// write cap and retries transient failures with exponential backoff.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCallTimeout bounds a single outbound API call.
	DefaultCallTimeout = 30 * time.Second

	rateWindow = time.Minute
)

// Options controls retry behaviour for a single Execute call.
type Options struct {
	MaxRetries  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	CallTimeout time.Duration
}

// Registry hands out one Queue per connection so concurrent workers share
// the same rate limiter for a given target site.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

// NewRegistry returns an empty queue registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// GetOrCreate returns the queue for connectionID, creating it with the given
// per-minute write cap on first use. A changed cap on an existing queue is
// applied in place so connection edits take effect without a restart.
func (r *Registry) GetOrCreate(connectionID string, ratePerMin int) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[connectionID]; ok {
		q.setCap(ratePerMin)
		return q
	}
	q := NewQueue(ratePerMin)
	r.queues[connectionID] = q
	return q
}

// Queue admits outbound calls under a rolling-window rate cap.
type Queue struct {
	mu       sync.Mutex
	cap      int
	admitted []time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewQueue creates a queue admitting at most ratePerMin calls in any rolling
// sixty-second window. A non-positive cap falls back to 1.
func NewQueue(ratePerMin int) *Queue {
	if ratePerMin <= 0 {
		ratePerMin = 1
	}
	return &Queue{cap: ratePerMin, now: time.Now}
}

func (q *Queue) setCap(ratePerMin int) {
	if ratePerMin <= 0 {
		ratePerMin = 1
	}
	q.mu.Lock()
	q.cap = ratePerMin
	q.mu.Unlock()
}

// Admit blocks until a slot is free in the rolling window or the context
// ends. On success the slot is consumed immediately.
func (q *Queue) Admit(ctx context.Context) error {
	for {
		wait, ok := q.tryAdmit()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAdmit consumes a slot if one is free, otherwise reports how long until
// the oldest admission slides out of the window.
func (q *Queue) tryAdmit() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	cutoff := now.Add(-rateWindow)

	kept := q.admitted[:0]
	for _, t := range q.admitted {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	q.admitted = kept

	if len(q.admitted) < q.cap {
		q.admitted = append(q.admitted, now)
		return 0, true
	}

	wait := q.admitted[0].Sub(cutoff)
	if wait <= 0 {
		wait = 10 * time.Millisecond
	}
	return wait, false
}

// Pending reports how many admissions currently occupy the rolling window.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-rateWindow)
	n := 0
	for _, t := range q.admitted {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Execute runs fn through the queue with retries. Every attempt re-enters
// rate-limit admission and gets a fresh per-call timeout. Transient failures
// back off exponentially with jitter; non-retriable errors abort at once.
func (q *Queue) Execute(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.BaseBackoff
	bo.MaxInterval = opts.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.3
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		if err := q.Admit(ctx); err != nil {
			return backoff.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		attempt++
		if !IsRetriable(err) {
			return backoff.Permanent(err)
		}
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("outbound call failed, retrying")
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, opts.MaxRetries), ctx))
	if permanent, ok := err.(*backoff.PermanentError); ok {
		return permanent.Unwrap()
	}
	return err
}
