package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiErr struct {
	status int
}

func (e apiErr) Error() string   { return fmt.Sprintf("api error %d", e.status) }
func (e apiErr) StatusCode() int { return e.status }

func TestQueueRollingWindowCap(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	q := NewQueue(3)
	q.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		_, ok := q.tryAdmit()
		assert.True(t, ok, "admission %d should fit under the cap", i)
	}

	// Fourth call in the same window must wait.
	wait, ok := q.tryAdmit()
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.Equal(t, 3, q.Pending())

	// Once the window slides past the oldest admission, a slot frees up.
	current = current.Add(61 * time.Second)
	_, ok = q.tryAdmit()
	assert.True(t, ok)
	assert.Equal(t, 1, q.Pending())
}

func TestAdmitRespectsContext(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Admit(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.Admit(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	q := NewQueue(100)
	var calls int32

	err := q.Execute(context.Background(), Options{
		MaxRetries:  5,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return apiErr{status: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecuteAbortsOnNonRetriable(t *testing.T) {
	q := NewQueue(100)
	var calls int32

	err := q.Execute(context.Background(), Options{
		MaxRetries:  5,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return apiErr{status: 400}
	})

	require.Error(t, err)
	var sc statusCoder
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, 400, sc.StatusCode())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors must not be retried")
}

func TestExecuteStopsAfterMaxRetries(t *testing.T) {
	q := NewQueue(100)
	var calls int32

	err := q.Execute(context.Background(), Options{
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return apiErr{status: 500}
	})

	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "initial attempt plus two retries")
}

func TestRegistrySharesQueuePerConnection(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("conn_1", 50)
	b := r.GetOrCreate("conn_1", 50)
	c := r.GetOrCreate("conn_2", 50)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	// An updated cap applies to the existing queue.
	r.GetOrCreate("conn_1", 10)
	a.mu.Lock()
	assert.Equal(t, 10, a.cap)
	a.mu.Unlock()
}

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", apiErr{status: 429}, true},
		{"request timeout", apiErr{status: 408}, true},
		{"server error", apiErr{status: 502}, true},
		{"bad request", apiErr{status: 400}, false},
		{"unauthorized", apiErr{status: 401}, false},
		{"not found", apiErr{status: 404}, false},
		{"unprocessable", apiErr{status: 422}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"dns", &net.DNSError{Err: "no such host"}, true},
		{"conn refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"plain error", errors.New("mapping produced no fields"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsRetriable(c.err))
		})
	}
}
