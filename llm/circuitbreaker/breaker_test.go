package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/types"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New("ollama", cfg, zap.NewNop())
	b.now = clock.Now
	return b, clock
}

var errBackend = errors.New("connection refused")

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestConfig_Normalized(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{"zero uses defaults", Config{}, DefaultConfig()},
		{"negative corrected", Config{Threshold: -1, ResetTimeout: -time.Second, HalfOpenMaxCalls: -2}, DefaultConfig()},
		{"explicit kept", Config{Threshold: 2, ResetTimeout: time.Second, HalfOpenMaxCalls: 3},
			Config{Threshold: 2, ResetTimeout: time.Second, HalfOpenMaxCalls: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalized()
			assert.Equal(t, tt.want.Threshold, got.Threshold)
			assert.Equal(t, tt.want.ResetTimeout, got.ResetTimeout)
			assert.Equal(t, tt.want.HalfOpenMaxCalls, got.HalfOpenMaxCalls)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

// ---------------------------------------------------------------------------
// state machine
// ---------------------------------------------------------------------------

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Call(ctx, fail), errBackend)
		assert.Equal(t, StateClosed, b.State())
	}
	assert.ErrorIs(t, b.Call(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.False(t, called, "open circuit must not reach the backend")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, types.IsErrorCode(err, types.ErrServiceUnavailable))
	assert.False(t, types.IsRetryable(err))
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 2})
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	require.NoError(t, b.Call(ctx, succeed))
	_ = b.Call(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenTrialCall(t *testing.T) {
	tests := []struct {
		name      string
		trial     func(context.Context) error
		wantState State
	}{
		{"success closes", succeed, StateClosed},
		{"failure reopens", fail, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clock := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Minute})
			ctx := context.Background()

			_ = b.Call(ctx, fail)
			require.Equal(t, StateOpen, b.State())

			clock.Advance(time.Minute)
			_ = b.Call(ctx, tt.trial)
			assert.Equal(t, tt.wantState, b.State())
		})
	}
}

func TestBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	b, clock := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenMaxCalls: 1})
	ctx := context.Background()
	_ = b.Call(ctx, fail)
	clock.Advance(time.Second)

	probing := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(ctx, func(context.Context) error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing

	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Call(ctx, succeed), ErrCircuitOpen, "second trial call rejected while the first is in flight")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_NeutralErrors(t *testing.T) {
	neutral := []error{
		context.Canceled,
		types.NewError(types.ErrInvalidRequest, "empty chunk"),
		types.NewError(types.ErrPayloadTooLarge, "chunk too large"),
	}
	for _, e := range neutral {
		t.Run(e.Error(), func(t *testing.T) {
			b, _ := newTestBreaker(Config{Threshold: 1})
			err := b.Call(context.Background(), func(context.Context) error { return e })
			assert.ErrorIs(t, err, e)
			assert.Equal(t, StateClosed, b.State())
		})
	}
}

func TestBreaker_CanceledTrialCallKeepsHalfOpen(t *testing.T) {
	b, clock := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Second})
	ctx := context.Background()
	_ = b.Call(ctx, fail)
	clock.Advance(time.Second)

	_ = b.Call(ctx, func(context.Context) error { return context.Canceled })
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Call(ctx, succeed), "released trial slot is reusable")
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_DeadlineCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1})
	_ = b.Call(context.Background(), func(context.Context) error { return context.DeadlineExceeded })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_RequestDeadline(t *testing.T) {
	tests := []struct {
		name      string
		parent    func() (context.Context, context.CancelFunc)
		wantState State
	}{
		{
			name: "request deadline is neutral",
			parent: func() (context.Context, context.CancelFunc) {
				return context.WithDeadlineCause(context.Background(), time.Now().Add(-time.Second), types.ErrRequestDeadline)
			},
			wantState: StateClosed,
		},
		{
			name: "per-call timeout counts",
			parent: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			wantState: StateOpen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(Config{Threshold: 1})
			parent, cancelParent := tt.parent()
			defer cancelParent()

			callCtx, cancel := context.WithTimeout(parent, time.Nanosecond)
			defer cancel()
			<-callCtx.Done()

			err := b.Call(callCtx, func(ctx context.Context) error { return ctx.Err() })
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Equal(t, tt.wantState, b.State())
		})
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	b, clock := newTestBreaker(Config{
		Threshold:    1,
		ResetTimeout: time.Second,
		OnStateChange: func(from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	clock.Advance(time.Second)
	_ = b.Call(ctx, succeed)
	b.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Hour})
	_ = b.Call(context.Background(), fail)
	require.Equal(t, StateOpen, b.State())

	b.Reset()

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Call(context.Background(), succeed))
}

func TestDo(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1})
	ctx := context.Background()

	got, err := Do(ctx, b, func(context.Context) (string, error) { return "digest", nil })
	require.NoError(t, err)
	assert.Equal(t, "digest", got)

	got, err = Do(ctx, b, func(context.Context) (string, error) { return "partial", errBackend })
	assert.ErrorIs(t, err, errBackend)
	assert.Empty(t, got)

	_, err = Do(ctx, b, func(context.Context) (string, error) { return "x", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_ConcurrentCalls(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1000})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = b.Call(ctx, fail)
			} else {
				_ = b.Call(ctx, succeed)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, StateClosed, b.State())
}
