package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
	done  chan struct{}
	want  int
}

func (f *fakeExpirer) ExpireSubscriptions(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	if len(f.calls) == f.want {
		close(f.done)
	}
	return 1, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartExpirySchedulerRunsUntilCancelled(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"successful passes", nil},
		{"failures keep the scheduler running", errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed := time.Unix(1700000000, 0)
			exp := &fakeExpirer{err: tt.err, done: make(chan struct{}), want: 3}

			ctx, cancel := context.WithCancel(context.Background())
			stopped := make(chan struct{})
			go func() {
				StartExpiryScheduler(ctx, exp, ExpiryConfig{
					Interval: time.Millisecond,
					Now:      func() time.Time { return fixed },
				}, discardLogger())
				close(stopped)
			}()

			select {
			case <-exp.done:
			case <-time.After(5 * time.Second):
				t.Fatal("scheduler did not run three passes")
			}
			cancel()

			select {
			case <-stopped:
			case <-time.After(5 * time.Second):
				t.Fatal("scheduler did not stop after cancel")
			}

			exp.mu.Lock()
			defer exp.mu.Unlock()
			for i, c := range exp.calls {
				if !c.Equal(fixed) {
					t.Errorf("call %d: now = %v, want %v", i, c, fixed)
				}
			}
		})
	}
}
