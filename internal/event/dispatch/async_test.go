package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncInvoker_Awaits(t *testing.T) {
	inv := NewAsyncInvoker()
	var done atomic.Bool

	result := inv.Invoke(context.Background(), nil, HandlerFunc(func(ctx context.Context, event any) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	}))

	if !result.IsSuccess() {
		t.Fatalf("Invoke() = %+v, want success", result)
	}
	if !done.Load() {
		t.Error("Invoke returned before handler finished")
	}
}

func TestAsyncInvoker_Sequential(t *testing.T) {
	inv := NewAsyncInvoker()
	var active atomic.Int32
	var overlap atomic.Bool

	for i := 0; i < 5; i++ {
		inv.Invoke(context.Background(), nil, HandlerFunc(func(ctx context.Context, event any) error {
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return nil
		}))
	}

	if overlap.Load() {
		t.Error("handlers overlapped")
	}
}

func TestAsyncInvoker_Timeout(t *testing.T) {
	inv := NewAsyncInvoker(WithTimeout(20 * time.Millisecond))
	release := make(chan struct{})
	defer close(release)

	result := inv.Invoke(context.Background(), nil, HandlerFunc(func(ctx context.Context, event any) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	if !result.TimedOut {
		t.Fatal("TimedOut = false, want true")
	}
	if !errors.Is(result.Error, ErrHandlerTimeout) {
		t.Errorf("Error = %v, want ErrHandlerTimeout", result.Error)
	}
	if got := inv.Stats().TimedOut; got != 1 {
		t.Errorf("Stats().TimedOut = %d, want 1", got)
	}
}

func TestAsyncInvoker_TimeoutCancelsHandlerContext(t *testing.T) {
	inv := NewAsyncInvoker()
	exited := make(chan struct{})

	inv.InvokeWithTimeout(context.Background(), nil, HandlerFunc(func(ctx context.Context, event any) error {
		<-ctx.Done()
		close(exited)
		return ctx.Err()
	}), 10*time.Millisecond)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled after timeout")
	}
}

func TestAsyncInvoker_CallerCancelAwaitsHandler(t *testing.T) {
	inv := NewAsyncInvoker()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	var finished atomic.Bool
	result := inv.Invoke(ctx, nil, HandlerFunc(func(ctx context.Context, event any) error {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}))

	if !finished.Load() {
		t.Error("Invoke returned before the handler finished")
	}
	if !result.IsSuccess() {
		t.Errorf("Invoke() = %+v, want success", result)
	}
}

func TestAsyncInvoker_Panic(t *testing.T) {
	var reported atomic.Bool
	inv := NewAsyncInvoker(WithPanicHandler(func(event any, v any, stack []byte) {
		reported.Store(true)
	}))

	result := inv.Invoke(context.Background(), nil, HandlerFunc(func(ctx context.Context, event any) error {
		panic("async boom")
	}))

	if !result.Panicked {
		t.Error("Panicked = false, want true")
	}
	if !reported.Load() {
		t.Error("panic handler not called")
	}
}

func TestAsyncInvoker_TimeoutAccessor(t *testing.T) {
	if got := NewAsyncInvoker().Timeout(); got != 0 {
		t.Errorf("Timeout() = %v, want 0", got)
	}
	if got := NewAsyncInvoker(WithTimeout(time.Second)).Timeout(); got != time.Second {
		t.Errorf("Timeout() = %v, want 1s", got)
	}
}
