package clock

import (
	"context"
	"testing"
	"time"
)

func TestFake_SleepWakesOnAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	done := make(chan error, 1)
	go func() {
		done <- fc.Sleep(context.Background(), 50*time.Millisecond)
	}()

	fc.BlockUntil(1)
	fc.Advance(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("sleeper woke before its deadline")
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(30 * time.Millisecond)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("sleep returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sleeper did not wake after deadline")
	}

	if got := fc.Since(start); got != 50*time.Millisecond {
		t.Errorf("Since = %v, want 50ms", got)
	}
}

func TestFake_SleepHonorsContext(t *testing.T) {
	t.Parallel()

	fc := NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- fc.Sleep(ctx, time.Hour)
	}()

	fc.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("sleep returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sleep ignored cancellation")
	}
}

func TestAutoFake_SleepAdvances(t *testing.T) {
	t.Parallel()

	start := time.Unix(100, 0)
	fc := NewAutoFake(start)
	for i := 0; i < 3; i++ {
		if err := fc.Sleep(context.Background(), 100*time.Millisecond); err != nil {
			t.Fatalf("sleep: %v", err)
		}
	}
	if got := fc.Since(start); got != 300*time.Millisecond {
		t.Errorf("Since = %v, want 300ms", got)
	}
}
