package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireReleaseLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	lock, err := AcquireLock(context.Background(), path, LockOptions{})
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireLockContextCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	first, err := AcquireLock(context.Background(), path, LockOptions{})
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	defer first.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = AcquireLock(ctx, path, LockOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestAcquireLockSecondHolderBlockedUntilReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	first, err := AcquireLock(context.Background(), path, LockOptions{})
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := AcquireLock(context.Background(), path, LockOptions{})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("second AcquireLock returned before the first lock was released")
	case <-time.After(150 * time.Millisecond):
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second AcquireLock after release: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second AcquireLock never completed after release")
	}
}
