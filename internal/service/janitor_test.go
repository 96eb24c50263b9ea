package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
	err   error
}

func (c *countingCleaner) CleanupExpiredTokens(context.Context) (CleanupResult, error) {
	c.calls.Add(1)
	return CleanupResult{}, c.err
}

func TestJanitor_RunsOnInterval(t *testing.T) {
	cleaner := &countingCleaner{}
	j := NewJanitor(cleaner, 10*time.Millisecond, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_KeepsRunningAfterFailure(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("db down")}
	j := NewJanitor(cleaner, 10*time.Millisecond, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Run(ctx)

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestNewJanitor_DefaultInterval(t *testing.T) {
	j := NewJanitor(&countingCleaner{}, 0, newTestLogger())
	assert.Equal(t, DefaultCleanupInterval, j.interval)
}
