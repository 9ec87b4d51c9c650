package core

// transfer_limiter.go bounds the number of imports and exports running at
// once. When every slot is taken a request waits up to maxWait, then fails
// with an errs.KindBusy error. WaitForDrain lets shutdown wait for running
// transfers.

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// DefaultMaxConcurrentTransfers is the default number of parallel transfers.
const DefaultMaxConcurrentTransfers = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ErrTooManyTransfers is returned when no slot frees up within maxWait.
var ErrTooManyTransfers = errs.New(errs.KindBusy, "too many concurrent transfers, please try again later")

// TransferLimiter is a counting semaphore for transfers.
type TransferLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration
	active    atomic.Int64
}

// NewTransferLimiter allows at most maxConcurrent transfers.
func NewTransferLimiter(maxConcurrent int, maxWait time.Duration) *TransferLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTransfers
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &TransferLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot. The caller must Release it exactly once.
func (l *TransferLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrTooManyTransfers
	case <-ctx.Done():
		return errs.Wrap(errs.KindTimeout, "gave up waiting for a transfer slot", ctx.Err())
	}
}

// Release frees a slot taken by Acquire.
func (l *TransferLimiter) Release() {
	l.active.Add(-1)
	<-l.semaphore
}

// ActiveCount returns the number of running transfers.
func (l *TransferLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// Available returns the number of free slots.
func (l *TransferLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no transfer is running or ctx ends.
func (l *TransferLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TransferLimiterStatus is a snapshot for health reporting.
type TransferLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

func (l *TransferLimiter) Status() TransferLimiterStatus {
	return TransferLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
