// Package scheduler adapts the Postgres account store into the
// ports.AccountScheduler contract, pinning the lease duration so callers
// never have to thread it through.
package scheduler

import (
	"context"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/ports"
)

// AccountStore is the subset of postgres.AccountStore the scheduler uses.
type AccountStore interface {
	NextAccount(ctx context.Context, leaseDuration time.Duration) (domain.AccountID, error)
	MarkUsed(ctx context.Context, id domain.AccountID) error
	ApplyUploadUsage(ctx context.Context, id domain.AccountID, uploadedBytes int64) error
	ActiveCount(ctx context.Context) (int, error)
}

// LRUAccountScheduler delegates to an AccountStore with a fixed lease
// duration, set at construction and defaulting to 600s (matching the
// original's lease_seconds=600 default).
type LRUAccountScheduler struct {
	store         AccountStore
	leaseDuration time.Duration
}

var _ ports.AccountScheduler = (*LRUAccountScheduler)(nil)

func New(store AccountStore, leaseDuration time.Duration) *LRUAccountScheduler {
	if leaseDuration <= 0 {
		leaseDuration = 600 * time.Second
	}
	return &LRUAccountScheduler{store: store, leaseDuration: leaseDuration}
}

func (s *LRUAccountScheduler) NextAccount(ctx context.Context) (domain.AccountID, error) {
	return s.store.NextAccount(ctx, s.leaseDuration)
}

func (s *LRUAccountScheduler) MarkUsed(ctx context.Context, id domain.AccountID) error {
	return s.store.MarkUsed(ctx, id)
}

func (s *LRUAccountScheduler) ApplyUploadUsage(ctx context.Context, id domain.AccountID, uploadedBytes int64) error {
	return s.store.ApplyUploadUsage(ctx, id, uploadedBytes)
}

func (s *LRUAccountScheduler) ActiveCount(ctx context.Context) (int, error) {
	return s.store.ActiveCount(ctx)
}
