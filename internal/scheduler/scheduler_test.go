package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
)

type fakeAccountStore struct {
	nextAccountCalls int
	lease            time.Duration
	nextID           domain.AccountID
	nextErr          error
	markUsedCalls    []domain.AccountID
	usageCalls       []int64
	usageErr         error
	activeCount      int
}

func (f *fakeAccountStore) NextAccount(ctx context.Context, leaseDuration time.Duration) (domain.AccountID, error) {
	f.nextAccountCalls++
	f.lease = leaseDuration
	if f.nextErr != nil {
		return "", f.nextErr
	}
	return f.nextID, nil
}

func (f *fakeAccountStore) MarkUsed(ctx context.Context, id domain.AccountID) error {
	f.markUsedCalls = append(f.markUsedCalls, id)
	return nil
}

func (f *fakeAccountStore) ApplyUploadUsage(ctx context.Context, id domain.AccountID, uploadedBytes int64) error {
	f.usageCalls = append(f.usageCalls, uploadedBytes)
	return f.usageErr
}

func (f *fakeAccountStore) ActiveCount(ctx context.Context) (int, error) {
	return f.activeCount, nil
}

func TestLRUAccountScheduler_NextAccountDefaultsLease(t *testing.T) {
	store := &fakeAccountStore{nextID: "acct-a"}
	sched := New(store, 0)

	id, err := sched.NextAccount(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "acct-a" {
		t.Fatalf("got id %q, want acct-a", id)
	}
	if store.nextAccountCalls != 1 {
		t.Fatalf("expected exactly one call, got %d", store.nextAccountCalls)
	}
	if store.lease != 600*time.Second {
		t.Fatalf("got lease %s, want 600s default", store.lease)
	}
}

func TestLRUAccountScheduler_NoActiveAccounts(t *testing.T) {
	store := &fakeAccountStore{nextErr: errs.ErrNoActiveAccounts}
	sched := New(store, time.Minute)

	_, err := sched.NextAccount(context.Background())
	if !errors.Is(err, errs.ErrNoActiveAccounts) {
		t.Fatalf("expected ErrNoActiveAccounts, got %v", err)
	}
}

func TestLRUAccountScheduler_MarkUsedDelegates(t *testing.T) {
	store := &fakeAccountStore{}
	sched := New(store, time.Minute)

	if err := sched.MarkUsed(context.Background(), "acct-b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.markUsedCalls) != 1 || store.markUsedCalls[0] != "acct-b" {
		t.Fatalf("expected MarkUsed delegated with acct-b, got %v", store.markUsedCalls)
	}
}

func TestLRUAccountScheduler_ApplyUploadUsageDelegates(t *testing.T) {
	store := &fakeAccountStore{}
	sched := New(store, time.Minute)

	if err := sched.ApplyUploadUsage(context.Background(), "acct-c", 4096); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.usageCalls) != 1 || store.usageCalls[0] != 4096 {
		t.Fatalf("expected usage call with 4096 bytes, got %v", store.usageCalls)
	}
}
