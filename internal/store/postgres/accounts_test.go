package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
)

// TestAccountStore_NextAccount_LRUFairness drives NextAccount and MarkUsed
// through spec.md's concrete scenario 3: three active accounts A, B, C, with
// the mock returning them in last_used_at order; three consecutive
// next_account()+mark_used() cycles must hand them out in that order.
func TestAccountStore_NextAccount_LRUFairness(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	store := &AccountStore{pool: mock}
	lease := time.Minute

	order := []string{"acct-a", "acct-b", "acct-c"}
	for _, want := range order {
		mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		mock.ExpectExec(`UPDATE accounts SET status`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`WITH candidate AS`).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(want))
		mock.ExpectCommit()
		mock.ExpectExec(`UPDATE accounts SET last_used_at`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		got, err := store.NextAccount(context.Background(), lease)
		if err != nil {
			t.Fatalf("unexpected error selecting %s: %v", want, err)
		}
		if string(got) != want {
			t.Fatalf("expected LRU candidate %s, got %s", want, got)
		}

		if err := store.MarkUsed(context.Background(), got); err != nil {
			t.Fatalf("unexpected error marking %s used: %v", want, err)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestAccountStore_NextAccount_NoRowsIsNoActiveAccounts exercises the
// no-active-accounts branch of the same SQL.
func TestAccountStore_NextAccount_NoRowsIsNoActiveAccounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	store := &AccountStore{pool: mock}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectExec(`UPDATE accounts SET status`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`WITH candidate AS`).WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err = store.NextAccount(context.Background(), time.Minute)
	if !errors.Is(err, errs.ErrNoActiveAccounts) {
		t.Fatalf("expected ErrNoActiveAccounts, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestAccountStore_ApplyUploadUsage_QuotaExhaustion reproduces spec.md's
// concrete scenario 4 literally: daily_quota_bytes=100, daily_uploaded_bytes=90,
// apply_upload_usage(15) must set daily_uploaded_bytes=105, status=cooldown,
// cooldown_until=quota_reset_at, and a following next_account() must then
// report no-active-accounts.
func TestAccountStore_ApplyUploadUsage_QuotaExhaustion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	store := &AccountStore{pool: mock}
	quotaResetAt := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT daily_uploaded_bytes, daily_quota_bytes, quota_reset_at`).
		WillReturnRows(pgxmock.NewRows([]string{"daily_uploaded_bytes", "daily_quota_bytes", "quota_reset_at"}).
			AddRow(int64(90), int64(100), quotaResetAt))
	mock.ExpectExec(`UPDATE accounts SET daily_uploaded_bytes`).
		WithArgs("acct-x", int64(105), string(domain.AccountCooldown)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	if err := store.ApplyUploadUsage(context.Background(), "acct-x", 15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mock.ExpectExec(`UPDATE accounts SET status`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`WITH candidate AS`).WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	if _, err := store.NextAccount(context.Background(), time.Minute); !errors.Is(err, errs.ErrNoActiveAccounts) {
		t.Fatalf("expected no-active-accounts after quota exhaustion, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestAccountStore_ApplyUploadUsage_UnderQuotaStaysActive exercises the
// complementary branch: usage below the quota leaves status untouched.
func TestAccountStore_ApplyUploadUsage_UnderQuotaStaysActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	store := &AccountStore{pool: mock}
	quotaResetAt := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT daily_uploaded_bytes, daily_quota_bytes, quota_reset_at`).
		WillReturnRows(pgxmock.NewRows([]string{"daily_uploaded_bytes", "daily_quota_bytes", "quota_reset_at"}).
			AddRow(int64(10), int64(100), quotaResetAt))
	mock.ExpectExec(`UPDATE accounts SET daily_uploaded_bytes`).
		WithArgs("acct-y", int64(25)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	if err := store.ApplyUploadUsage(context.Background(), "acct-y", 15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestAccountStore_ApplyUploadUsage_RollsOverExpiredQuotaWindow checks that
// a past quota_reset_at resets the counter before adding usage, rather than
// accumulating against a stale day's total.
func TestAccountStore_ApplyUploadUsage_RollsOverExpiredQuotaWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	store := &AccountStore{pool: mock}
	expiredResetAt := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT daily_uploaded_bytes, daily_quota_bytes, quota_reset_at`).
		WillReturnRows(pgxmock.NewRows([]string{"daily_uploaded_bytes", "daily_quota_bytes", "quota_reset_at"}).
			AddRow(int64(95), int64(100), expiredResetAt))
	mock.ExpectExec(`UPDATE accounts SET daily_uploaded_bytes`).
		WithArgs("acct-z", int64(15)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	if err := store.ApplyUploadUsage(context.Background(), "acct-z", 15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
