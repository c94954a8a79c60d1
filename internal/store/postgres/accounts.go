package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
)

// AccountStore persists domain.Account rows and implements the LRU
// scheduler's transactional selection, grounded verbatim on the original
// LruAccountScheduler's SQL.
type AccountStore struct {
	pool dbConn
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// NextAccount selects, leases and returns one account id under a
// serializable transaction, following §4.2 step by step:
//  1. reactivate expired cooldowns
//  2. select the LRU-eligible candidate with FOR UPDATE SKIP LOCKED
//  3. stamp a lease and return its id
func (s *AccountStore) NextAccount(ctx context.Context, leaseDuration time.Duration) (domain.AccountID, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return "", errs.WrapStore("begin next_account tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE accounts
		SET status = $1, cooldown_until = NULL, lease_expires_at = NULL,
		    daily_uploaded_bytes = 0, quota_reset_at = date_trunc('day', now()) + interval '1 day'
		WHERE status = $2 AND cooldown_until <= now()`,
		string(domain.AccountActive), string(domain.AccountCooldown))
	if err != nil {
		return "", errs.WrapStore("reactivate cooldown accounts", err)
	}

	var id string
	err = tx.QueryRow(ctx, `
		WITH candidate AS (
			SELECT id FROM accounts
			WHERE status = $1
			  AND (cooldown_until IS NULL OR cooldown_until <= now())
			  AND (lease_expires_at IS NULL OR lease_expires_at <= now())
			  AND (quota_reset_at <= now() OR daily_uploaded_bytes < daily_quota_bytes)
			ORDER BY last_used_at ASC NULLS FIRST
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE accounts SET lease_expires_at = now() + $2::interval
		WHERE id = (SELECT id FROM candidate)
		RETURNING id`,
		string(domain.AccountActive), leaseDuration.String()).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", errs.ErrNoActiveAccounts
		}
		return "", errs.WrapStore("select next account", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", errs.WrapStore("commit next_account tx", err)
	}
	return domain.AccountID(id), nil
}

// MarkUsed stamps last_used_at and clears the lease.
func (s *AccountStore) MarkUsed(ctx context.Context, id domain.AccountID) error {
	_, err := s.pool.Exec(ctx, `UPDATE accounts SET last_used_at = now(), lease_expires_at = NULL WHERE id = $1`, string(id))
	if err != nil {
		return errs.WrapStore("mark account used", err)
	}
	return nil
}

// ApplyUploadUsage adds bytes to the account's daily counter, rolling the
// day over if needed, and transitions to cooldown on quota exhaustion.
func (s *AccountStore) ApplyUploadUsage(ctx context.Context, id domain.AccountID, uploadedBytes int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.WrapStore("begin apply_upload_usage tx", err)
	}
	defer tx.Rollback(ctx)

	var dailyUploaded, dailyQuota int64
	var quotaResetAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT daily_uploaded_bytes, daily_quota_bytes, quota_reset_at FROM accounts WHERE id = $1 FOR UPDATE`,
		string(id)).Scan(&dailyUploaded, &dailyQuota, &quotaResetAt)
	if err != nil {
		return errs.WrapStore("load account for usage", err)
	}

	if !quotaResetAt.After(time.Now()) {
		dailyUploaded = 0
	}
	dailyUploaded += uploadedBytes

	if dailyUploaded >= dailyQuota {
		_, err = tx.Exec(ctx, `
			UPDATE accounts SET daily_uploaded_bytes = $2, status = $3, cooldown_until = quota_reset_at WHERE id = $1`,
			string(id), dailyUploaded, string(domain.AccountCooldown))
	} else {
		_, err = tx.Exec(ctx, `UPDATE accounts SET daily_uploaded_bytes = $2 WHERE id = $1`, string(id), dailyUploaded)
	}
	if err != nil {
		return errs.WrapStore("apply upload usage", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.WrapStore("commit apply_upload_usage tx", err)
	}
	return nil
}

// ActiveCount returns the number of accounts currently active.
func (s *AccountStore) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM accounts WHERE status = $1`, string(domain.AccountActive)).Scan(&n)
	if err != nil {
		return 0, errs.WrapStore("count active accounts", err)
	}
	return n, nil
}

