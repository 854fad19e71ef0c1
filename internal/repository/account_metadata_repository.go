package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AccountMetadataRepo persists (account, user, key) -> value rows used by
// the BNR, DOMS and ceasing-secondary-sharing features.
type AccountMetadataRepo struct{ DB *sql.DB }

func NewAccountMetadataRepo(db *sql.DB) *AccountMetadataRepo { return &AccountMetadataRepo{DB: db} }

// Get returns a single metadata value or ErrNotFound.
func (r *AccountMetadataRepo) Get(ctx context.Context, accountID, userID, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx,
		"SELECT meta_value FROM account_metadata WHERE account_id=? AND user_id=? AND meta_key=? LIMIT 1",
		accountID, userID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

// Upsert writes all given keys for an (account, user) pair in one transaction.
func (r *AccountMetadataRepo) Upsert(ctx context.Context, accountID, userID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO account_metadata (account_id, user_id, meta_key, meta_value) VALUES (?,?,?,?) "+
				"ON DUPLICATE KEY UPDATE meta_value=VALUES(meta_value)",
			accountID, userID, k, v); err != nil {
			return fmt.Errorf("upsert %s for account %s: %w", k, accountID, err)
		}
	}
	return tx.Commit()
}

// DeleteKey removes one key for an (account, user) pair.
func (r *AccountMetadataRepo) DeleteKey(ctx context.Context, accountID, userID, key string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM account_metadata WHERE account_id=? AND user_id=? AND meta_key=?",
		accountID, userID, key)
	return err
}

// DeleteAllForAccount removes a key for every user of an account.
func (r *AccountMetadataRepo) DeleteAllForAccount(ctx context.Context, accountID, key string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM account_metadata WHERE account_id=? AND meta_key=?",
		accountID, key)
	return err
}

// ListByAccountKey returns userID -> value for one key of an account.
func (r *AccountMetadataRepo) ListByAccountKey(ctx context.Context, accountID, key string) (map[string]string, error) {
	return r.list(ctx,
		"SELECT user_id, meta_value FROM account_metadata WHERE account_id=? AND meta_key=?",
		accountID, key)
}

// ListByUserKey returns accountID -> value for one key of a user.
func (r *AccountMetadataRepo) ListByUserKey(ctx context.Context, userID, key string) (map[string]string, error) {
	return r.list(ctx,
		"SELECT account_id, meta_value FROM account_metadata WHERE user_id=? AND meta_key=?",
		userID, key)
}

func (r *AccountMetadataRepo) list(ctx context.Context, query string, args ...any) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var id, v string
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, rows.Err()
}
