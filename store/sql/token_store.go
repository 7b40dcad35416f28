package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-auth-broker/core"
	"github.com/uptrace/bun"
)

type TokenStore struct {
	db *bun.DB
}

func NewTokenStore(db *bun.DB) (*TokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &TokenStore{db: db}, nil
}

// Save upserts the single token row per user. The original created_at
// survives rewrites so the row records first-authorization time.
func (s *TokenStore) Save(ctx context.Context, in core.SaveUserTokensInput) (core.UserToken, error) {
	if s == nil || s.db == nil {
		return core.UserToken{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.UserToken{}, err
	}

	record := newUserTokenRecord(in, time.Now().UTC())
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO UPDATE").
		Set("provider = EXCLUDED.provider").
		Set("external_id = EXCLUDED.external_id").
		Set("scopes = EXCLUDED.scopes").
		Set("encrypted_access_token = EXCLUDED.encrypted_access_token").
		Set("encrypted_refresh_token = EXCLUDED.encrypted_refresh_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.UserToken{}, fmt.Errorf("sqlstore: save tokens: %w", err)
	}
	return s.Get(ctx, in.UserID)
}

func (s *TokenStore) Get(ctx context.Context, userID int64) (core.UserToken, error) {
	if s == nil || s.db == nil {
		return core.UserToken{}, fmt.Errorf("sqlstore: token store is not configured")
	}
	record := &userTokenRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.user_id = ?", userID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.UserToken{}, fmt.Errorf("sqlstore: tokens for user %d: %w", userID, core.ErrTokensNotFound)
		}
		return core.UserToken{}, fmt.Errorf("sqlstore: get tokens: %w", err)
	}
	return record.toDomain(), nil
}

func (s *TokenStore) Delete(ctx context.Context, userID int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*userTokenRecord)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: delete tokens: %w", err)
	}
	return nil
}

var _ core.TokenStore = (*TokenStore)(nil)
