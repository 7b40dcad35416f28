package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-auth-broker/core"
	"github.com/uptrace/bun"
)

type UserStore struct {
	db *bun.DB
}

func NewUserStore(db *bun.DB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) Create(ctx context.Context, in core.CreateUserInput) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := in.Validate(); err != nil {
		return core.User{}, err
	}

	record := newUserRecord(in, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.User{}, fmt.Errorf("sqlstore: create user: %w", err)
	}
	return record.toDomain(), nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	record := &userRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, fmt.Errorf("sqlstore: user %d: %w", id, core.ErrUserNotFound)
		}
		return core.User{}, fmt.Errorf("sqlstore: get user: %w", err)
	}
	return record.toDomain(), nil
}

func (s *UserStore) GetByExternalID(ctx context.Context, externalID string) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.User{}, fmt.Errorf("sqlstore: external id is required")
	}
	record := &userRecord{}
	err := s.db.NewSelect().Model(record).Where("?TableAlias.external_id = ?", externalID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, fmt.Errorf("sqlstore: user %q: %w", externalID, core.ErrUserNotFound)
		}
		return core.User{}, fmt.Errorf("sqlstore: get user by external id: %w", err)
	}
	return record.toDomain(), nil
}

func (s *UserStore) Update(ctx context.Context, id int64, in core.UpdateUserInput) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	if in.IsEmpty() {
		return s.GetByID(ctx, id)
	}

	query := s.db.NewUpdate().
		Model((*userRecord)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	if in.Username != nil {
		query = query.Set("username = ?", strings.TrimSpace(*in.Username))
	}
	if in.DisplayName != nil {
		query = query.Set("display_name = ?", strings.TrimSpace(*in.DisplayName))
	}

	result, err := query.Exec(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("sqlstore: update user: %w", err)
	}
	if affected, affErr := result.RowsAffected(); affErr == nil && affected == 0 {
		return core.User{}, fmt.Errorf("sqlstore: user %d: %w", id, core.ErrUserNotFound)
	}
	return s.GetByID(ctx, id)
}

var _ core.UserStore = (*UserStore)(nil)
