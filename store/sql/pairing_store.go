package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-auth-broker/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type PairingStore struct {
	db   *bun.DB
	repo repository.Repository[*pairingSessionRecord]
}

func NewPairingStore(db *bun.DB) (*PairingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pairingSessionRecord](db, pairingHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid pairing repository wiring: %w", err)
		}
	}
	return &PairingStore{db: db, repo: repo}, nil
}

func (s *PairingStore) Create(ctx context.Context, in core.CreatePairingSessionInput) (core.PairingSession, error) {
	if s == nil || s.db == nil {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing store is not configured")
	}
	in.Code = strings.TrimSpace(in.Code)
	in.State = strings.TrimSpace(in.State)
	if err := in.Validate(); err != nil {
		return core.PairingSession{}, err
	}

	record := newPairingSessionRecord(in, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.PairingSession{}, fmt.Errorf("sqlstore: create pairing session: %w", err)
	}
	return record.toDomain(), nil
}

func (s *PairingStore) Get(ctx context.Context, code string) (core.PairingSession, error) {
	if s == nil || s.repo == nil {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing store is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing code is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("code", "=", code),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.PairingSession{}, fmt.Errorf("sqlstore: get pairing session: %w", err)
	}
	if len(records) == 0 {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing session %q: %w", code, core.ErrPairingSessionNotFound)
	}
	// Expired rows are invisible to readers even before cleanup sweeps them.
	session := records[0].toDomain()
	if session.Expired(time.Now().UTC()) {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing session %q: %w", code, core.ErrPairingSessionNotFound)
	}
	return session, nil
}

func (s *PairingStore) GetByState(ctx context.Context, state string) (core.PairingSession, error) {
	if s == nil || s.repo == nil {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing state is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("state", "=", state),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.PairingSession{}, fmt.Errorf("sqlstore: get pairing session by state: %w", err)
	}
	if len(records) == 0 {
		return core.PairingSession{}, fmt.Errorf("sqlstore: pairing state: %w", core.ErrPairingSessionNotFound)
	}
	return records[0].toDomain(), nil
}

// Complete marks the pairing session verified exactly once. The conditional
// update keeps concurrent callbacks from completing the same code twice and
// refuses codes past their deadline.
func (s *PairingStore) Complete(ctx context.Context, code string, userID int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: pairing store is not configured")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("sqlstore: pairing code is required")
	}
	if userID <= 0 {
		return fmt.Errorf("sqlstore: pairing user id is required")
	}
	now := time.Now().UTC()

	result, err := s.db.NewUpdate().
		Model((*pairingSessionRecord)(nil)).
		Set("completed = ?", true).
		Set("user_id = ?", userID).
		Where("code = ?", code).
		Where("completed = ?", false).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: complete pairing session: %w", err)
	}
	affected, affErr := result.RowsAffected()
	if affErr != nil {
		return nil
	}
	if affected == 0 {
		return s.classifyCompleteFailure(ctx, code, now)
	}
	return nil
}

// classifyCompleteFailure reads the raw row, not Get, so an expired session
// still classifies as expired rather than not-found.
func (s *PairingStore) classifyCompleteFailure(ctx context.Context, code string, now time.Time) error {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("code", "=", code),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: get pairing session: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("sqlstore: pairing session %q: %w", code, core.ErrPairingSessionNotFound)
	}
	session := records[0].toDomain()
	if session.Completed {
		return fmt.Errorf("sqlstore: pairing session %q: %w", code, core.ErrPairingSessionConsumed)
	}
	if !session.ExpiresAt.After(now) {
		return fmt.Errorf("sqlstore: pairing session %q: %w", code, core.ErrPairingSessionExpired)
	}
	return fmt.Errorf("sqlstore: pairing session %q could not be completed", code)
}

func (s *PairingStore) CleanupExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: pairing store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*pairingSessionRecord)(nil)).
		Where("expires_at <= ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: cleanup pairing sessions: %w", err)
	}
	affected, affErr := result.RowsAffected()
	if affErr != nil {
		return 0, nil
	}
	return affected, nil
}

var _ core.PairingStore = (*PairingStore)(nil)
