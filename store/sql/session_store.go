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

type SessionStore struct {
	db   *bun.DB
	repo repository.Repository[*sessionRecord]
}

func NewSessionStore(db *bun.DB) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sessionRecord](db, sessionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session repository wiring: %w", err)
		}
	}
	return &SessionStore{db: db, repo: repo}, nil
}

func (s *SessionStore) Create(ctx context.Context, in core.CreateSessionInput) (core.Session, error) {
	if s == nil || s.db == nil {
		return core.Session{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	in.ID = strings.TrimSpace(in.ID)
	if err := in.Validate(); err != nil {
		return core.Session{}, err
	}

	record := newSessionRecord(in, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Session{}, fmt.Errorf("sqlstore: create session: %w", err)
	}
	return record.toDomain(), nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (core.Session, error) {
	if s == nil || s.repo == nil {
		return core.Session{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Session{}, fmt.Errorf("sqlstore: session id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Session{}, fmt.Errorf("sqlstore: get session: %w", err)
	}
	if len(records) == 0 {
		return core.Session{}, fmt.Errorf("sqlstore: session %q: %w", id, core.ErrSessionNotFound)
	}
	// Expired rows are invisible to readers even before cleanup sweeps them.
	session := records[0].toDomain()
	if session.Expired(time.Now().UTC()) {
		return core.Session{}, fmt.Errorf("sqlstore: session %q: %w", id, core.ErrSessionNotFound)
	}
	return session, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: session id is required")
	}
	_, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) CleanupExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: session store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("expires_at <= ?", time.Now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: cleanup sessions: %w", err)
	}
	affected, affErr := result.RowsAffected()
	if affErr != nil {
		return 0, nil
	}
	return affected, nil
}

var _ core.SessionStore = (*SessionStore)(nil)
