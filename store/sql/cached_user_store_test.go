package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-auth-broker/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubUserStore struct {
	mu       sync.Mutex
	users    map[int64]core.User
	getCalls int
}

func (s *stubUserStore) Create(_ context.Context, in core.CreateUserInput) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.users) + 1)
	user := core.User{ID: id, ExternalID: in.ExternalID, Username: in.Username}
	s.users[id] = user
	return user, nil
}

func (s *stubUserStore) GetByID(_ context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	user, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("stub: user %d: %w", id, core.ErrUserNotFound)
	}
	return user, nil
}

func (s *stubUserStore) GetByExternalID(_ context.Context, externalID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	for _, user := range s.users {
		if user.ExternalID == externalID {
			return user, nil
		}
	}
	return core.User{}, fmt.Errorf("stub: user %q: %w", externalID, core.ErrUserNotFound)
}

func (s *stubUserStore) Update(_ context.Context, id int64, in core.UpdateUserInput) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("stub: user %d: %w", id, core.ErrUserNotFound)
	}
	if in.Username != nil {
		user.Username = *in.Username
	}
	if in.DisplayName != nil {
		user.DisplayName = *in.DisplayName
	}
	s.users[id] = user
	return user, nil
}

func newTestUserCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedUserStore_GetByID_MissFetchThenHit(t *testing.T) {
	base := &stubUserStore{users: map[int64]core.User{}}
	store, err := NewCachedUserStore(base, newTestUserCacheService(t))
	if err != nil {
		t.Fatalf("new cached user store: %v", err)
	}

	created, err := store.Create(context.Background(), core.CreateUserInput{ExternalID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.GetByID(context.Background(), created.ID); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base read, got %d", base.getCalls)
	}

	if _, err := store.GetByID(context.Background(), created.ID); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected cache hit on second read, base calls=%d", base.getCalls)
	}
}

func TestCachedUserStore_UpdateInvalidatesCachedEntries(t *testing.T) {
	base := &stubUserStore{users: map[int64]core.User{}}
	store, err := NewCachedUserStore(base, newTestUserCacheService(t))
	if err != nil {
		t.Fatalf("new cached user store: %v", err)
	}

	created, err := store.Create(context.Background(), core.CreateUserInput{ExternalID: "u2", Username: "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.GetByID(context.Background(), created.ID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	newName := "bob2"
	if _, err := store.Update(context.Background(), created.ID, core.UpdateUserInput{Username: &newName}); err != nil {
		t.Fatalf("update: %v", err)
	}

	refreshed, err := store.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if refreshed.Username != "bob2" {
		t.Fatalf("expected invalidation to surface updated username, got %q", refreshed.Username)
	}
}
