package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-auth-broker/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const userCacheKeyPrefix = "go-auth-broker::user::v1"

// CachedUserStore fronts the SQL user store with a read-through cache. The
// session layer resolves a user on every authenticated call, so the lookup
// is hot.
type CachedUserStore struct {
	base  core.UserStore
	cache repositorycache.CacheService
}

func NewCachedUserStore(base core.UserStore, cacheService repositorycache.CacheService) (*CachedUserStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base user store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: user cache service is required")
	}
	return &CachedUserStore{base: base, cache: cacheService}, nil
}

func userCacheKeyByID(id int64) string {
	return strings.Join([]string{userCacheKeyPrefix, "id", strconv.FormatInt(id, 10)}, "::")
}

func userCacheKeyByExternalID(externalID string) string {
	return strings.Join([]string{userCacheKeyPrefix, "external", url.PathEscape(externalID)}, "::")
}

func (s *CachedUserStore) Create(ctx context.Context, in core.CreateUserInput) (core.User, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.User{}, err
	}
	s.invalidate(ctx, created)
	return created, nil
}

func (s *CachedUserStore) GetByID(ctx context.Context, id int64) (core.User, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, userCacheKeyByID(id), func(ctx context.Context) (core.User, error) {
		return s.base.GetByID(ctx, id)
	})
}

func (s *CachedUserStore) GetByExternalID(ctx context.Context, externalID string) (core.User, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	externalID = strings.TrimSpace(externalID)
	return repositorycache.GetOrFetch(ctx, s.cache, userCacheKeyByExternalID(externalID), func(ctx context.Context) (core.User, error) {
		return s.base.GetByExternalID(ctx, externalID)
	})
}

func (s *CachedUserStore) Update(ctx context.Context, id int64, in core.UpdateUserInput) (core.User, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.User{}, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	updated, err := s.base.Update(ctx, id, in)
	if err != nil {
		return core.User{}, err
	}
	s.invalidate(ctx, updated)
	return updated, nil
}

func (s *CachedUserStore) invalidate(ctx context.Context, user core.User) {
	_ = s.cache.Delete(ctx, userCacheKeyByID(user.ID))
	if strings.TrimSpace(user.ExternalID) != "" {
		_ = s.cache.Delete(ctx, userCacheKeyByExternalID(user.ExternalID))
	}
}

var _ core.UserStore = (*CachedUserStore)(nil)
