package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedRepository remembers tokens that were found for at most ttl. Misses
// always go to the backing repository, so added tokens work at once and
// removed ones stop working within ttl.
type CachedRepository struct {
	Repository
	cache *expirable.LRU[string, struct{}]
}

func NewCachedRepository(backing Repository, size int, ttl time.Duration) (*CachedRepository, error) {
	if size <= 0 {
		return nil, errors.New("token cache size must be positive")
	}
	if ttl <= 0 {
		return nil, errors.New("token cache ttl must be positive")
	}
	return &CachedRepository{
		Repository: backing,
		cache:      expirable.NewLRU[string, struct{}](size, nil, ttl),
	}, nil
}

func (r *CachedRepository) Exists(ctx context.Context, token string) (bool, error) {
	if _, ok := r.cache.Get(token); ok {
		return true, nil
	}
	ok, err := r.Repository.Exists(ctx, token)
	if err != nil || !ok {
		return ok, err
	}
	r.cache.Add(token, struct{}{})
	return true, nil
}
