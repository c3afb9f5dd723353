package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedVerifier memoizes successful verifications for ttl. Failures are
// not cached.
type CachedVerifier struct {
	next  Verifier
	cache *expirable.LRU[string, Identity]
	now   func() time.Time
}

func NewCachedVerifier(next Verifier, size int, ttl time.Duration) *CachedVerifier {
	return &CachedVerifier{
		next:  next,
		cache: expirable.NewLRU[string, Identity](size, nil, ttl),
		now:   time.Now,
	}
}

func (v *CachedVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	key := tokenKey(token)
	if id, ok := v.cache.Get(key); ok {
		if id.ExpiresAt.IsZero() || v.now().Before(id.ExpiresAt) {
			return id, nil
		}
		v.cache.Remove(key)
	}
	id, err := v.next.Verify(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	v.cache.Add(key, id)
	return id, nil
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
