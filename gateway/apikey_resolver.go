package gateway

import (
	"github.com/convictiond/oracled/cache"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/types"
)

// cachedResolver wraps Store.ValidateApiKey with the 5-min positive/negative
// cache spec.md §4.8 step 3 requires, so a hot key or a repeatedly-probed
// unknown key never reaches the store on every request.
type cachedResolver struct {
	store store.Store
	cache *cache.TTLCache
}

func newCachedResolver(s store.Store, c *cache.TTLCache) *cachedResolver {
	return &cachedResolver{store: s, cache: c}
}

func (r *cachedResolver) Resolve(plainKey string) (types.ApiKey, bool) {
	if v, ok := r.cache.Get(plainKey); ok {
		return v.(types.ApiKey), true
	}
	if r.cache.GetNegative(plainKey) {
		return types.ApiKey{}, false
	}
	rec, ok, err := r.store.ValidateApiKey(plainKey)
	if err != nil || !ok {
		r.cache.SetNegative(plainKey)
		return types.ApiKey{}, false
	}
	r.cache.Set(plainKey, rec)
	return rec, true
}
