package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"toolhub/cache"
)

// KeyFunc builds the cache key for one invocation.
type KeyFunc func(call *ToolCall) string

// DefaultKey derives a deterministic key from the tool name and a canonical
// JSON rendering of the arguments. encoding/json sorts map keys, so
// identical argument maps always produce identical keys.
func DefaultKey(call *ToolCall) string {
	data, err := json.Marshal(call.Args)
	if err != nil {
		return call.Name + ":" + fmt.Sprintf("%v", call.Args)
	}
	return call.Name + ":" + string(data)
}

// Cached returns a stage that serves responses from store within ttl. A hit
// short-circuits the chain without calling next. A miss advances the chain
// and stores the successful result; errors are never cached. The store is
// advisory: this stage never fails a call on its own account.
//
// Concurrent misses on the same key are deliberately not coalesced; each
// one triggers its own upstream call.
func Cached(store *cache.Store, namespace string, ttl time.Duration, keyFn KeyFunc) Stage {
	if keyFn == nil {
		keyFn = DefaultKey
	}
	return func(ctx context.Context, call *ToolCall, next Next) (string, error) {
		key := keyFn(call)
		if value, ok := store.Get(namespace, key); ok {
			return value, nil
		}

		result, err := next(ctx)
		if err != nil {
			return result, err
		}
		store.Set(namespace, key, result, ttl)
		return result, nil
	}
}
