package testsupport

import (
	"testing"

	"multiscribe/internal/cache"
	"multiscribe/internal/config"
)

// MustOpenStore opens a cache store for tests and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *cache.Store {
	t.Helper()

	store, err := cache.Open(cfg)
	if err != nil {
		t.Fatalf("open cache store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close cache store: %v", err)
		}
	})
	return store
}
