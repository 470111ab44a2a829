// Package cachetest provides the shared behaviour suite every cache.Cache
// implementation must pass.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/HomeMonitor/internal/port/cache"
)

// Run runs the standard compliance suite against c. Keys are prefixed with
// t.Name() so that suites sharing a backend do not collide.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	key := func(k string) string { return t.Name() + "-" + k }

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, key("stats"), []byte(`{"totalEvents":3}`), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, key("stats"))
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != `{"totalEvents":3}` {
			t.Fatalf("unexpected value %s", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, key("nonexistent"))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss for nonexistent key")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, key("del"), []byte("v"), time.Minute)
		if err := c.Delete(ctx, key("del")); err != nil {
			t.Fatal(err)
		}
		_, found, err := c.Get(ctx, key("del"))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		if err := c.Delete(ctx, key("never-existed")); err != nil {
			t.Fatal("Delete of nonexistent key should not error")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, key("ow"), []byte("v1"), time.Minute)
		_ = c.Set(ctx, key("ow"), []byte("v2"), time.Minute)
		val, found, err := c.Get(ctx, key("ow"))
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after overwrite")
		}
		if string(val) != "v2" {
			t.Fatalf("expected v2 after overwrite, got %s", val)
		}
	})
}
