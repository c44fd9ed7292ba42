package auth

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_PutGet(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	principal := &Principal{ID: "usr-001", Email: "alice@example.com", Username: "alice"}
	cache.Put(ctx, principal.Email, principal, time.Minute)

	got, ok := cache.Get(ctx, principal.Email)
	if !ok {
		t.Fatal("Get() should hit after Put()")
	}
	if got.ID != "usr-001" || got.Username != "alice" {
		t.Errorf("Get() = %+v, want cached principal", got)
	}
}

func TestMemoryCache_Miss(t *testing.T) {
	cache := NewMemoryCache()

	if _, ok := cache.Get(context.Background(), "nobody@example.com"); ok {
		t.Error("Get() should miss for an unknown email")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	principal := &Principal{ID: "usr-001", Email: "alice@example.com"}
	cache.Put(ctx, principal.Email, principal, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.Get(ctx, principal.Email); ok {
		t.Error("Get() should miss after the TTL has elapsed")
	}
}

func TestMemoryCache_Invalidate(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	principal := &Principal{ID: "usr-001", Email: "alice@example.com"}
	cache.Put(ctx, principal.Email, principal, time.Minute)
	cache.Invalidate(ctx, principal.Email)

	if _, ok := cache.Get(ctx, principal.Email); ok {
		t.Error("Get() should miss after Invalidate()")
	}
}

func TestMemoryCache_Overwrite(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	cache.Put(ctx, "alice@example.com", &Principal{ID: "usr-001", Username: "alice"}, time.Minute)
	cache.Put(ctx, "alice@example.com", &Principal{ID: "usr-001", Username: "renamed"}, time.Minute)

	got, ok := cache.Get(ctx, "alice@example.com")
	if !ok {
		t.Fatal("Get() should hit after overwrite")
	}
	if got.Username != "renamed" {
		t.Errorf("Username = %q, want %q", got.Username, "renamed")
	}
}

func TestMemoryCache_ReturnsCopy(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	cache.Put(ctx, "alice@example.com", &Principal{ID: "usr-001", Username: "alice"}, time.Minute)

	first, _ := cache.Get(ctx, "alice@example.com")
	first.Username = "mutated"

	second, _ := cache.Get(ctx, "alice@example.com")
	if second.Username != "alice" {
		t.Error("mutating a returned principal should not affect the cached copy")
	}
}

func TestMemoryCache_IgnoresZeroTTL(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	cache.Put(ctx, "alice@example.com", &Principal{ID: "usr-001"}, 0)

	if _, ok := cache.Get(ctx, "alice@example.com"); ok {
		t.Error("Put() with zero TTL should not store an entry")
	}
}
