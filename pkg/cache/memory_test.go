package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryTTLExpiry(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if val, _ := store.Get(ctx, "k"); val != "v" {
		t.Fatalf("Get = %q, want %q", val, "v")
	}

	now = now.Add(61 * time.Second)
	if val, _ := store.Get(ctx, "k"); val != "" {
		t.Fatalf("Get after expiry = %q, want empty", val)
	}
}

func TestMemoryZeroTTLNeverExpires(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	if err := store.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	now = now.Add(24 * time.Hour)
	if val, _ := store.Get(ctx, "k"); val != "v" {
		t.Fatalf("Get = %q, want %q", val, "v")
	}
}

func TestMemorySetNX(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	acquired, err := store.SetNX(ctx, "hold", 1, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("first SetNX = (%v, %v), want acquired", acquired, err)
	}
	acquired, err = store.SetNX(ctx, "hold", 2, time.Minute)
	if err != nil || acquired {
		t.Fatalf("second SetNX = (%v, %v), want not acquired", acquired, err)
	}

	// 过期后可重新占用
	now = now.Add(2 * time.Minute)
	acquired, err = store.SetNX(ctx, "hold", 3, time.Minute)
	if err != nil || !acquired {
		t.Fatalf("SetNX after expiry = (%v, %v), want acquired", acquired, err)
	}
}

func TestMemoryDeleteByPattern(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	keys := []string{"parts:list:1", "parts:list:2", "parts:detail:1", "orders:list:1"}
	for _, k := range keys {
		if err := store.Set(ctx, k, "x", 0); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}

	deleted, err := store.DeleteByPattern(ctx, "parts:list:")
	if err != nil {
		t.Fatalf("DeleteByPattern: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}
	if val, _ := store.Get(ctx, "parts:detail:1"); val != "x" {
		t.Fatalf("unrelated key removed")
	}
	if val, _ := store.Get(ctx, "orders:list:1"); val != "x" {
		t.Fatalf("other prefix removed")
	}
}

func TestMemoryGetSetJSON(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var out payload
	hit, err := store.GetJSON(ctx, "p", &out)
	if err != nil || hit {
		t.Fatalf("GetJSON miss = (%v, %v), want (false, nil)", hit, err)
	}

	if err := store.SetJSON(ctx, "p", payload{Name: "brake", Count: 3}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	hit, err = store.GetJSON(ctx, "p", &out)
	if err != nil || !hit {
		t.Fatalf("GetJSON hit = (%v, %v), want (true, nil)", hit, err)
	}
	if out.Name != "brake" || out.Count != 3 {
		t.Fatalf("payload = %+v", out)
	}
}
