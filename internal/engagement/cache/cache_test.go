package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"engagement_backend/internal/engagement/domain"
)

func newTestCache(t *testing.T) (*RecommendationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, time.Minute), mr
}

func sampleAction() domain.NextBestAction {
	return domain.NextBestAction{
		Key:       domain.ActionReplyNow,
		Title:     "Reply now",
		Rationale: "Customer is waiting for a reply",
		Impact:    domain.Impact{Urgency: 95, Revenue: 10, Risk: 5},
		Verb:      domain.VerbOpenComposer,
		CTALabel:  "Open conversation",
	}
}

func TestInputHashIsStable(t *testing.T) {
	inputs := map[string]int{"a": 1, "b": 2}
	h1, err := InputHash("v1", inputs)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := InputHash("v1", inputs)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatal("identical inputs must hash identically")
	}

	h3, err := InputHash("v2", inputs)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h3 {
		t.Fatal("engine version must participate in the hash")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	leadID := uuid.New()
	action := sampleAction()

	hash, err := InputHash("v1", map[string]string{"lead": leadID.String()})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	got, err := c.Get(ctx, leadID, hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Set(ctx, leadID, hash, action); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err = c.Get(ctx, leadID, hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit after set")
	}
	if got.Key != action.Key || got.Impact != action.Impact {
		t.Fatalf("cached action mismatch: %+v", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	leadID := uuid.New()

	hash, err := InputHash("v1", "inputs")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := c.Set(ctx, leadID, hash, sampleAction()); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := c.Invalidate(ctx, leadID); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	got, err := c.Get(ctx, leadID, hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected miss after invalidation")
	}
}

func TestCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	leadID := uuid.New()

	hash, err := InputHash("v1", "inputs")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := c.Set(ctx, leadID, hash, sampleAction()); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, leadID, hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected entry to expire")
	}
}
