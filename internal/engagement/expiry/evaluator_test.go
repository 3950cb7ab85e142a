package expiry

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"engagement_backend/internal/engagement/repository"
)

var evalNow = time.Date(2026, 8, 1, 15, 30, 0, 0, time.UTC)

func item(category string, expiresAt time.Time) repository.ExpiryItem {
	return repository.ExpiryItem{
		ID:        uuid.New(),
		LeadID:    uuid.New(),
		Category:  category,
		ExpiresAt: expiresAt,
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(evalNow, nil)
	if summary.DaysRemaining != nil {
		t.Fatalf("expected nil days remaining, got %d", *summary.DaysRemaining)
	}
	if summary.Category != "" {
		t.Fatalf("expected empty category, got %q", summary.Category)
	}
}

func TestSummarizePicksMinimum(t *testing.T) {
	items := []repository.ExpiryItem{
		item("permit", evalNow.AddDate(0, 0, 30)),
		item("license", evalNow.AddDate(0, 0, 3)),
		item("contract", evalNow.AddDate(0, 0, 10)),
	}
	summary := Summarize(evalNow, items)
	if summary.DaysRemaining == nil || *summary.DaysRemaining != 3 {
		t.Fatalf("expected 3 days remaining, got %v", summary.DaysRemaining)
	}
	if summary.Category != "license" {
		t.Fatalf("expected category license, got %q", summary.Category)
	}
}

func TestSummarizeExpiredIsNegative(t *testing.T) {
	items := []repository.ExpiryItem{
		item("contract", evalNow.AddDate(0, 0, -2)),
		item("permit", evalNow.AddDate(0, 0, 5)),
	}
	summary := Summarize(evalNow, items)
	if summary.DaysRemaining == nil || *summary.DaysRemaining != -2 {
		t.Fatalf("expected -2 days remaining, got %v", summary.DaysRemaining)
	}
	if summary.Category != "contract" {
		t.Fatalf("expected category contract, got %q", summary.Category)
	}
}

func TestCalendarDayBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		expiresAt time.Time
		want      int
	}{
		{"later today", time.Date(2026, 8, 1, 23, 59, 0, 0, time.UTC), 0},
		{"earlier today", time.Date(2026, 8, 1, 0, 1, 0, 0, time.UTC), 0},
		{"tomorrow morning", time.Date(2026, 8, 2, 1, 0, 0, 0, time.UTC), 1},
		{"yesterday evening", time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC), -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary := Summarize(evalNow, []repository.ExpiryItem{item("permit", tc.expiresAt)})
			if summary.DaysRemaining == nil || *summary.DaysRemaining != tc.want {
				t.Fatalf("expected %d days, got %v", tc.want, summary.DaysRemaining)
			}
		})
	}
}
