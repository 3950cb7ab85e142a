// Package expiry condenses a lead's expiry-bearing records into the nearest
// qualifying deadline.
package expiry

import (
	"time"

	"engagement_backend/internal/engagement/domain"
	"engagement_backend/internal/engagement/repository"
)

// Summarize picks the minimum days-remaining among the lead's expiry items.
// Days are counted in calendar days between UTC dates, so an item expiring
// later today reports 0 and an item expired yesterday reports -1.
func Summarize(now time.Time, items []repository.ExpiryItem) domain.ExpirySummary {
	var summary domain.ExpirySummary
	for _, item := range items {
		days := calendarDays(now, item.ExpiresAt)
		if summary.DaysRemaining == nil || days < *summary.DaysRemaining {
			d := days
			summary.DaysRemaining = &d
			summary.Category = item.Category
		}
	}
	return summary
}

func calendarDays(from, to time.Time) int {
	a := truncateDay(from)
	b := truncateDay(to)
	return int(b.Sub(a).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
