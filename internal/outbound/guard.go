package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"engagement_backend/platform/logger"
)

// ledgerStore abstracts the outbound_log ledger for the guard and dispatcher.
type ledgerStore interface {
	TryInsert(ctx context.Context, intent SendIntent, now time.Time) (Record, bool, error)
	GetByKey(ctx context.Context, key string) (Record, error)
	TakeOverStale(ctx context.Context, key string, cutoff, now time.Time) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, externalID string, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
}

// Decision is the guard's verdict on a send-intent.
type Decision struct {
	// Proceed is true when this caller won admission and must perform the
	// send, then mark the record sent or failed.
	Proceed bool
	// Record is the claimed ledger row when Proceed is true, otherwise the
	// prior row whose outcome answers the caller.
	Record Record
	// TookOverStale marks an admission that re-claimed a crashed attempt.
	TookOverStale bool
}

// Guard arbitrates dispatch admission. Safe for concurrent use across
// processes because the arbiter is the ledger's unique key, not a lock.
type Guard struct {
	ledger       ledgerStore
	staleTimeout time.Duration
	log          *logger.Logger
	now          func() time.Time
}

func NewGuard(ledger ledgerStore, staleTimeout time.Duration, log *logger.Logger) *Guard {
	if staleTimeout <= 0 {
		staleTimeout = 5 * time.Minute
	}
	return &Guard{
		ledger:       ledger,
		staleTimeout: staleTimeout,
		log:          log,
		now:          time.Now,
	}
}

// Admit decides whether the caller may dispatch the intent. Exactly one of
// any number of concurrent calls with the same idempotency key proceeds; the
// rest observe the recorded outcome.
func (g *Guard) Admit(ctx context.Context, intent SendIntent) (Decision, error) {
	if err := intent.Validate(); err != nil {
		return Decision{}, fmt.Errorf("invalid send intent: %w", err)
	}

	now := g.now().UTC()
	rec, inserted, err := g.ledger.TryInsert(ctx, intent, now)
	if err != nil {
		return Decision{}, err
	}
	if inserted {
		return Decision{Proceed: true, Record: rec}, nil
	}

	prior, err := g.ledger.GetByKey(ctx, intent.IdempotencyKey)
	if err != nil {
		return Decision{}, err
	}

	if prior.Outcome == OutcomeInFlight {
		cutoff := now.Add(-g.staleTimeout)
		tookOver, err := g.ledger.TakeOverStale(ctx, intent.IdempotencyKey, cutoff, now)
		if err != nil {
			return Decision{}, err
		}
		if tookOver {
			// A previous attempt crashed between claiming the key and
			// recording an outcome. Re-sending here trades strict
			// exactly-once for at-least-once in this narrow window.
			g.log.Warn("taking over stale in-flight dispatch",
				"idempotencyKey", intent.IdempotencyKey,
				"staleSince", prior.LastAttemptAt,
			)
			prior.Attempts++
			prior.LastAttemptAt = now
			return Decision{Proceed: true, Record: prior, TookOverStale: true}, nil
		}
	}

	return Decision{Proceed: false, Record: prior}, nil
}
