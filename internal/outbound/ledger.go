package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrRecordNotFound = errors.New("outbound record not found")

// db is the subset of pgxpool.Pool the ledger needs. pgxmock satisfies it
// in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is one row of the outbound_log ledger, the durable trace of every
// dispatch attempt.
type Record struct {
	ID             uuid.UUID
	IdempotencyKey string
	ConversationID uuid.UUID
	LeadID         uuid.UUID
	Channel        string
	Destination    string
	Body           string
	Outcome        Outcome
	ExternalID     *string
	ErrorReason    *string
	Attempts       int
	CreatedAt      time.Time
	LastAttemptAt  time.Time
}

type Ledger struct {
	db db
}

var _ ledgerStore = (*Ledger)(nil)

func NewLedger(db db) *Ledger {
	return &Ledger{db: db}
}

// TryInsert claims the intent's key with an in-flight placeholder row.
// The unique index on idempotency_key is the concurrency arbiter: exactly
// one of any number of racing callers gets inserted = true.
func (l *Ledger) TryInsert(ctx context.Context, intent SendIntent, now time.Time) (Record, bool, error) {
	var rec Record
	err := l.db.QueryRow(ctx, `
		INSERT INTO outbound_log (idempotency_key, conversation_id, lead_id, channel, destination, body, outcome, attempts, created_at, last_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, idempotency_key, conversation_id, lead_id, channel, destination, body, outcome, external_id, error_reason, attempts, created_at, last_attempt_at
	`, intent.IdempotencyKey, intent.ConversationID, intent.LeadID, intent.Channel,
		intent.Destination, intent.Body, string(OutcomeInFlight), now.UTC(),
	).Scan(
		&rec.ID, &rec.IdempotencyKey, &rec.ConversationID, &rec.LeadID, &rec.Channel,
		&rec.Destination, &rec.Body, &rec.Outcome, &rec.ExternalID, &rec.ErrorReason,
		&rec.Attempts, &rec.CreatedAt, &rec.LastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("insert outbound record: %w", err)
	}
	return rec, true, nil
}

func (l *Ledger) GetByKey(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := l.db.QueryRow(ctx, `
		SELECT id, idempotency_key, conversation_id, lead_id, channel, destination, body, outcome, external_id, error_reason, attempts, created_at, last_attempt_at
		FROM outbound_log
		WHERE idempotency_key = $1
	`, key).Scan(
		&rec.ID, &rec.IdempotencyKey, &rec.ConversationID, &rec.LeadID, &rec.Channel,
		&rec.Destination, &rec.Body, &rec.Outcome, &rec.ExternalID, &rec.ErrorReason,
		&rec.Attempts, &rec.CreatedAt, &rec.LastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("get outbound record: %w", err)
	}
	return rec, nil
}

// TakeOverStale re-claims an in-flight row whose last attempt is older than
// the cutoff. The conditional update makes the takeover race-safe: only one
// caller sees a row change.
func (l *Ledger) TakeOverStale(ctx context.Context, key string, cutoff, now time.Time) (bool, error) {
	tag, err := l.db.Exec(ctx, `
		UPDATE outbound_log
		SET attempts = attempts + 1, last_attempt_at = $3
		WHERE idempotency_key = $1 AND outcome = $4 AND last_attempt_at < $2
	`, key, cutoff.UTC(), now.UTC(), string(OutcomeInFlight))
	if err != nil {
		return false, fmt.Errorf("take over stale record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *Ledger) MarkSent(ctx context.Context, id uuid.UUID, externalID string, now time.Time) error {
	tag, err := l.db.Exec(ctx, `
		UPDATE outbound_log
		SET outcome = $2, external_id = $3, error_reason = NULL, last_attempt_at = $4
		WHERE id = $1
	`, id, string(OutcomeSent), externalID, now.UTC())
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (l *Ledger) MarkFailed(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	tag, err := l.db.Exec(ctx, `
		UPDATE outbound_log
		SET outcome = $2, error_reason = $3, last_attempt_at = $4
		WHERE id = $1
	`, id, string(OutcomeFailed), reason, now.UTC())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type ListParams struct {
	ConversationID *uuid.UUID
	Outcome        *Outcome
	Limit          int
	Offset         int
}

// List returns ledger rows newest first, for the audit endpoint.
func (l *Ledger) List(ctx context.Context, params ListParams) ([]Record, int, error) {
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var outcome *string
	if params.Outcome != nil {
		s := string(*params.Outcome)
		outcome = &s
	}

	var total int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM outbound_log
		WHERE ($1::uuid IS NULL OR conversation_id = $1)
			AND ($2::text IS NULL OR outcome = $2)
	`, params.ConversationID, outcome).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count outbound records: %w", err)
	}

	rows, err := l.db.Query(ctx, `
		SELECT id, idempotency_key, conversation_id, lead_id, channel, destination, body, outcome, external_id, error_reason, attempts, created_at, last_attempt_at
		FROM outbound_log
		WHERE ($1::uuid IS NULL OR conversation_id = $1)
			AND ($2::text IS NULL OR outcome = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, params.ConversationID, outcome, limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list outbound records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.IdempotencyKey, &rec.ConversationID, &rec.LeadID, &rec.Channel,
			&rec.Destination, &rec.Body, &rec.Outcome, &rec.ExternalID, &rec.ErrorReason,
			&rec.Attempts, &rec.CreatedAt, &rec.LastAttemptAt,
		); err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return records, total, nil
}
