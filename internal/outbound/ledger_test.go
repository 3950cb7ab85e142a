package outbound

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var ledgerCols = []string{
	"id", "idempotency_key", "conversation_id", "lead_id", "channel", "destination",
	"body", "outcome", "external_id", "error_reason", "attempts", "created_at", "last_attempt_at",
}

func TestLedgerTryInsertClaimsKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	intent := testIntent()
	now := guardNow
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO outbound_log").
		WithArgs(intent.IdempotencyKey, intent.ConversationID, intent.LeadID, intent.Channel,
			intent.Destination, intent.Body, string(OutcomeInFlight), now).
		WillReturnRows(pgxmock.NewRows(ledgerCols).AddRow(
			id, intent.IdempotencyKey, intent.ConversationID, intent.LeadID, intent.Channel,
			intent.Destination, intent.Body, string(OutcomeInFlight), nil, nil, 1, now, now,
		))

	ledger := NewLedger(mock)
	rec, inserted, err := ledger.TryInsert(context.Background(), intent, now)
	if err != nil {
		t.Fatalf("try insert: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert to claim the key")
	}
	if rec.ID != id || rec.Outcome != OutcomeInFlight || rec.Attempts != 1 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLedgerTryInsertConflictIsNotAnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	intent := testIntent()

	// ON CONFLICT DO NOTHING yields no returned row.
	mock.ExpectQuery("INSERT INTO outbound_log").
		WithArgs(intent.IdempotencyKey, intent.ConversationID, intent.LeadID, intent.Channel,
			intent.Destination, intent.Body, string(OutcomeInFlight), guardNow).
		WillReturnError(pgx.ErrNoRows)

	ledger := NewLedger(mock)
	_, inserted, err := ledger.TryInsert(context.Background(), intent, guardNow)
	if err != nil {
		t.Fatalf("conflict must not be an error: %v", err)
	}
	if inserted {
		t.Fatal("conflict must not report an insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLedgerGetByKeyNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM outbound_log").
		WithArgs("conv:missing").
		WillReturnError(pgx.ErrNoRows)

	ledger := NewLedger(mock)
	if _, err := ledger.GetByKey(context.Background(), "conv:missing"); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestLedgerTakeOverStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	key := "conv:abc:trigger:msg-1"
	cutoff := guardNow.Add(-5 * time.Minute)

	mock.ExpectExec("UPDATE outbound_log").
		WithArgs(key, cutoff, guardNow, string(OutcomeInFlight)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ledger := NewLedger(mock)
	tookOver, err := ledger.TakeOverStale(context.Background(), key, cutoff, guardNow)
	if err != nil {
		t.Fatalf("take over: %v", err)
	}
	if !tookOver {
		t.Fatal("expected takeover")
	}

	mock.ExpectExec("UPDATE outbound_log").
		WithArgs(key, cutoff, guardNow, string(OutcomeInFlight)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tookOver, err = ledger.TakeOverStale(context.Background(), key, cutoff, guardNow)
	if err != nil {
		t.Fatalf("take over: %v", err)
	}
	if tookOver {
		t.Fatal("expected no takeover when row is fresh")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLedgerMarkSent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE outbound_log").
		WithArgs(id, string(OutcomeSent), "wamid.001", guardNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ledger := NewLedger(mock)
	if err := ledger.MarkSent(context.Background(), id, "wamid.001", guardNow); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	mock.ExpectExec("UPDATE outbound_log").
		WithArgs(id, string(OutcomeSent), "wamid.001", guardNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := ledger.MarkSent(context.Background(), id, "wamid.001", guardNow); err != ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
