package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var repoNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestGetLeadNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM leads").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	repo := New(mock)
	if _, err := repo.GetLead(context.Background(), id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetConversationByLeadNoneIsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	leadID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs(leadID).
		WillReturnError(pgx.ErrNoRows)

	repo := New(mock)
	conv, err := repo.GetConversationByLead(context.Background(), leadID)
	if err != nil {
		t.Fatalf("never-messaged lead must not error: %v", err)
	}
	if conv != nil {
		t.Fatalf("expected nil conversation, got %+v", conv)
	}
}

func TestGetTaskStatsBoundsDueNowToCurrentDay(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	leadID := uuid.New()
	dayEnd := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT").
		WithArgs(leadID, repoNow, dayEnd).
		WillReturnRows(pgxmock.NewRows([]string{"due_now", "overdue", "quote_outstanding"}).
			AddRow(2, 1, true))

	repo := New(mock)
	stats, err := repo.GetTaskStats(context.Background(), leadID, repoNow)
	if err != nil {
		t.Fatalf("get task stats: %v", err)
	}
	if stats.DueNowCount != 2 || stats.OverdueCount != 1 || !stats.QuoteTaskOutstanding {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateTaskReturnsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	leadID := uuid.New()
	taskID := uuid.New()
	due := repoNow.AddDate(0, 0, 1)

	mock.ExpectQuery("INSERT INTO tasks").
		WithArgs(leadID, "Qualify and progress this lead", "QUALIFICATION", &due).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(taskID))

	repo := New(mock)
	got, err := repo.CreateTask(context.Background(), CreateTaskParams{
		LeadID: leadID,
		Title:  "Qualify and progress this lead",
		Kind:   "QUALIFICATION",
		DueAt:  &due,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if got != taskID {
		t.Fatalf("expected %s, got %s", taskID, got)
	}
}

func TestTouchConversationOutbound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("UPDATE conversations").
		WithArgs(convID, repoNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := New(mock)
	if err := repo.TouchConversationOutbound(context.Background(), convID, repoNow); err != nil {
		t.Fatalf("touch conversation: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTouchConversationActivityLeavesReplyState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec(`UPDATE conversations\s+SET last_activity_at = \$2\s+WHERE id = \$1`).
		WithArgs(convID, repoNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := New(mock)
	if err := repo.TouchConversationActivity(context.Background(), convID, repoNow); err != nil {
		t.Fatalf("touch conversation activity: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListFollowUpCandidatesScansNullConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	leadID := uuid.New()
	convID := uuid.New()
	cols := []string{
		"id", "stage", "service_category", "owner_id", "deal_probability", "lead_score",
		"is_renewal", "estimated_value_cents", "archived_at", "created_at", "updated_at",
		"c_id", "c_lead_id", "c_channel", "c_destination", "c_last_inbound_at", "c_last_outbound_at",
		"c_unread_count", "c_last_inbound_text", "c_last_inbound_message_id", "c_last_activity_at",
	}

	horizon := repoNow.AddDate(0, 0, 14)
	cutoff := repoNow.AddDate(0, 0, -14)
	channel := "whatsapp"
	destination := "+31612345678"
	unread := 0

	mock.ExpectQuery("SELECT (.+) FROM leads l").
		WithArgs(horizon, cutoff, false, 500).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(
				leadID, "New", "solar", nil, nil, nil,
				false, nil, nil, repoNow, repoNow,
				nil, nil, nil, nil, nil, nil,
				nil, nil, nil, nil,
			).
			AddRow(
				leadID, "Contacted", "solar", nil, nil, nil,
				false, nil, nil, repoNow, repoNow,
				&convID, &leadID, &channel, &destination, nil, nil,
				&unread, nil, nil, &repoNow,
			))

	repo := New(mock)
	candidates, err := repo.ListFollowUpCandidates(context.Background(), CandidateParams{
		WindowDays: 14,
		Now:        repoNow,
	})
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Conversation != nil {
		t.Fatal("lead without conversation must scan to nil")
	}
	if candidates[1].Conversation == nil || candidates[1].Conversation.ID != convID {
		t.Fatalf("expected conversation %s, got %+v", convID, candidates[1].Conversation)
	}
	if candidates[1].Conversation.Channel != channel {
		t.Fatalf("expected channel %q, got %q", channel, candidates[1].Conversation.Channel)
	}
}
