package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("lead not found")

// db is the subset of pgxpool.Pool the repository needs.
// pgxmock satisfies it in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db db
}

func New(db db) *Repository {
	return &Repository{db: db}
}

type Lead struct {
	ID                  uuid.UUID
	Stage               string
	ServiceCategory     string
	OwnerID             *uuid.UUID
	DealProbability     *int
	LeadScore           *int
	IsRenewal           bool
	EstimatedValueCents *int64
	ArchivedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Conversation struct {
	ID                   uuid.UUID
	LeadID               uuid.UUID
	Channel              string
	Destination          string
	LastInboundAt        *time.Time
	LastOutboundAt       *time.Time
	UnreadCount          int
	LastInboundText      string
	LastInboundMessageID *string
	LastActivityAt       time.Time
}

type TaskStats struct {
	DueNowCount          int
	OverdueCount         int
	QuoteTaskOutstanding bool
}

type ExpiryItem struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Category  string
	ExpiresAt time.Time
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (Lead, error) {
	var lead Lead
	err := r.db.QueryRow(ctx, `
		SELECT id, stage, service_category, owner_id, deal_probability, lead_score,
			is_renewal, estimated_value_cents, archived_at, created_at, updated_at
		FROM leads
		WHERE id = $1
	`, id).Scan(
		&lead.ID, &lead.Stage, &lead.ServiceCategory, &lead.OwnerID, &lead.DealProbability,
		&lead.LeadScore, &lead.IsRenewal, &lead.EstimatedValueCents, &lead.ArchivedAt,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// GetConversationByLead returns the lead's conversation, or nil when the lead
// has never been messaged.
func (r *Repository) GetConversationByLead(ctx context.Context, leadID uuid.UUID) (*Conversation, error) {
	var conv Conversation
	err := r.db.QueryRow(ctx, `
		SELECT id, lead_id, channel, destination, last_inbound_at, last_outbound_at,
			unread_count, last_inbound_text, last_inbound_message_id, last_activity_at
		FROM conversations
		WHERE lead_id = $1
		ORDER BY last_activity_at DESC
		LIMIT 1
	`, leadID).Scan(
		&conv.ID, &conv.LeadID, &conv.Channel, &conv.Destination, &conv.LastInboundAt,
		&conv.LastOutboundAt, &conv.UnreadCount, &conv.LastInboundText,
		&conv.LastInboundMessageID, &conv.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// GetTaskStats aggregates the lead's open tasks relative to now.
// A task is overdue when its due date has passed, due now when it falls
// within the remainder of the current UTC day.
func (r *Repository) GetTaskStats(ctx context.Context, leadID uuid.UUID, now time.Time) (TaskStats, error) {
	now = now.UTC()
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	var stats TaskStats
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE due_at >= $2 AND due_at < $3),
			COUNT(*) FILTER (WHERE due_at < $2),
			COALESCE(BOOL_OR(kind = 'QUOTE_FOLLOW_UP'), false)
		FROM tasks
		WHERE lead_id = $1 AND status = 'OPEN'
	`, leadID, now, dayEnd).Scan(&stats.DueNowCount, &stats.OverdueCount, &stats.QuoteTaskOutstanding)
	if err != nil {
		return TaskStats{}, fmt.Errorf("get task stats: %w", err)
	}
	return stats, nil
}

func (r *Repository) ListExpiryItems(ctx context.Context, leadID uuid.UUID) ([]ExpiryItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, lead_id, category, expires_at
		FROM expiry_items
		WHERE lead_id = $1
		ORDER BY expires_at ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list expiry items: %w", err)
	}
	defer rows.Close()

	items := make([]ExpiryItem, 0)
	for rows.Next() {
		var item ExpiryItem
		if err := rows.Scan(&item.ID, &item.LeadID, &item.Category, &item.ExpiresAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

type CreateTaskParams struct {
	LeadID uuid.UUID
	Title  string
	Kind   string
	DueAt  *time.Time
}

func (r *Repository) CreateTask(ctx context.Context, params CreateTaskParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO tasks (lead_id, title, kind, due_at, status)
		VALUES ($1, $2, $3, $4, 'OPEN')
		RETURNING id
	`, params.LeadID, params.Title, params.Kind, params.DueAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create task: %w", err)
	}
	return id, nil
}

// TouchConversationOutbound records a delivered outbound message: it advances
// the outbound timestamp and clears the unread count. Only called after the
// gateway confirmed the send, since moving last_outbound_at past the last
// inbound message clears the pending-reply signal.
func (r *Repository) TouchConversationOutbound(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_outbound_at = $2, last_activity_at = $2, unread_count = 0
		WHERE id = $1
	`, conversationID, at)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// TouchConversationActivity bumps only the activity timestamp. Called after a
// failed dispatch attempt so the attempt stays visible without rewriting the
// conversation's reply state.
func (r *Repository) TouchConversationActivity(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_activity_at = $2
		WHERE id = $1
	`, conversationID, at)
	if err != nil {
		return fmt.Errorf("touch conversation activity: %w", err)
	}
	return nil
}

type CandidateParams struct {
	WindowDays       int
	OnlyNotContacted bool
	Now              time.Time
	Limit            int
}

// FollowUpCandidate joins a lead with its conversation for batch evaluation.
type FollowUpCandidate struct {
	Lead         Lead
	Conversation *Conversation
}

// ListFollowUpCandidates selects leads eligible for a follow-up run: open
// pipeline stages with either an expiry item inside the window or no outbound
// contact within it.
func (r *Repository) ListFollowUpCandidates(ctx context.Context, params CandidateParams) ([]FollowUpCandidate, error) {
	now := params.Now.UTC()
	horizon := now.AddDate(0, 0, params.WindowDays)
	cutoff := now.AddDate(0, 0, -params.WindowDays)
	limit := params.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.Query(ctx, `
		SELECT l.id, l.stage, l.service_category, l.owner_id, l.deal_probability, l.lead_score,
			l.is_renewal, l.estimated_value_cents, l.archived_at, l.created_at, l.updated_at,
			c.id, c.lead_id, c.channel, c.destination, c.last_inbound_at, c.last_outbound_at,
			c.unread_count, c.last_inbound_text, c.last_inbound_message_id, c.last_activity_at
		FROM leads l
		LEFT JOIN LATERAL (
			SELECT * FROM conversations
			WHERE lead_id = l.id
			ORDER BY last_activity_at DESC
			LIMIT 1
		) c ON true
		WHERE l.archived_at IS NULL
			AND l.stage NOT IN ('Won', 'Lost')
			AND (
				EXISTS (
					SELECT 1 FROM expiry_items e
					WHERE e.lead_id = l.id AND e.expires_at <= $1
				)
				OR c.last_outbound_at IS NULL
				OR c.last_outbound_at < $2
			)
			AND ($3 = false OR c.last_outbound_at IS NULL OR c.last_outbound_at < $2)
		ORDER BY l.updated_at ASC
		LIMIT $4
	`, horizon, cutoff, params.OnlyNotContacted, limit)
	if err != nil {
		return nil, fmt.Errorf("list follow-up candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]FollowUpCandidate, 0)
	for rows.Next() {
		var lead Lead
		var convID *uuid.UUID
		var convLeadID *uuid.UUID
		var channel, destination, inboundText *string
		var lastInboundAt, lastOutboundAt, lastActivityAt *time.Time
		var unreadCount *int
		var lastInboundMessageID *string

		if err := rows.Scan(
			&lead.ID, &lead.Stage, &lead.ServiceCategory, &lead.OwnerID, &lead.DealProbability,
			&lead.LeadScore, &lead.IsRenewal, &lead.EstimatedValueCents, &lead.ArchivedAt,
			&lead.CreatedAt, &lead.UpdatedAt,
			&convID, &convLeadID, &channel, &destination, &lastInboundAt, &lastOutboundAt,
			&unreadCount, &inboundText, &lastInboundMessageID, &lastActivityAt,
		); err != nil {
			return nil, err
		}

		candidate := FollowUpCandidate{Lead: lead}
		if convID != nil {
			conv := Conversation{
				ID:                   *convID,
				LeadID:               *convLeadID,
				LastInboundAt:        lastInboundAt,
				LastOutboundAt:       lastOutboundAt,
				LastInboundMessageID: lastInboundMessageID,
			}
			if channel != nil {
				conv.Channel = *channel
			}
			if destination != nil {
				conv.Destination = *destination
			}
			if unreadCount != nil {
				conv.UnreadCount = *unreadCount
			}
			if inboundText != nil {
				conv.LastInboundText = *inboundText
			}
			if lastActivityAt != nil {
				conv.LastActivityAt = *lastActivityAt
			}
			candidate.Conversation = &conv
		}
		candidates = append(candidates, candidate)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return candidates, nil
}
