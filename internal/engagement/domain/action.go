package domain

// ActionVerb is the primary UI verb attached to a recommendation.
type ActionVerb string

const (
	VerbOpenComposer ActionVerb = "open-composer"
	VerbCreateTask   ActionVerb = "create-task"
	VerbOpenQuote    ActionVerb = "open-quote"
	VerbNavigate     ActionVerb = "navigate-to-route"
)

// Stable action keys. Consumers memoize on these, so they never change
// between evaluations of equivalent state.
const (
	ActionReplyNow             = "reply_now"
	ActionResolveOverdueTask   = "resolve_overdue_task"
	ActionRenewalExpiry        = "renewal_expiry"
	ActionFollowUpQuote        = "follow_up_quote"
	ActionAdvanceQualification = "advance_qualification"
	ActionContinueConversation = "continue_conversation"
)

// Impact is the (urgency, revenue, risk) scoring vector, each in [0,100].
type Impact struct {
	Urgency int `json:"urgency"`
	Revenue int `json:"revenue"`
	Risk    int `json:"risk"`
}

// Badge is a display annotation whose condition holds regardless of which
// precedence rule won.
type Badge struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// NextBestAction is the engine's output: a pure projection of the current
// lead state, constructed fresh on every evaluation and never persisted.
type NextBestAction struct {
	Key       string     `json:"key"`
	Title     string     `json:"title"`
	Rationale string     `json:"rationale"`
	Badges    []Badge    `json:"badges"`
	Impact    Impact     `json:"impact"`
	Verb      ActionVerb `json:"verb"`
	Route     *string    `json:"route,omitempty"`
	CTALabel  string     `json:"ctaLabel"`
}
