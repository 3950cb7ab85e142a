package domain

const (
	// StageUnknown is a sentinel for leads whose stage could not be resolved.
	// The engine treats it as an early-funnel stage.
	StageUnknown = ""

	StageNew          = "New"
	StageContacted    = "Contacted"
	StageQualified    = "Qualified"
	StageProposalSent = "Proposal_Sent"
	StageNegotiation  = "Negotiation"
	StageWon          = "Won"
	StageLost         = "Lost"
)

var knownStages = map[string]struct{}{
	StageNew:          {},
	StageContacted:    {},
	StageQualified:    {},
	StageProposalSent: {},
	StageNegotiation:  {},
	StageWon:          {},
	StageLost:         {},
}

func IsKnownStage(stage string) bool {
	_, ok := knownStages[stage]
	return ok
}

// IsProposalStage reports whether a quote/proposal has gone out for this stage.
func IsProposalStage(stage string) bool {
	return stage == StageProposalSent || stage == StageNegotiation
}

// IsClosedStage reports whether the lead left the active pipeline.
func IsClosedStage(stage string) bool {
	return stage == StageWon || stage == StageLost
}
