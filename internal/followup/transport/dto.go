package transport

// RunRequest is the request body for starting a follow-up engine run.
type RunRequest struct {
	WindowDays       int  `json:"windowDays" validate:"omitempty,min=1,max=365"`
	DryRun           bool `json:"dryRun"`
	OnlyNotContacted bool `json:"onlyNotContacted"`
}
