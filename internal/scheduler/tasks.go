package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskFollowUpRun = "followup.run"

type FollowUpRunPayload struct {
	WindowID         string `json:"windowId"`
	WindowDays       int    `json:"windowDays"`
	DryRun           bool   `json:"dryRun"`
	OnlyNotContacted bool   `json:"onlyNotContacted"`
}

func NewFollowUpRunTask(payload FollowUpRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpRun, data), nil
}

func ParseFollowUpRunPayload(task *asynq.Task) (FollowUpRunPayload, error) {
	var payload FollowUpRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpRunPayload{}, err
	}
	return payload, nil
}
