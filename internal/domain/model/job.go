package model

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// QueueKind names one of the four typed job queues.
type QueueKind string

const (
	QueueHooks    QueueKind = "hooks"
	QueueCommands QueueKind = "commands"
	QueueCronjobs QueueKind = "cronjobs"
	QueueEvents   QueueKind = "events"
)

// QueueKinds lists every queue in a stable order.
var QueueKinds = []QueueKind{QueueHooks, QueueCommands, QueueCronjobs, QueueEvents}

// OutcomeEvent maps an execution queue to the event name its outcome is recorded under.
func (k QueueKind) OutcomeEvent() (EventName, bool) {
	switch k {
	case QueueHooks:
		return EventNameHookExecuted, true
	case QueueCommands:
		return EventNameCommandExecuted, true
	case QueueCronjobs:
		return EventNameCronjobExecuted, true
	default:
		return "", false
	}
}

// JobData is the self-contained unit a worker executes. Exactly one of the
// type-specific sections is set, matching Kind.
type JobData struct {
	ID           string    `json:"id"`
	Kind         QueueKind `json:"kind"`
	FunctionID   string    `json:"functionId"`
	DomainID     string    `json:"domainId"`
	Token        string    `json:"token,omitempty"`
	ItemID       string    `json:"itemId"`
	ModuleID     string    `json:"moduleId,omitempty"`
	GameServerID string    `json:"gameServerId"`

	Command *CommandJob `json:"command,omitempty"`
	Hook    *HookJob    `json:"hook,omitempty"`
	Event   *GameEvent  `json:"event,omitempty"`
}

// CommandJob carries a parsed chat command.
type CommandJob struct {
	Player     Player         `json:"player"`
	Arguments  map[string]any `json:"arguments"`
	RawMessage string         `json:"rawMessage"`
}

// HookJob carries the event that matched the hook.
type HookJob struct {
	EventData GameEvent `json:"eventData"`
}

// Validate checks that the job can run without any request-scoped state.
func (j *JobData) Validate() error {
	if j.DomainID == "" {
		return fmt.Errorf("job %s: missing domain id", j.ID)
	}
	switch j.Kind {
	case QueueEvents:
		if j.Event == nil {
			return fmt.Errorf("job %s: events job without event", j.ID)
		}
		return nil
	case QueueCommands:
		if j.Command == nil {
			return fmt.Errorf("job %s: command job without command payload", j.ID)
		}
	case QueueHooks:
		if j.Hook == nil {
			return fmt.Errorf("job %s: hook job without event data", j.ID)
		}
	case QueueCronjobs:
	default:
		return fmt.Errorf("job %s: unknown queue %q", j.ID, j.Kind)
	}
	if j.FunctionID == "" {
		return fmt.Errorf("job %s: missing function id", j.ID)
	}
	return nil
}

// TriggerData is the type-specific payload handed to user code.
func (j *JobData) TriggerData() map[string]any {
	data := map[string]any{
		"gameServerId": j.GameServerID,
		"domainId":     j.DomainID,
		"itemId":       j.ItemID,
		"module":       j.ModuleID,
	}
	switch {
	case j.Command != nil:
		data["player"] = j.Command.Player
		data["arguments"] = j.Command.Arguments
		data["chatMessage"] = j.Command.RawMessage
	case j.Hook != nil:
		data["eventData"] = j.Hook.EventData
	}
	return data
}

// Encode marshals a job for the wire.
func (j *JobData) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob is the inverse of Encode.
func DecodeJob(raw []byte) (*JobData, error) {
	job := new(JobData)
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
