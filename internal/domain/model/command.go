package model

// ArgumentType is the coercion rule applied to a command argument.
type ArgumentType string

const (
	ArgString  ArgumentType = "string"
	ArgNumber  ArgumentType = "number"
	ArgBoolean ArgumentType = "boolean"
)

// CommandArgument describes one positional argument.
type CommandArgument struct {
	Name         string       `json:"name"`
	Position     int          `json:"position"`
	Type         ArgumentType `json:"type"`
	DefaultValue *string      `json:"defaultValue,omitempty"`
	HelpText     string       `json:"helpText,omitempty"`
}

// CommandDefinition is immutable once loaded for an execution.
type CommandDefinition struct {
	Trigger   string            `json:"trigger"`
	Arguments []CommandArgument `json:"arguments"`
}

// ParsedCommand is built fresh per invocation and never mutated.
type ParsedCommand struct {
	Command   string
	Arguments map[string]any
}

// InstalledCommand binds a definition to the function that implements it.
type InstalledCommand struct {
	ID         string            `json:"id"`
	FunctionID string            `json:"functionId"`
	ModuleID   string            `json:"moduleId"`
	ItemID     string            `json:"itemId"`
	Definition CommandDefinition `json:"definition"`
}

// InstalledHook is a hook subscribed to an event type, optionally filtered by regex.
type InstalledHook struct {
	ID         string    `json:"id"`
	FunctionID string    `json:"functionId"`
	ModuleID   string    `json:"moduleId"`
	ItemID     string    `json:"itemId"`
	EventType  EventType `json:"eventType"`
	Regex      string    `json:"regex,omitempty"`
}

// InstalledCronjob runs on a 5-field cron schedule.
type InstalledCronjob struct {
	ID            string `json:"id"`
	FunctionID    string `json:"functionId"`
	ModuleID      string `json:"moduleId"`
	ItemID        string `json:"itemId"`
	TemporalValue string `json:"temporalValue"`
}
