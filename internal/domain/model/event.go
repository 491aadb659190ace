package model

import (
	"encoding/json"
	"time"
)

// EventType identifies a raw event emitted by a game server connector.
type EventType string

const (
	EventLogLine            EventType = "log-line"
	EventPlayerConnected    EventType = "player-connected"
	EventPlayerDisconnected EventType = "player-disconnected"
	EventChatMessage        EventType = "chat-message"
	// EventError is connector-internal; it is logged and never forwarded.
	EventError EventType = "error"
)

// ForwardedEventTypes are the connector events that are fed into the events queue.
var ForwardedEventTypes = []EventType{
	EventLogLine,
	EventPlayerConnected,
	EventPlayerDisconnected,
	EventChatMessage,
}

// IsForwarded reports whether events of this type travel past the game server manager.
func (t EventType) IsForwarded() bool {
	for _, f := range ForwardedEventTypes {
		if f == t {
			return true
		}
	}
	return false
}

// Player is the in-game identity attached to player-scoped events.
type Player struct {
	GameID string `json:"gameId"`
	Name   string `json:"name,omitempty"`
	// ID is the Takaro-side player id when the connector or API already resolved it.
	ID string `json:"id,omitempty"`
}

// EventPayload is the normalized body of a raw game event.
type EventPayload struct {
	Msg    string          `json:"msg,omitempty"`
	Player *Player         `json:"player,omitempty"`
	Extra  json.RawMessage `json:"extra,omitempty"`
}

// GameEvent is a transient raw event. It is never persisted as-is, only turned
// into queue jobs or dropped.
type GameEvent struct {
	Type         EventType    `json:"type"`
	GameServerID string       `json:"gameServerId"`
	DomainID     string       `json:"domainId"`
	Payload      EventPayload `json:"payload"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NewGameEvent stamps an event produced by a connector. Connectors do not know
// the domain; the manager tags it when forwarding.
func NewGameEvent(t EventType, payload EventPayload) GameEvent {
	return GameEvent{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// EventName is the name of a recorded event in the event service.
type EventName string

const (
	EventNameCommandExecuted    EventName = "command-executed"
	EventNameHookExecuted       EventName = "hook-executed"
	EventNameCronjobExecuted    EventName = "cronjob-executed"
	EventNameRateLimitExceeded  EventName = "rate-limit-exceeded"
	EventNamePlayerConnected    EventName = "player-connected"
	EventNamePlayerDisconnected EventName = "player-disconnected"
	EventNameChatMessage        EventName = "chat-message"
)

// EventRecord is the write-once shape sent to the event recording service.
type EventRecord struct {
	EventName    EventName      `json:"eventName"`
	GameServerID string         `json:"gameserverId,omitempty"`
	DomainID     string         `json:"domainId,omitempty"`
	PlayerID     string         `json:"playerId,omitempty"`
	ModuleID     string         `json:"moduleId,omitempty"`
	Meta         map[string]any `json:"meta"`
}
