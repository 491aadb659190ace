package model

// Domain is the read-only tenant configuration this worker consumes.
type Domain struct {
	ID string `json:"id"`
	// EventRateLimits holds points per minute per event type. Types without an
	// entry are not limited.
	EventRateLimits map[EventType]int `json:"eventRateLimits,omitempty"`
	// ExecutionRateLimit caps sandbox invocations per minute for the whole domain.
	// Zero falls back to the configured default.
	ExecutionRateLimit int `json:"executionRateLimit,omitempty"`
	MaxVariables       int `json:"maxVariables,omitempty"`
}

// EventLimit returns the configured points per minute for t.
func (d *Domain) EventLimit(t EventType) (int, bool) {
	if d == nil || d.EventRateLimits == nil {
		return 0, false
	}
	points, ok := d.EventRateLimits[t]
	if !ok || points <= 0 {
		return 0, false
	}
	return points, true
}

// GameServer is the subset of a game server definition needed to connect.
type GameServer struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	ConnectionInfo map[string]string `json:"connectionInfo"`
}
