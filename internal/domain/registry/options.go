package registry

import "time"

// Option defines a functional configuration type for the GameServerManager.
type Option func(*GameServerManager)

// WithStopTimeout bounds how long a stop waits for the pump to drain.
func WithStopTimeout(d time.Duration) Option {
	return func(m *GameServerManager) {
		m.config.stopTimeout = d
	}
}

// WithStartTimeout bounds the emitter's Start call.
func WithStartTimeout(d time.Duration) Option {
	return func(m *GameServerManager) {
		m.config.startTimeout = d
	}
}
