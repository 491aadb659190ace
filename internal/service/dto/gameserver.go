// Package dto holds the wire shapes of the ops HTTP API.
package dto

import (
	"errors"
	"time"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
	"github.com/gettakaro/takaro-worker/internal/domain/registry"
)

// AddGameServerRequest is the body of POST /v1/domains/{domainId}/gameservers.
type AddGameServerRequest struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	ConnectionInfo map[string]string `json:"connectionInfo"`
}

func (r *AddGameServerRequest) Validate() error {
	switch {
	case r.ID == "":
		return errors.New("id is required")
	case r.Type == "":
		return errors.New("type is required")
	}
	return nil
}

func (r *AddGameServerRequest) ToDomain() model.GameServer {
	info := r.ConnectionInfo
	if info == nil {
		info = map[string]string{}
	}
	return model.GameServer{ID: r.ID, Type: r.Type, ConnectionInfo: info}
}

type GameServerView struct {
	GameServerID string    `json:"gameServerId"`
	DomainID     string    `json:"domainId"`
	Type         string    `json:"type"`
	Degraded     bool      `json:"degraded"`
	Forwarded    uint64    `json:"forwarded"`
	AddedAt      time.Time `json:"addedAt"`
}

func FromStatuses(in []registry.Status) []GameServerView {
	out := make([]GameServerView, 0, len(in))
	for _, st := range in {
		out = append(out, GameServerView(st))
	}
	return out
}

type ErrorResponse struct {
	Error string `json:"error"`
}
