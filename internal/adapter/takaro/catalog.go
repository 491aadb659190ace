package takaro

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

type searchFilters map[string][]string

type searchRequest struct {
	Filters searchFilters `json:"filters,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

const searchLimit = 1000

// GetDomain returns the domain settings relevant to rate limiting.
func (c *Client) GetDomain(ctx context.Context, domainID string) (*model.Domain, error) {
	d, err := call[model.Domain](ctx, c, http.MethodGet, "/domain/"+url.PathEscape(domainID), domainID, nil)
	if err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = domainID
	}
	return &d, nil
}

type domainRef struct {
	ID string `json:"id"`
}

// ListDomains returns the ids of every active domain.
func (c *Client) ListDomains(ctx context.Context) ([]string, error) {
	refs, err := call[[]domainRef](ctx, c, http.MethodPost, "/domain/search", "", searchRequest{
		Filters: searchFilters{"state": {"ACTIVE"}},
		Limit:   searchLimit,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (c *Client) ListGameServers(ctx context.Context, domainID string) ([]model.GameServer, error) {
	return call[[]model.GameServer](ctx, c, http.MethodPost, "/gameserver/search", domainID, searchRequest{Limit: searchLimit})
}

func (c *Client) ListHooks(ctx context.Context, domainID, gameServerID string, eventType model.EventType) ([]model.InstalledHook, error) {
	return call[[]model.InstalledHook](ctx, c, http.MethodPost, "/hook/search", domainID, searchRequest{
		Filters: searchFilters{
			"gameServerId": {gameServerID},
			"eventType":    {string(eventType)},
		},
		Limit: searchLimit,
	})
}

// GetCommand finds the installed command for a trigger. It returns nil, nil
// when no module on the server defines it.
func (c *Client) GetCommand(ctx context.Context, domainID, gameServerID, trigger string) (*model.InstalledCommand, error) {
	cmds, err := call[[]model.InstalledCommand](ctx, c, http.MethodPost, "/command/search", domainID, searchRequest{
		Filters: searchFilters{
			"gameServerId": {gameServerID},
			"trigger":      {trigger},
		},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(cmds) == 0 {
		return nil, nil
	}
	return &cmds[0], nil
}

type setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetCommandPrefix reads the game server's commandPrefix setting.
func (c *Client) GetCommandPrefix(ctx context.Context, domainID, gameServerID string) (string, error) {
	q := url.Values{"gameServerId": {gameServerID}}
	s, err := call[setting](ctx, c, http.MethodGet, "/settings/commandPrefix?"+q.Encode(), domainID, nil)
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func (c *Client) ListCronjobs(ctx context.Context, domainID, gameServerID string) ([]model.InstalledCronjob, error) {
	return call[[]model.InstalledCronjob](ctx, c, http.MethodPost, "/cronjob/search", domainID, searchRequest{
		Filters: searchFilters{"gameServerId": {gameServerID}},
		Limit:   searchLimit,
	})
}

// ResolvePlayer maps an in-game identity to the Takaro player id, creating the
// player on first sight.
func (c *Client) ResolvePlayer(ctx context.Context, domainID, gameServerID string, p model.Player) (string, error) {
	res, err := call[domainRef](ctx, c, http.MethodPost, "/gameserver/"+url.PathEscape(gameServerID)+"/player/resolve", domainID, p)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}
