package takaro

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

type function struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// GetFunction returns the source of a user function.
func (c *Client) GetFunction(ctx context.Context, domainID, functionID string) (string, error) {
	fn, err := call[function](ctx, c, http.MethodGet, "/function/"+url.PathEscape(functionID), domainID, nil)
	if err != nil {
		return "", err
	}
	return fn.Code, nil
}

type tokenResponse struct {
	Token string `json:"token"`
}

// GetExecutionToken returns a short-lived API token scoped to the domain.
// Tokens are reused until shortly before their exp claim.
func (c *Client) GetExecutionToken(ctx context.Context, domainID string) (string, error) {
	if tok, ok := c.tokens.get(domainID); ok {
		return tok, nil
	}

	res, err := call[tokenResponse](ctx, c, http.MethodPost, "/token", domainID, map[string]string{"domainId": domainID})
	if err != nil {
		return "", err
	}
	if res.Token == "" {
		return "", fmt.Errorf("takaro api: empty execution token for domain %s", domainID)
	}

	c.tokens.put(domainID, res.Token)
	return res.Token, nil
}

// CreateEvent records one event.
func (c *Client) CreateEvent(ctx context.Context, rec model.EventRecord) error {
	_, err := call[struct{}](ctx, c, http.MethodPost, "/event", rec.DomainID, rec)
	return err
}

type messageRecipient struct {
	GameID string `json:"gameId"`
}

type messageOpts struct {
	Recipient *messageRecipient `json:"recipient,omitempty"`
}

type sendMessageRequest struct {
	Message string      `json:"message"`
	Opts    messageOpts `json:"opts"`
}

// SendMessage sends a chat message on a game server. A nil recipient broadcasts.
func (c *Client) SendMessage(ctx context.Context, domainID, gameServerID, message string, recipient *model.Player) error {
	req := sendMessageRequest{Message: message}
	if recipient != nil {
		req.Opts.Recipient = &messageRecipient{GameID: recipient.GameID}
	}
	_, err := call[struct{}](ctx, c, http.MethodPost, "/gameserver/"+url.PathEscape(gameServerID)+"/message", domainID, req)
	return err
}
