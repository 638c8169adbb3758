// Package chatwoot is the REST client for the conversation platform.
// Every call can fail independently; callers treat failures as
// non-fatal and isolate them per side effect.
package chatwoot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/gestao-presente/orquestra/pkg/directory"
)

type Client struct {
	rest      *resty.Client
	accountID string
	log       *zap.Logger
}

func NewClient(baseURL, apiToken, accountID string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("api_access_token", apiToken).
		SetHeader("Content-Type", "application/json")
	return &Client{rest: rest, accountID: accountID, log: log.Named("chatwoot")}
}

func (c *Client) conversationPath(conversationID int) string {
	return fmt.Sprintf("/api/v1/accounts/%s/conversations/%d", c.accountID, conversationID)
}

// SendMessage posts an outgoing message to a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID int, content string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{"content": content, "message_type": "outgoing"}).
		Post(c.conversationPath(conversationID) + "/messages")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("send message: status %d", resp.StatusCode())
	}
	return nil
}

// SetLabels replaces the conversation's labels. The dedicated /labels
// endpoint is tried first; some instances only accept labels via a
// PATCH on the conversation, so that is the fallback.
func (c *Client) SetLabels(ctx context.Context, conversationID int, labels []string) error {
	if labels == nil {
		labels = []string{}
	}
	body := map[string]any{"labels": labels}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.conversationPath(conversationID) + "/labels")
	if err != nil {
		return fmt.Errorf("set labels: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	c.log.Warn("labels endpoint rejected update, trying conversation patch",
		zap.Int("status", resp.StatusCode()),
		zap.Int("conversation_id", conversationID),
	)
	resp, err = c.rest.R().
		SetContext(ctx).
		SetBody(body).
		Patch(c.conversationPath(conversationID))
	if err != nil {
		return fmt.Errorf("set labels: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("set labels: status %d", resp.StatusCode())
	}
	return nil
}

// AssignTeam routes a conversation to a team via the assignments
// endpoint, with the conversation PATCH as fallback.
func (c *Client) AssignTeam(ctx context.Context, conversationID int, teamID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{"team_id": teamID}).
		Post(c.conversationPath(conversationID) + "/assignments")
	if err != nil {
		return fmt.Errorf("assign team: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	c.log.Warn("assignments endpoint rejected update, trying conversation patch",
		zap.Int("status", resp.StatusCode()),
		zap.Int("conversation_id", conversationID),
	)
	resp, err = c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{"team_id": teamID}).
		Patch(c.conversationPath(conversationID))
	if err != nil {
		return fmt.Errorf("assign team: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("assign team: status %d", resp.StatusCode())
	}
	return nil
}

// Meta is the conversation metadata patch: custom attributes, optional
// team routing and assignee clearing.
type Meta struct {
	CustomAttributes map[string]any
	TeamID           string
	ClearAssignee    bool
}

// UpdateConversationMeta patches conversation metadata.
func (c *Client) UpdateConversationMeta(ctx context.Context, conversationID int, meta Meta) error {
	payload := map[string]any{}
	if len(meta.CustomAttributes) > 0 {
		payload["custom_attributes"] = meta.CustomAttributes
	}
	if meta.TeamID != "" {
		payload["team_id"] = meta.TeamID
	}
	if meta.ClearAssignee {
		payload["assignee_id"] = nil
	}
	if len(payload) == 0 {
		return nil
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(payload).
		Patch(c.conversationPath(conversationID))
	if err != nil {
		return fmt.Errorf("update conversation meta: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("update conversation meta: status %d", resp.StatusCode())
	}
	return nil
}

// SetConversationOpen reopens a resolved/closed conversation.
func (c *Client) SetConversationOpen(ctx context.Context, conversationID int) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{"status": "open"}).
		Patch(c.conversationPath(conversationID))
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("open conversation: status %d", resp.StatusCode())
	}
	return nil
}

// ListTeams fetches the account's teams. Chatwoot versions differ on
// the response envelope: a bare array, {"payload": [...]} or
// {"data": [...]} are all accepted.
func (c *Client) ListTeams(ctx context.Context) ([]directory.Team, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/api/v1/accounts/%s/teams", c.accountID))
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("list teams: status %d", resp.StatusCode())
	}
	return parseTeams(resp.Body()), nil
}

func parseTeams(body []byte) []directory.Team {
	root := gjson.ParseBytes(body)
	list := root
	if !root.IsArray() {
		for _, key := range []string{"payload", "data"} {
			if candidate := root.Get(key); candidate.IsArray() {
				list = candidate
				break
			}
		}
	}

	var teams []directory.Team
	list.ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name").String()
		id := item.Get("id")
		if name == "" || !id.Exists() {
			return true
		}
		teamID := id.String()
		if id.Type == gjson.Number {
			teamID = strconv.FormatInt(id.Int(), 10)
		}
		teams = append(teams, directory.Team{Name: name, ID: teamID})
		return true
	})
	return teams
}
