package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	xerrors "salesbridge-service/internal/pkg/errors"
)

// Client talks to the conversation platform's REST API. One attempt
// per call; retrying is the caller's decision.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "App "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("messaging api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return xerrors.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("messaging api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return fmt.Errorf("messaging api %s %s: status %d: %w", method, path, resp.StatusCode, xerrors.ErrGateway)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreatePerson registers a new contact from a bare phone number and
// returns the platform person id.
func (c *Client) CreatePerson(ctx context.Context, phone, personType string) (string, error) {
	payload := map[string]any{
		"type": personType,
		"contactInformation": map[string]any{
			"phone": []map[string]string{{"number": phone}},
		},
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/people/2/persons", payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// GetPerson fetches a contact by platform id.
func (c *Client) GetPerson(ctx context.Context, personID string) (*Person, error) {
	var p Person
	path := "/people/2/persons?identifier=" + url.QueryEscape(personID) + "&type=ID"
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersons pages through the directory. filter is an attribute
// match object, e.g. {"type": "AGENT"}; pass nil for everything.
// Pages start at 1 for this endpoint.
func (c *Client) ListPersons(ctx context.Context, page, limit int, filter map[string]string) ([]Person, error) {
	path := fmt.Sprintf("/people/2/persons?limit=%d&page=%d", limit, page)
	if len(filter) > 0 {
		raw, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		path += "&filter=" + url.QueryEscape(string(raw))
	}

	var result struct {
		Persons []Person `json:"persons"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Persons, nil
}

// UpdatePersonContact replaces the stored phone and/or email of a
// contact. Nil fields are left untouched.
func (c *Client) UpdatePersonContact(ctx context.Context, personID string, phone, email *string) error {
	contact := map[string]any{}
	if phone != nil {
		contact["phone"] = []map[string]string{{"number": *phone}}
	}
	if email != nil {
		contact["email"] = []map[string]string{{"address": *email}}
	}
	if len(contact) == 0 {
		return nil
	}
	path := "/people/2/persons/contactInformation?identifier=" + url.QueryEscape(personID) + "&type=ID"
	return c.do(ctx, http.MethodPut, path, map[string]any{"contactInformation": contact}, nil)
}

// UpdatePersonName pushes first/last name changes to the directory.
func (c *Client) UpdatePersonName(ctx context.Context, personID string, firstName, lastName *string) error {
	body := map[string]any{}
	if firstName != nil {
		body["firstName"] = *firstName
	}
	if lastName != nil {
		body["lastName"] = *lastName
	}
	if len(body) == 0 {
		return nil
	}
	path := "/people/2/persons?identifier=" + url.QueryEscape(personID) + "&type=ID"
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// GetConversation fetches the live state of a remote conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	if err := c.do(ctx, http.MethodGet, "/ccaas/1/conversations/"+url.PathEscape(conversationID), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation opens a new WhatsApp conversation, optionally
// pre-assigned to an agent.
func (c *Client) CreateConversation(ctx context.Context, topic, agentExternalID string) (*Conversation, error) {
	payload := map[string]any{
		"channel": "WHATSAPP",
		"topic":   topic,
	}
	if agentExternalID != "" {
		payload["agentId"] = agentExternalID
	}

	var conv Conversation
	if err := c.do(ctx, http.MethodPost, "/ccaas/1/conversations", payload, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AssignConversation hands a conversation to a different agent.
func (c *Client) AssignConversation(ctx context.Context, conversationID, agentExternalID string) error {
	payload := map[string]string{"agentId": agentExternalID}
	return c.do(ctx, http.MethodPut, "/ccaas/1/conversations/"+url.PathEscape(conversationID)+"/assignee", payload, nil)
}

// AddNote attaches an internal note to a conversation.
func (c *Client) AddNote(ctx context.Context, conversationID, content string) error {
	payload := map[string]string{"content": content}
	return c.do(ctx, http.MethodPost, "/ccaas/1/conversations/"+url.PathEscape(conversationID)+"/notes", payload, nil)
}

// AddTag labels a conversation.
func (c *Client) AddTag(ctx context.Context, conversationID, tagName string) error {
	payload := map[string]string{"tagName": tagName}
	return c.do(ctx, http.MethodPost, "/ccaas/1/conversations/"+url.PathEscape(conversationID)+"/tags", payload, nil)
}

// SendTemplate posts a templated channel message into a conversation.
func (c *Client) SendTemplate(ctx context.Context, conversationID string, tmpl Template) error {
	payload := map[string]any{
		"from":        tmpl.From,
		"to":          tmpl.To,
		"channel":     "WHATSAPP",
		"contentType": "TEMPLATE",
		"content": map[string]any{
			"templateName": tmpl.Name,
			"language":     tmpl.Language,
			"parameters":   []map[string]string{tmpl.Parameters},
		},
	}
	return c.do(ctx, http.MethodPost, "/ccaas/1/conversations/"+url.PathEscape(conversationID)+"/messages", payload, nil)
}

// ListMessages fetches one page of conversation messages in ascending
// id order. Pages start at 0.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) ([]Message, error) {
	path := fmt.Sprintf("/ccaas/1/conversations/%s/messages?page=%d&limit=%d&orderBy=id:ASC",
		url.PathEscape(conversationID), page, limit)

	var result struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// ListNotes fetches one page of conversation notes. Pages start at 0.
func (c *Client) ListNotes(ctx context.Context, conversationID string, page, limit int) ([]Note, error) {
	path := fmt.Sprintf("/ccaas/1/conversations/%s/notes?page=%d&limit=%d",
		url.PathEscape(conversationID), page, limit)

	var result struct {
		Notes []Note `json:"notes"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Notes, nil
}
