package messaging

import (
	"encoding/json"
	"strconv"
)

// Person is a contact on the messaging platform's people directory.
type Person struct {
	ID               string             `json:"id"`
	ExternalID       *string            `json:"externalId"`
	Type             string             `json:"type"`
	FirstName        *string            `json:"firstName"`
	LastName         *string            `json:"lastName"`
	CustomAttributes map[string]any     `json:"customAttributes"`
	ContactInfo      ContactInformation `json:"contactInformation"`
}

type ContactInformation struct {
	Phone []PhoneEntry `json:"phone"`
	Email []EmailEntry `json:"email"`
}

type PhoneEntry struct {
	Number string `json:"number"`
}

type EmailEntry struct {
	Address string `json:"address"`
}

// PrimaryPhone returns the first phone number on record, if any.
func (p *Person) PrimaryPhone() string {
	if len(p.ContactInfo.Phone) > 0 {
		return p.ContactInfo.Phone[0].Number
	}
	return ""
}

// PrimaryEmail returns the first mailbox on record, if any.
func (p *Person) PrimaryEmail() string {
	if len(p.ContactInfo.Email) > 0 {
		return p.ContactInfo.Email[0].Address
	}
	return ""
}

// CustomInt64 reads an integer custom attribute. The platform encodes
// numbers as JSON floats or strings depending on how they were loaded.
func (p *Person) CustomInt64(key string) *int64 {
	v, ok := p.CustomAttributes[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		i := int64(n)
		return &i
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return &i
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return &i
		}
	}
	return nil
}

// Conversation is the remote conversation resource.
type Conversation struct {
	ID      string `json:"id"`
	Topic   string `json:"topic"`
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
}

// Message is one customer-visible message in a conversation. Content
// arrives either as a bare string or as a structured object.
type Message struct {
	ID        string          `json:"id"`
	Direction string          `json:"direction"`
	From      string          `json:"from"`
	AuthorID  string          `json:"authorId"`
	Content   json.RawMessage `json:"content"`
	CreatedAt string          `json:"createdAt"`
}

// Text flattens the message content into a displayable string.
func (m *Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Content, &obj); err == nil && obj.Text != "" {
		return obj.Text
	}
	return string(m.Content)
}

// Sender prefers the channel address over the agent author id.
func (m *Message) Sender() string {
	if m.From != "" {
		return m.From
	}
	return m.AuthorID
}

// Note is an internal agent note attached to a conversation.
type Note struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	AgentID   string `json:"agentId"`
	CreatedAt string `json:"createdAt"`
}

// Template describes a templated channel message sent into an existing
// conversation.
type Template struct {
	From       string
	To         string
	Name       string
	Language   string
	Parameters map[string]string
	AgentID    string
}
