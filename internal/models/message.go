// internal/models/message.go
package models

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Message struct {
	ID         string    `json:"id"`
	LeadID     string    `json:"leadId"`
	Direction  Direction `json:"direction"`
	Body       string    `json:"body"`
	TemplateID string    `json:"templateId,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

// Conversation is ordered oldest first.
type Conversation []Message

// Recent returns the last n messages.
func (c Conversation) Recent(n int) Conversation {
	if n <= 0 || len(c) <= n {
		return c
	}
	return c[len(c)-n:]
}

// LastInbound returns the most recent inbound message, or nil.
func (c Conversation) LastInbound() *Message {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Direction == DirectionInbound {
			return &c[i]
		}
	}
	return nil
}

func (c Conversation) Inbound() Conversation {
	out := make(Conversation, 0, len(c))
	for _, m := range c {
		if m.Direction == DirectionInbound {
			out = append(out, m)
		}
	}
	return out
}

// OutboundMessage is what a transport delivers. Template sends carry
// TemplateName; free-form sends carry only Text. Text is always populated so
// text-only transports can deliver either kind.
type OutboundMessage struct {
	Text         string   `json:"text"`
	TemplateName string   `json:"templateName,omitempty"`
	Language     string   `json:"language,omitempty"`
	Params       []string `json:"params,omitempty"`
}
