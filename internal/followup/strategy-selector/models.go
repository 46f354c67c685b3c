// internal/followup/strategy-selector/models.go
package strategyselector

import (
	decisionengine "followup-orchestrator/internal/followup/decision-engine"
	"followup-orchestrator/internal/models"
)

// Strategy is a message-production tier, ordered from richest to safest.
type Strategy string

const (
	StrategyFreeForm       Strategy = "free_form"
	StrategyAITemplate     Strategy = "ai_template"
	StrategyStaticTemplate Strategy = "static_template"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyFreeForm, StrategyAITemplate, StrategyStaticTemplate:
		return true
	}
	return false
}

// Insight is a contextual message suggestion with a confidence in 0..1.
type Insight struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// StrategyDecision is the chosen tier plus the tiers left to try.
type StrategyDecision struct {
	Strategy      Strategy                     `json:"strategy"`
	Reasoning     string                       `json:"reasoning"`
	Confidence    float64                      `json:"confidence"`
	FallbackChain []Strategy                   `json:"fallbackChain"`
	Input         decisionengine.StrategyInput `json:"input"`
	Lead          *models.Lead                 `json:"-"`
	Conversation  models.Conversation          `json:"-"`
	Insight       *Insight                     `json:"insight,omitempty"`
}

// MessageArtifact is the message ready for transport.
type MessageArtifact struct {
	ID           string              `json:"id"`
	Strategy     Strategy            `json:"strategy"`
	Text         string              `json:"text"`
	TemplateID   string              `json:"templateId,omitempty"`
	TemplateName string              `json:"templateName,omitempty"`
	Language     string              `json:"language,omitempty"`
	Params       []string            `json:"params,omitempty"`
	FollowUpType models.FollowUpType `json:"followUpType"`
	Attempted    []Strategy          `json:"attempted"`
	Notes        []string            `json:"notes,omitempty"`
}

// Outbound converts the artifact to a transport message.
func (a *MessageArtifact) Outbound() models.OutboundMessage {
	return models.OutboundMessage{
		Text:         a.Text,
		TemplateName: a.TemplateName,
		Language:     a.Language,
		Params:       a.Params,
	}
}
