// internal/followup/strategy-selector/insight.go
package strategyselector

import (
	"context"
	"fmt"
	"strings"

	decisionengine "followup-orchestrator/internal/followup/decision-engine"
	"followup-orchestrator/internal/models"
)

// InsightProvider suggests a free-form reply for a lead.
type InsightProvider interface {
	Insight(ctx context.Context, input decisionengine.StrategyInput, lead *models.Lead, conv models.Conversation) (*Insight, error)
}

// HeuristicInsights derives a reply from the decision and the last inbound
// message. Confidence grows with engagement and with a direct question from
// the lead, which free-form can answer and a template cannot.
type HeuristicInsights struct{}

var levelConfidence = map[decisionengine.EngagementLevel]float64{
	decisionengine.LevelHot:     0.70,
	decisionengine.LevelWarm:    0.55,
	decisionengine.LevelCold:    0.40,
	decisionengine.LevelNurture: 0.25,
}

func (HeuristicInsights) Insight(_ context.Context, input decisionengine.StrategyInput, lead *models.Lead, conv models.Conversation) (*Insight, error) {
	last := conv.LastInbound()
	if last == nil {
		return nil, nil
	}

	confidence := levelConfidence[input.Level]
	if strings.Contains(last.Body, "?") {
		confidence += 0.15
	}
	if input.HasHighTrigger() {
		confidence += 0.10
	}
	if confidence > 1 {
		confidence = 1
	}

	name := firstName(lead)
	var text string
	switch input.FollowUpType {
	case models.FollowUpUrgency:
		text = fmt.Sprintf("Hi %s, since you are planning to move soon, shall I line up visits for the shortlisted homes this week?", name)
	case models.FollowUpLeadState:
		text = fmt.Sprintf("Hi %s, I looked into what you raised and have a couple of options that should work better. Want me to share them?", name)
	case models.FollowUpBehavioral:
		text = fmt.Sprintf("Hi %s, picking up from our last chat, I found a few more homes like the ones you liked. Should I send them over?", name)
	case models.FollowUpEducational:
		text = fmt.Sprintf("Hi %s, here is a quick note on prices and availability in %s this month. Happy to walk you through it.", name, location(lead))
	default:
		text = fmt.Sprintf("Hi %s, just checking in on how your search is going. Anything I can help with?", name)
	}

	return &Insight{Text: text, Confidence: confidence, Source: "heuristic"}, nil
}

func firstName(lead *models.Lead) string {
	if lead == nil || strings.TrimSpace(lead.Name) == "" {
		return "there"
	}
	return strings.Fields(lead.Name)[0]
}

func location(lead *models.Lead) string {
	if lead == nil || lead.LocationPreference == "" {
		return "your preferred area"
	}
	return lead.LocationPreference
}
