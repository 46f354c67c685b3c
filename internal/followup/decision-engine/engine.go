// internal/followup/decision-engine/engine.go
package decisionengine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/models"
)

var timelineKeywords = []struct {
	tier     TimelineTier
	points   int
	keywords []string
}{
	{TimelineImmediate, 25, []string{"immediate", "urgent", "asap", "right away", "this week", "within a week", "within 1 week", "few days"}},
	{TimelineSoon, 18, []string{"this month", "within a month", "within 1 month", "next month", "few weeks", "2 weeks", "two weeks", "30 days"}},
	{TimelineMedium, 10, []string{"3 months", "three months", "few months", "quarter", "6 months", "six months"}},
	{TimelineLong, 3, []string{"next year", "1 year", "one year", "12 months", "no rush", "just looking", "exploring"}},
}

var objectionKeywords = []string{
	"too expensive", "expensive", "price is high", "over budget", "out of budget", "budget is tight",
	"not sure", "concern", "worried", "too far", "too small", "not convinced", "think about it",
}

var discussionKeywords = []string{
	"discuss", "talk to my", "check with my", "family", "spouse", "wife", "husband", "partner",
	"get back to you", "let me check", "will decide", "consult",
}

// Engine scores leads and picks the follow-up type and timing. It performs
// no I/O; missing lead fields lower the score instead of failing.
type Engine struct {
	config *Config
	logger logger.Logger
	now    func() time.Time
}

func NewEngine(cfg *Config, log logger.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Engine{
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "decision-engine"}),
		now:    time.Now,
	}
}

// Decide produces the strategy input for one lead. task may be nil when the
// decision is made outside a scheduled follow-up.
func (e *Engine) Decide(lead *models.Lead, conv models.Conversation, task *models.FollowUpTask) StrategyInput {
	if lead == nil {
		lead = &models.Lead{}
	}
	now := e.now()

	breakdown := e.Score(lead, conv)
	level := Level(breakdown.Total)
	triggers := e.DetectTriggers(lead, conv)
	candidates := e.RankFollowUpTypes(level, triggers, lead, conv)

	offset := level.Cadence()
	if hasPriority(triggers, PriorityHigh) && offset > e.config.HighTriggerCap {
		offset = e.config.HighTriggerCap
	}

	input := StrategyInput{
		LeadID:       lead.ID,
		AccountID:    lead.AccountID,
		LeadState:    lead.State,
		Score:        breakdown.Total,
		Breakdown:    breakdown,
		Level:        level,
		Triggers:     triggers,
		FollowUpType: candidates[0],
		Candidates:   candidates,
		Offset:       offset,
		ScheduledAt:  e.ScheduleAt(now, offset, e.location(lead)),
	}
	if task != nil {
		input.SequenceStage = task.SequenceStage
		input.IsFinalAttempt = task.IsFinalAttempt
		if input.AccountID == "" {
			input.AccountID = task.AccountID
		}
	}
	input.Reasoning = fmt.Sprintf("score %d (%s), %d trigger(s), follow-up %s in %s",
		input.Score, level, len(triggers), input.FollowUpType, offset)

	e.logger.Debug("follow-up decided", map[string]interface{}{
		"leadId":       lead.ID,
		"score":        input.Score,
		"level":        level,
		"followUpType": input.FollowUpType,
		"scheduledAt":  input.ScheduledAt,
	})
	return input
}

// Score computes the engagement score, clamped to 0..100.
func (e *Engine) Score(lead *models.Lead, conv models.Conversation) ScoreBreakdown {
	b := ScoreBreakdown{Base: e.config.BaseScore}

	b.ResponseRatio = responseRatio(conv.Recent(e.config.ResponseWindowSize))
	b.Response = int(math.Round(b.ResponseRatio * 25))

	b.TimelineTier, b.Timeline = e.timeline(lead, conv)
	b.Recency = recencyPoints(e.lastContact(lead, conv), e.now())

	if lead.Budget != "" {
		b.Intent += 5
	}
	if lead.LocationPreference != "" {
		b.Intent += 5
	}
	if lead.PropertyType != "" {
		b.Intent += 5
	}

	b.Total = clamp(b.Base+b.Response+b.Timeline+b.Recency+b.Intent, 0, 100)
	return b
}

// Level maps a score to its engagement level.
func Level(score int) EngagementLevel {
	switch {
	case score >= 60:
		return LevelHot
	case score >= 35:
		return LevelWarm
	case score >= 15:
		return LevelCold
	default:
		return LevelNurture
	}
}

// DetectTriggers scans recent inbound text and the lead record for urgency
// signals.
func (e *Engine) DetectTriggers(lead *models.Lead, conv models.Conversation) []Trigger {
	var triggers []Trigger
	inbound := conv.Recent(e.config.ResponseWindowSize).Inbound()

	if tier := ClassifyTimeline(lead.Timeline); tier == TimelineImmediate || tier == TimelineSoon {
		triggers = append(triggers, Trigger{Kind: TriggerTimelineApproaching, Priority: PriorityHigh, Evidence: lead.Timeline})
	} else {
		for i := len(inbound) - 1; i >= 0; i-- {
			if tier := ClassifyTimeline(inbound[i].Body); tier == TimelineImmediate || tier == TimelineSoon {
				triggers = append(triggers, Trigger{Kind: TriggerTimelineApproaching, Priority: PriorityHigh, Evidence: inbound[i].Body})
				break
			}
		}
	}

	last := conv.LastInbound()
	if lead.State == models.LeadStateObjection {
		triggers = append(triggers, Trigger{Kind: TriggerUnresolvedObjection, Priority: PriorityMedium, Evidence: string(lead.State)})
	} else if last != nil && containsAny(last.Body, objectionKeywords) {
		triggers = append(triggers, Trigger{Kind: TriggerUnresolvedObjection, Priority: PriorityMedium, Evidence: last.Body})
	}

	if last != nil && e.now().Sub(last.SentAt) <= e.config.PostDiscussionAge && containsAny(last.Body, discussionKeywords) {
		triggers = append(triggers, Trigger{Kind: TriggerPostDiscussion, Priority: PriorityMedium, Evidence: last.Body})
	}
	return triggers
}

// RankFollowUpTypes returns applicable follow-up types in preference order.
// The list always ends with relationship, so it is never empty.
func (e *Engine) RankFollowUpTypes(level EngagementLevel, triggers []Trigger, lead *models.Lead, conv models.Conversation) []models.FollowUpType {
	if lead == nil {
		lead = &models.Lead{}
	}
	applicable := map[models.FollowUpType]bool{
		models.FollowUpUrgency: hasPriority(triggers, PriorityHigh),
		models.FollowUpLeadState: hasKind(triggers, TriggerUnresolvedObjection) ||
			lead.State == models.LeadStateNegotiating ||
			lead.State == models.LeadStateViewingScheduled,
		models.FollowUpBehavioral:  hasKind(triggers, TriggerPostDiscussion) || e.recentlyActive(conv),
		models.FollowUpEducational: !lead.IntentComplete() || level == LevelCold || level == LevelNurture,
	}

	order := []models.FollowUpType{
		models.FollowUpUrgency,
		models.FollowUpLeadState,
		models.FollowUpBehavioral,
		models.FollowUpEducational,
	}
	// cold leads get fewer, higher-value touches
	if level == LevelCold || level == LevelNurture {
		order = []models.FollowUpType{
			models.FollowUpUrgency,
			models.FollowUpEducational,
			models.FollowUpLeadState,
			models.FollowUpBehavioral,
		}
	}

	ranked := make([]models.FollowUpType, 0, len(order)+1)
	for _, t := range order {
		if applicable[t] {
			ranked = append(ranked, t)
		}
	}
	return append(ranked, models.FollowUpRelationship)
}

// ScheduleAt applies offset to base and moves the result into business hours
// in loc. Times before opening snap to opening the same day; times at or after
// closing snap to opening the next day.
func (e *Engine) ScheduleAt(base time.Time, offset time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = e.config.Location
	}
	t := base.Add(offset).In(loc)
	open := time.Date(t.Year(), t.Month(), t.Day(), e.config.BusinessHoursStart, 0, 0, 0, loc)

	switch {
	case t.Hour() < e.config.BusinessHoursStart:
		return open
	case t.Hour() >= e.config.BusinessHoursEnd:
		return open.AddDate(0, 0, 1)
	default:
		return t
	}
}

// ClassifyTimeline maps free text to a timeline tier by keyword.
func ClassifyTimeline(text string) TimelineTier {
	tier, _ := classifyTimeline(text)
	return tier
}

func classifyTimeline(text string) (TimelineTier, int) {
	if strings.TrimSpace(text) == "" {
		return TimelineUnknown, 0
	}
	for _, t := range timelineKeywords {
		if containsAny(text, t.keywords) {
			return t.tier, t.points
		}
	}
	return TimelineUnknown, 0
}

// timeline prefers the lead's stated timeline and falls back to the most
// recent inbound message that mentions one.
func (e *Engine) timeline(lead *models.Lead, conv models.Conversation) (TimelineTier, int) {
	if tier, pts := classifyTimeline(lead.Timeline); tier != TimelineUnknown {
		return tier, pts
	}
	inbound := conv.Recent(e.config.ResponseWindowSize).Inbound()
	for i := len(inbound) - 1; i >= 0; i-- {
		if tier, pts := classifyTimeline(inbound[i].Body); tier != TimelineUnknown {
			return tier, pts
		}
	}
	return TimelineUnknown, 0
}

func (e *Engine) lastContact(lead *models.Lead, conv models.Conversation) *time.Time {
	if last := conv.LastInbound(); last != nil {
		return &last.SentAt
	}
	return lead.LastActivityAt
}

func (e *Engine) recentlyActive(conv models.Conversation) bool {
	last := conv.LastInbound()
	return last != nil && e.now().Sub(last.SentAt) < 7*24*time.Hour
}

func (e *Engine) location(lead *models.Lead) *time.Location {
	if lead.Timezone != "" {
		if loc, err := time.LoadLocation(lead.Timezone); err == nil {
			return loc
		}
		e.logger.Debug("unknown lead timezone, using default", map[string]interface{}{
			"leadId":   lead.ID,
			"timezone": lead.Timezone,
		})
	}
	return e.config.Location
}

// responseRatio is inbound replies per outbound message, capped at 1.
func responseRatio(window models.Conversation) float64 {
	var in, out int
	for _, m := range window {
		if m.Direction == models.DirectionInbound {
			in++
		} else {
			out++
		}
	}
	switch {
	case in == 0:
		return 0
	case out == 0:
		return 1
	}
	return math.Min(1, float64(in)/float64(out))
}

func recencyPoints(last *time.Time, now time.Time) int {
	if last == nil {
		return 0
	}
	age := now.Sub(*last)
	switch {
	case age < 24*time.Hour:
		return 20
	case age < 3*24*time.Hour:
		return 12
	case age < 7*24*time.Hour:
		return 5
	case age > 30*24*time.Hour:
		return -15
	default:
		return 0
	}
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
