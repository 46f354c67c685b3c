// internal/followup/decision-engine/engine_test.go
package decisionengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"followup-orchestrator/internal/common/config"
	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/models"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func newTestEngine(t *testing.T, now time.Time) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Location = ist
	e := NewEngine(cfg, logger.NewTestLogger(t))
	e.now = func() time.Time { return now }
	return e
}

func msg(dir models.Direction, body string, at time.Time) models.Message {
	return models.Message{Direction: dir, Body: body, SentAt: at}
}

func TestDecide_HotLeadWithApproachingTimeline(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, ist)
	e := newTestEngine(t, now)

	lead := &models.Lead{
		ID:       "lead-1",
		State:    models.LeadStateEngaged,
		Timeline: "within 1 month",
		Budget:   "80L",
	}
	conv := models.Conversation{
		msg(models.DirectionOutbound, "Hi, following up on the 2BHK", now.Add(-10*24*time.Hour)),
		msg(models.DirectionOutbound, "Any thoughts?", now.Add(-8*24*time.Hour)),
		msg(models.DirectionInbound, "Still looking", now.Add(-7*24*time.Hour)),
		msg(models.DirectionOutbound, "Sharing two options", now.Add(-6*24*time.Hour)),
		msg(models.DirectionOutbound, "Site visit this weekend?", now.Add(-4*24*time.Hour)),
		msg(models.DirectionOutbound, "Just checking in", now.Add(-3*24*time.Hour)),
		msg(models.DirectionInbound, "We want to move within a month", now.Add(-2*24*time.Hour)),
	}

	input := e.Decide(lead, conv, &models.FollowUpTask{SequenceStage: 1, AccountID: "acc-1"})

	assert.Equal(t, 65, input.Score)
	assert.Equal(t, LevelHot, input.Level)
	assert.Equal(t, models.FollowUpUrgency, input.FollowUpType)
	assert.LessOrEqual(t, input.Offset, 24*time.Hour)
	assert.LessOrEqual(t, input.ScheduledAt.Sub(now), 24*time.Hour)
	assert.True(t, input.HasHighTrigger())
	assert.Equal(t, 1, input.SequenceStage)
	assert.Equal(t, "acc-1", input.AccountID)
	assert.Equal(t, models.FollowUpRelationship, input.Candidates[len(input.Candidates)-1])
}

func TestDecide_FallsBackToRelationship(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, ist)
	e := newTestEngine(t, now)

	last := now.Add(-10 * 24 * time.Hour)
	lead := &models.Lead{
		State:              models.LeadStateQualified,
		Budget:             "1Cr",
		LocationPreference: "Whitefield",
		PropertyType:       "villa",
		LastActivityAt:     &last,
	}

	input := e.Decide(lead, nil, nil)

	assert.Equal(t, 35, input.Score)
	assert.Equal(t, LevelWarm, input.Level)
	assert.Equal(t, []models.FollowUpType{models.FollowUpRelationship}, input.Candidates)
	assert.Equal(t, models.FollowUpRelationship, input.FollowUpType)
	assert.Equal(t, 7*24*time.Hour, input.Offset)
}

func TestDecide_NilLeadDegradesGracefully(t *testing.T) {
	e := newTestEngine(t, time.Date(2026, 10, 14, 12, 0, 0, 0, ist))

	input := e.Decide(nil, nil, nil)

	assert.Equal(t, 20, input.Score)
	assert.Equal(t, LevelCold, input.Level)
	assert.NotEmpty(t, input.FollowUpType)
	assert.True(t, input.FollowUpType.Valid())
}

func TestScore_ClampsToRange(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, ist)
	e := newTestEngine(t, now)

	full := &models.Lead{Timeline: "asap", Budget: "x", LocationPreference: "y", PropertyType: "z"}
	conv := models.Conversation{msg(models.DirectionInbound, "call me", now.Add(-time.Hour))}
	assert.Equal(t, 100, e.Score(full, conv).Total)

	stale := now.Add(-40 * 24 * time.Hour)
	cold := &models.Lead{LastActivityAt: &stale}
	b := e.Score(cold, nil)
	assert.Equal(t, -15, b.Recency)
	assert.Equal(t, 5, b.Total)
	assert.Equal(t, LevelNurture, Level(b.Total))
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score int
		want  EngagementLevel
	}{
		{100, LevelHot},
		{60, LevelHot},
		{59, LevelWarm},
		{35, LevelWarm},
		{34, LevelCold},
		{15, LevelCold},
		{14, LevelNurture},
		{0, LevelNurture},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Level(tt.score), "score %d", tt.score)
	}
	assert.Equal(t, 2*24*time.Hour, LevelHot.Cadence())
	assert.Equal(t, 30*24*time.Hour, LevelNurture.Cadence())
}

func TestClassifyTimeline(t *testing.T) {
	tests := map[string]TimelineTier{
		"ASAP please":            TimelineImmediate,
		"sometime this month":    TimelineSoon,
		"in about 3 months":      TimelineMedium,
		"no rush, just browsing": TimelineLong,
		"":                       TimelineUnknown,
		"hello":                  TimelineUnknown,
	}
	for text, want := range tests {
		assert.Equal(t, want, ClassifyTimeline(text), text)
	}
}

func TestDetectTriggers(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, ist)
	e := newTestEngine(t, now)

	t.Run("objection and discussion", func(t *testing.T) {
		conv := models.Conversation{
			msg(models.DirectionInbound, "Looks too expensive, I need to discuss with my wife", now.Add(-30*time.Hour)),
		}
		triggers := e.DetectTriggers(&models.Lead{}, conv)
		require.Len(t, triggers, 2)
		assert.Equal(t, TriggerUnresolvedObjection, triggers[0].Kind)
		assert.Equal(t, PriorityMedium, triggers[0].Priority)
		assert.Equal(t, TriggerPostDiscussion, triggers[1].Kind)
	})

	t.Run("discussion window expired", func(t *testing.T) {
		conv := models.Conversation{
			msg(models.DirectionInbound, "will discuss with family", now.Add(-5*24*time.Hour)),
		}
		assert.Empty(t, e.DetectTriggers(&models.Lead{}, conv))
	})

	t.Run("timeline in message", func(t *testing.T) {
		conv := models.Conversation{
			msg(models.DirectionInbound, "need it urgent", now.Add(-time.Hour)),
		}
		triggers := e.DetectTriggers(&models.Lead{}, conv)
		require.Len(t, triggers, 1)
		assert.Equal(t, TriggerTimelineApproaching, triggers[0].Kind)
		assert.Equal(t, PriorityHigh, triggers[0].Priority)
	})
}

func TestRankFollowUpTypes_ColdPrefersEducational(t *testing.T) {
	e := newTestEngine(t, time.Date(2026, 10, 14, 12, 0, 0, 0, ist))
	lead := &models.Lead{State: models.LeadStateObjection}
	triggers := e.DetectTriggers(lead, nil)

	got := e.RankFollowUpTypes(LevelCold, triggers, lead, nil)
	assert.Equal(t, []models.FollowUpType{
		models.FollowUpEducational,
		models.FollowUpLeadState,
		models.FollowUpRelationship,
	}, got)

	got = e.RankFollowUpTypes(LevelWarm, triggers, lead, nil)
	assert.Equal(t, models.FollowUpLeadState, got[0])
}

func TestScheduleAt_BusinessHours(t *testing.T) {
	e := newTestEngine(t, time.Now())

	tests := []struct {
		name string
		base time.Time
		want time.Time
	}{
		{"before opening", time.Date(2026, 10, 14, 7, 30, 0, 0, ist), time.Date(2026, 10, 14, 9, 0, 0, 0, ist)},
		{"inside window", time.Date(2026, 10, 14, 15, 10, 0, 0, ist), time.Date(2026, 10, 14, 15, 10, 0, 0, ist)},
		{"at closing", time.Date(2026, 10, 14, 21, 0, 0, 0, ist), time.Date(2026, 10, 15, 9, 0, 0, 0, ist)},
		{"late night", time.Date(2026, 10, 14, 23, 45, 0, 0, ist), time.Date(2026, 10, 15, 9, 0, 0, 0, ist)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.ScheduleAt(tt.base, 0, ist)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}

	got := e.ScheduleAt(time.Date(2026, 10, 14, 20, 0, 0, 0, ist), 2*time.Hour, ist)
	assert.True(t, time.Date(2026, 10, 15, 9, 0, 0, 0, ist).Equal(got))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.DecisionConfig{
		Timezone:           "UTC",
		BusinessHoursStart: 8,
		BusinessHoursEnd:   20,
		ResponseWindowSize: 6,
	})
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, 8, cfg.BusinessHoursStart)
	assert.Equal(t, 20, cfg.BusinessHoursEnd)
	assert.Equal(t, 6, cfg.ResponseWindowSize)
}
