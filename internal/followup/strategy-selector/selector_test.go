// internal/followup/strategy-selector/selector_test.go
package strategyselector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"followup-orchestrator/internal/common/logger"
	decisionengine "followup-orchestrator/internal/followup/decision-engine"
	quotamanager "followup-orchestrator/internal/followup/quota-manager"
	"followup-orchestrator/internal/models"
	"followup-orchestrator/pkg/registry"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) CreateRemoteTemplate(ctx context.Context, spec models.TemplateSpec) (*models.RemoteTemplate, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RemoteTemplate), args.Error(1)
}

type MockTemplateStore struct {
	mock.Mock
}

func (m *MockTemplateStore) CreateTemplateRecord(ctx context.Context, t *models.Template) error {
	return m.Called(ctx, t).Error(0)
}

// approvedCount is a quota store with a fixed approved count and nothing to evict.
type approvedCount int

func (n approvedCount) CountApprovedTemplates(context.Context, string) (int, error) {
	return int(n), nil
}
func (n approvedCount) ListTemplates(context.Context, models.TemplateFilter) ([]*models.Template, error) {
	return nil, nil
}
func (n approvedCount) DeleteTemplateRecord(context.Context, string) error { return nil }
func (n approvedCount) PromoteTemplate(context.Context, string) (bool, error) {
	return false, nil
}

type fixture struct {
	selector *Selector
	counter  *quotamanager.MemorySlotCounter
	registry *MockRegistry
	store    *MockTemplateStore
	calls    *int32
}

func newFixture(t *testing.T, approved int, gen func(ctx context.Context, prompt string) (string, error)) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)
	counter := quotamanager.NewMemorySlotCounter()
	quota := quotamanager.NewManager(quotamanager.DefaultConfig(), approvedCount(approved), nil, counter, log)

	var calls int32
	cfg := DefaultConfig()
	cfg.GenerationTimeout = 20 * time.Millisecond
	cfg.RetryDelay = time.Millisecond

	f := &fixture{counter: counter, registry: new(MockRegistry), store: new(MockTemplateStore), calls: &calls}
	f.selector = NewSelector(cfg, Deps{
		Quota: quota,
		Generator: generatorFunc(func(ctx context.Context, prompt string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return gen(ctx, prompt)
		}),
		Registry: f.registry,
		Store:    f.store,
		Catalog:  registry.DefaultCatalog(),
	}, log)
	return f
}

func (f *fixture) outstanding(t *testing.T) int {
	n, err := f.counter.Outstanding(context.Background(), "acc-1")
	require.NoError(t, err)
	return n
}

func testLead() *models.Lead {
	return &models.Lead{
		ID:                 "lead-1",
		AccountID:          "acc-1",
		Name:               "Asha Rao",
		State:              models.LeadStateEngaged,
		LocationPreference: "Indiranagar",
	}
}

func testInput() decisionengine.StrategyInput {
	return decisionengine.StrategyInput{
		LeadID:       "lead-1",
		AccountID:    "acc-1",
		Level:        decisionengine.LevelWarm,
		Score:        48,
		FollowUpType: models.FollowUpBehavioral,
	}
}

func TestSelectStrategy_FreeFormInsideWindow(t *testing.T) {
	f := newFixture(t, 10, func(context.Context, string) (string, error) { return "unused", nil })
	input := testInput()
	input.Level = decisionengine.LevelHot
	conv := models.Conversation{{Direction: models.DirectionInbound, Body: "Is the 3BHK still available?", SentAt: time.Now().Add(-2 * time.Hour)}}

	d := f.selector.SelectStrategy(context.Background(), input, testLead(), conv)
	assert.Equal(t, StrategyFreeForm, d.Strategy)
	assert.GreaterOrEqual(t, d.Confidence, 0.75)

	artifact := f.selector.Execute(context.Background(), d)
	require.NotNil(t, artifact)
	assert.Equal(t, StrategyFreeForm, artifact.Strategy)
	assert.Contains(t, artifact.Text, "Asha")
	assert.Empty(t, artifact.TemplateName)
	f.registry.AssertNotCalled(t, "CreateRemoteTemplate", mock.Anything, mock.Anything)
}

func TestSelectStrategy_OutsideWindowUsesAI(t *testing.T) {
	f := newFixture(t, 10, func(context.Context, string) (string, error) { return "x", nil })
	conv := models.Conversation{{Direction: models.DirectionInbound, Body: "Is it available?", SentAt: time.Now().Add(-48 * time.Hour)}}

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), conv)
	assert.Equal(t, StrategyAITemplate, d.Strategy)
	assert.Equal(t, []Strategy{StrategyAITemplate, StrategyStaticTemplate}, d.FallbackChain)
}

func TestSelectStrategy_LowConfidenceSkipsFreeForm(t *testing.T) {
	f := newFixture(t, 10, func(context.Context, string) (string, error) { return "x", nil })
	input := testInput()
	input.Level = decisionengine.LevelCold
	conv := models.Conversation{{Direction: models.DirectionInbound, Body: "ok", SentAt: time.Now().Add(-time.Hour)}}

	d := f.selector.SelectStrategy(context.Background(), input, testLead(), conv)
	assert.Equal(t, StrategyAITemplate, d.Strategy)
}

func TestExecute_AITemplateSuccess(t *testing.T) {
	f := newFixture(t, 10, func(context.Context, string) (string, error) {
		return "Hi {{1}}, new homes just listed in {{2}}. Want a look?", nil
	})
	f.registry.On("CreateRemoteTemplate", mock.Anything, mock.MatchedBy(func(s models.TemplateSpec) bool {
		return s.Category == models.CategoryAIGenerated && s.AccountID == "acc-1"
	})).Return(&models.RemoteTemplate{ID: "remote-1", Status: "APPROVED"}, nil)
	f.store.On("CreateTemplateRecord", mock.Anything, mock.AnythingOfType("*models.Template")).Return(nil)

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), nil)
	artifact := f.selector.Execute(context.Background(), d)

	assert.Equal(t, StrategyAITemplate, artifact.Strategy)
	assert.Equal(t, "remote-1", artifact.TemplateID)
	assert.Regexp(t, `^followup_ai_behavioral_[a-f0-9]{12}$`, artifact.TemplateName)
	assert.Equal(t, []string{"Asha", "Indiranagar"}, artifact.Params)
	assert.Equal(t, "Hi Asha, new homes just listed in Indiranagar. Want a look?", artifact.Text)
	assert.Equal(t, 0, f.outstanding(t))
	f.store.AssertExpectations(t)
}

func TestExecute_AllGenerationAttemptsTimeOut(t *testing.T) {
	f := newFixture(t, 10, func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), nil)
	artifact := f.selector.Execute(context.Background(), d)

	require.NotNil(t, artifact)
	assert.Equal(t, StrategyStaticTemplate, artifact.Strategy)
	assert.Equal(t, "followup_engaged_options", artifact.TemplateName)
	assert.Equal(t, []Strategy{StrategyAITemplate, StrategyStaticTemplate}, artifact.Attempted)
	assert.Equal(t, int32(3), atomic.LoadInt32(f.calls))
	assert.Equal(t, 0, f.outstanding(t))
	require.Len(t, artifact.Notes, 1)
	assert.Contains(t, artifact.Notes[0], "GENERATION_TIMEOUT")
}

func TestExecute_RetriesAfterGenerationError(t *testing.T) {
	var n int32
	f := newFixture(t, 10, func(context.Context, string) (string, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return "", errors.New("provider overloaded")
		}
		return "Hi {{1}}, still looking?", nil
	})
	f.registry.On("CreateRemoteTemplate", mock.Anything, mock.Anything).
		Return(&models.RemoteTemplate{ID: "remote-2", Status: "APPROVED"}, nil)
	f.store.On("CreateTemplateRecord", mock.Anything, mock.Anything).Return(nil)

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), nil)
	artifact := f.selector.Execute(context.Background(), d)

	assert.Equal(t, StrategyAITemplate, artifact.Strategy)
	assert.Equal(t, int32(2), atomic.LoadInt32(f.calls))
	assert.Equal(t, []string{"Asha"}, artifact.Params)
}

func TestExecute_QuotaDenialFallsBackSilently(t *testing.T) {
	f := newFixture(t, 250, func(context.Context, string) (string, error) { return "x", nil })

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), nil)
	artifact := f.selector.Execute(context.Background(), d)

	require.NotNil(t, artifact)
	assert.Equal(t, StrategyStaticTemplate, artifact.Strategy)
	assert.Equal(t, int32(0), atomic.LoadInt32(f.calls))
	assert.Contains(t, artifact.Notes[0], "QUOTA_EXCEEDED")
}

func TestExecute_RegistryFailureReleasesSlot(t *testing.T) {
	f := newFixture(t, 10, func(context.Context, string) (string, error) { return "Hi {{1}}", nil })
	f.registry.On("CreateRemoteTemplate", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), nil)
	artifact := f.selector.Execute(context.Background(), d)

	assert.Equal(t, StrategyStaticTemplate, artifact.Strategy)
	assert.Equal(t, 0, f.outstanding(t))
	f.store.AssertNotCalled(t, "CreateTemplateRecord", mock.Anything, mock.Anything)
}

func TestExecute_PendingRemoteTemplateFallsBack(t *testing.T) {
	f := newFixture(t, 10, func(context.Context, string) (string, error) { return "Hi {{1}}", nil })
	f.registry.On("CreateRemoteTemplate", mock.Anything, mock.Anything).
		Return(&models.RemoteTemplate{ID: "remote-3", Status: "PENDING"}, nil)
	f.store.On("CreateTemplateRecord", mock.Anything, mock.MatchedBy(func(t *models.Template) bool {
		return t.ID == "remote-3" && t.Status == models.TemplateStatusPending && t.AccountID == "acc-1"
	})).Return(nil)

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), nil)
	artifact := f.selector.Execute(context.Background(), d)

	assert.Equal(t, StrategyStaticTemplate, artifact.Strategy)
	assert.Equal(t, 0, f.outstanding(t))
	f.store.AssertNumberOfCalls(t, "CreateTemplateRecord", 1)
}

func TestExecute_RejectedRemoteTemplateIsNotRecorded(t *testing.T) {
	f := newFixture(t, 10, func(context.Context, string) (string, error) { return "Hi {{1}}", nil })
	f.registry.On("CreateRemoteTemplate", mock.Anything, mock.Anything).
		Return(&models.RemoteTemplate{ID: "remote-4", Status: "rejected"}, nil)

	d := f.selector.SelectStrategy(context.Background(), testInput(), testLead(), nil)
	artifact := f.selector.Execute(context.Background(), d)

	assert.Equal(t, StrategyStaticTemplate, artifact.Strategy)
	assert.Equal(t, 0, f.outstanding(t))
	f.store.AssertNotCalled(t, "CreateTemplateRecord", mock.Anything, mock.Anything)
}

func TestExecute_StaticWithoutAIDependencies(t *testing.T) {
	s := NewSelector(nil, Deps{}, logger.NewNoOpLogger())
	lead := testLead()
	lead.State = models.LeadStateConverted

	d := s.SelectStrategy(context.Background(), testInput(), lead, nil)
	assert.Equal(t, StrategyStaticTemplate, d.Strategy)

	artifact := s.Execute(context.Background(), d)
	assert.Equal(t, registry.GenericTemplateName, artifact.TemplateName)
	assert.Equal(t, "Hi Asha, just checking in. Let me know if you would like fresh options that match what you are looking for.", artifact.Text)
	assert.NotEmpty(t, artifact.ID)
}

func TestExecute_EmptyDecisionStillReturnsArtifact(t *testing.T) {
	s := NewSelector(nil, Deps{}, logger.NewNoOpLogger())
	artifact := s.Execute(context.Background(), StrategyDecision{})
	require.NotNil(t, artifact)
	assert.Equal(t, StrategyStaticTemplate, artifact.Strategy)
	assert.Equal(t, "Hi there, just checking in. Let me know if you would like fresh options that match what you are looking for.", artifact.Text)
}

func TestRender(t *testing.T) {
	assert.Equal(t, "Hi Asha in Pune {{3}}", render("Hi {{1}} in {{2}} {{3}}", []string{"Asha", "Pune"}))
}
