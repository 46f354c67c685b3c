// internal/followup/strategy-selector/selector.go
package strategyselector

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/common/genai"
	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/common/metrics"
	"followup-orchestrator/internal/common/validation"
	decisionengine "followup-orchestrator/internal/followup/decision-engine"
	quotamanager "followup-orchestrator/internal/followup/quota-manager"
	"followup-orchestrator/internal/models"
	"followup-orchestrator/pkg/registry"
)

// SlotAcquirer reserves template capacity before an AI template is created.
type SlotAcquirer interface {
	AcquireSlot(ctx context.Context, accountID string) (*quotamanager.Reservation, error)
}

// TemplateRegistry submits new templates to the messaging platform.
type TemplateRegistry interface {
	CreateRemoteTemplate(ctx context.Context, spec models.TemplateSpec) (*models.RemoteTemplate, error)
}

// TemplateStore records created templates locally.
type TemplateStore interface {
	CreateTemplateRecord(ctx context.Context, t *models.Template) error
}

var placeholder = regexp.MustCompile(`\{\{(\d+)\}\}`)

type Selector struct {
	config    *Config
	quota     SlotAcquirer
	generator genai.Generator
	registry  TemplateRegistry
	store     TemplateStore
	insights  InsightProvider
	catalog   *registry.TemplateCatalog
	logger    logger.Logger
	now       func() time.Time
}

type Deps struct {
	Quota     SlotAcquirer
	Generator genai.Generator
	Registry  TemplateRegistry
	Store     TemplateStore
	Insights  InsightProvider
	Catalog   *registry.TemplateCatalog
}

func NewSelector(cfg *Config, deps Deps, log logger.Logger) *Selector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if deps.Insights == nil {
		deps.Insights = HeuristicInsights{}
	}
	if deps.Catalog == nil {
		deps.Catalog = registry.DefaultCatalog()
	}
	return &Selector{
		config:    cfg,
		quota:     deps.Quota,
		generator: deps.Generator,
		registry:  deps.Registry,
		store:     deps.Store,
		insights:  deps.Insights,
		catalog:   deps.Catalog,
		logger:    log.WithFields(map[string]interface{}{"component": "strategy-selector"}),
		now:       time.Now,
	}
}

// SelectStrategy picks the highest tier whose guards hold. Lower tiers stay
// in the fallback chain for Execute.
func (s *Selector) SelectStrategy(ctx context.Context, input decisionengine.StrategyInput, lead *models.Lead, conv models.Conversation) StrategyDecision {
	d := StrategyDecision{Input: input, Lead: lead, Conversation: conv}

	if last := conv.LastInbound(); last != nil && s.now().Sub(last.SentAt) <= s.config.FreeFormWindow {
		insight, err := s.insights.Insight(ctx, input, lead, conv)
		if err != nil {
			s.logger.Warn("insight lookup failed", map[string]interface{}{"leadId": input.LeadID, "error": err})
		}
		if insight != nil && insight.Confidence >= s.config.FreeFormMinConfidence && strings.TrimSpace(insight.Text) != "" {
			d.Strategy = StrategyFreeForm
			d.Confidence = insight.Confidence
			d.Insight = insight
			d.FallbackChain = []Strategy{StrategyFreeForm, StrategyAITemplate, StrategyStaticTemplate}
			d.Reasoning = fmt.Sprintf("inside %s response window with insight confidence %.2f", s.config.FreeFormWindow, insight.Confidence)
			return d
		}
		if insight != nil {
			d.Confidence = insight.Confidence
		}
	}

	if s.aiAvailable() {
		d.Strategy = StrategyAITemplate
		d.FallbackChain = []Strategy{StrategyAITemplate, StrategyStaticTemplate}
		d.Reasoning = "outside free-form guards, generating a template"
		return d
	}

	d.Strategy = StrategyStaticTemplate
	d.FallbackChain = []Strategy{StrategyStaticTemplate}
	d.Reasoning = "ai generation not configured"
	return d
}

// Execute walks the fallback chain and always returns an artifact; the static
// tier cannot fail.
func (s *Selector) Execute(ctx context.Context, d StrategyDecision) *MessageArtifact {
	log := s.logger.WithFields(map[string]interface{}{"leadId": d.Input.LeadID, "accountId": d.Input.AccountID})
	var attempted []Strategy
	var notes []string

	for _, tier := range d.FallbackChain {
		attempted = append(attempted, tier)
		var (
			artifact *MessageArtifact
			err      error
		)
		switch tier {
		case StrategyFreeForm:
			artifact, err = s.freeForm(d)
		case StrategyAITemplate:
			artifact, err = s.aiTemplate(ctx, d)
		case StrategyStaticTemplate:
			artifact = s.staticTemplate(d)
		default:
			err = fmt.Errorf("unknown strategy %q", tier)
		}
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s: %v", tier, err))
			log.Info("strategy tier unavailable, falling back", map[string]interface{}{
				"strategy":  tier,
				"errorCode": string(apperrors.CodeOf(err)),
				"error":     err,
			})
			continue
		}
		return s.finish(artifact, d, attempted, notes)
	}

	attempted = append(attempted, StrategyStaticTemplate)
	return s.finish(s.staticTemplate(d), d, attempted, notes)
}

func (s *Selector) finish(a *MessageArtifact, d StrategyDecision, attempted []Strategy, notes []string) *MessageArtifact {
	a.ID = uuid.NewString()
	a.Attempted = attempted
	a.Notes = notes
	if a.FollowUpType == "" {
		a.FollowUpType = d.Input.FollowUpType
	}
	metrics.StrategySelected.WithLabelValues(string(a.Strategy)).Inc()
	s.logger.Info("message artifact ready", map[string]interface{}{
		"leadId":    d.Input.LeadID,
		"strategy":  a.Strategy,
		"template":  a.TemplateName,
		"attempted": len(attempted),
	})
	return a
}

func (s *Selector) aiAvailable() bool {
	return s.generator != nil && s.registry != nil && s.store != nil && s.quota != nil
}

func (s *Selector) freeForm(d StrategyDecision) (*MessageArtifact, error) {
	if d.Insight == nil || strings.TrimSpace(d.Insight.Text) == "" {
		return nil, errors.New("no insight available")
	}
	return &MessageArtifact{
		Strategy:     StrategyFreeForm,
		Text:         d.Insight.Text,
		FollowUpType: d.Input.FollowUpType,
	}, nil
}

// aiTemplate reserves a slot, generates, submits and records a template. The
// reservation is released on every failure path.
func (s *Selector) aiTemplate(ctx context.Context, d StrategyDecision) (artifact *MessageArtifact, err error) {
	if !s.aiAvailable() {
		return nil, errors.New("ai generation not configured")
	}
	accountID := d.Input.AccountID
	if accountID == "" && d.Lead != nil {
		accountID = d.Lead.AccountID
	}

	reservation, err := s.quota.AcquireSlot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := reservation.Release(context.WithoutCancel(ctx)); rerr != nil {
				s.logger.Warn("failed to release template slot", map[string]interface{}{"accountId": accountID, "error": rerr})
			}
		}
	}()

	body, err := s.generate(ctx, s.buildPrompt(d))
	if err != nil {
		return nil, err
	}

	spec := models.TemplateSpec{
		AccountID: accountID,
		Name:      templateName(d.Input.FollowUpType),
		Category:  models.CategoryAIGenerated,
		Language:  s.config.DefaultLanguage,
		Body:      body,
	}
	if err = validation.ValidateTemplateSpec(spec); err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, s.config.RegistryTimeout)
	remote, err := s.registry.CreateRemoteTemplate(rctx, spec)
	cancel()
	if err != nil {
		return nil, err
	}

	tmpl := &models.Template{
		ID:        remote.ID,
		AccountID: accountID,
		Name:      spec.Name,
		Category:  spec.Category,
		Language:  spec.Language,
		Body:      spec.Body,
		Status:    models.TemplateStatusApproved,
		CreatedAt: s.now(),
	}
	switch status := strings.ToLower(remote.Status); status {
	case string(models.TemplateStatusApproved):
	case "rejected":
		err = fmt.Errorf("template %s was rejected", spec.Name)
		return nil, err
	default:
		// still under review; the local record keeps it visible to quota sync
		tmpl.Status = models.TemplateStatusPending
		if err = s.store.CreateTemplateRecord(ctx, tmpl); err != nil {
			return nil, err
		}
		s.commit(ctx, reservation)
		err = fmt.Errorf("template %s is %s, not yet usable", spec.Name, status)
		return nil, err
	}

	if err = s.store.CreateTemplateRecord(ctx, tmpl); err != nil {
		return nil, err
	}
	s.commit(ctx, reservation)

	params := resolveParams(placeholderKeys(body), d.Lead)
	return &MessageArtifact{
		Strategy:     StrategyAITemplate,
		Text:         render(body, params),
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		Language:     tmpl.Language,
		Params:       params,
		FollowUpType: d.Input.FollowUpType,
	}, nil
}

func (s *Selector) commit(ctx context.Context, r *quotamanager.Reservation) {
	if err := r.Commit(ctx); err != nil {
		s.logger.Warn("failed to commit template slot", map[string]interface{}{"accountId": r.AccountID, "error": err})
	}
}

// generate races each attempt against GenerationTimeout and retries with a
// fixed delay.
func (s *Selector) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.GenerationRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.config.RetryDelay):
			case <-ctx.Done():
				return "", apperrors.NewGenerationTimeoutError("strategy-selector", s.config.GenerationTimeout)
			}
		}

		gctx, cancel := context.WithTimeout(ctx, s.config.GenerationTimeout)
		text, err := s.generator.Generate(gctx, prompt)
		timedOut := errors.Is(gctx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil && strings.TrimSpace(text) != "" {
			metrics.GenerationAttempts.WithLabelValues("ok").Inc()
			return strings.TrimSpace(text), nil
		}
		if err == nil {
			err = errors.New("empty completion")
		}
		if timedOut {
			metrics.GenerationAttempts.WithLabelValues("timeout").Inc()
			lastErr = apperrors.NewGenerationTimeoutError("strategy-selector", s.config.GenerationTimeout)
		} else {
			metrics.GenerationAttempts.WithLabelValues("error").Inc()
			lastErr = err
		}
		s.logger.Warn("template generation attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"timeout": timedOut,
			"error":   err,
		})
	}
	return "", lastErr
}

func (s *Selector) staticTemplate(d StrategyDecision) *MessageArtifact {
	var state string
	if d.Lead != nil {
		state = string(d.Lead.State)
	} else {
		state = string(d.Input.LeadState)
	}
	t := s.catalog.Lookup(state, d.Input.SequenceStage)
	params := resolveParams(t.Params, d.Lead)

	lang := t.Language
	if lang == "" {
		lang = s.config.DefaultLanguage
	}
	return &MessageArtifact{
		Strategy:     StrategyStaticTemplate,
		Text:         render(t.Body, params),
		TemplateName: t.Name,
		Language:     lang,
		Params:       params,
		FollowUpType: models.FollowUpType(t.FollowUpType),
	}
}

func (s *Selector) buildPrompt(d StrategyDecision) string {
	var parts []string

	parts = append(parts, "You write short WhatsApp follow-up templates for a real estate agent.")
	parts = append(parts, fmt.Sprintf("\nFollow-up type: %s", d.Input.FollowUpType))
	parts = append(parts, fmt.Sprintf("Engagement level: %s (score %d)", d.Input.Level, d.Input.Score))
	if d.Lead != nil {
		parts = append(parts, fmt.Sprintf("Lead state: %s", d.Lead.State))
		if d.Lead.Timeline != "" {
			parts = append(parts, fmt.Sprintf("Stated timeline: %s", d.Lead.Timeline))
		}
		if d.Lead.PropertyType != "" {
			parts = append(parts, fmt.Sprintf("Looking for: %s", d.Lead.PropertyType))
		}
	}
	for _, t := range d.Input.Triggers {
		parts = append(parts, fmt.Sprintf("Signal: %s (%s)", t.Kind, t.Priority))
	}

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Use {{1}} for the lead's first name and {{2}} for their preferred location")
	parts = append(parts, "- At most 3 sentences, no links, no prices")
	parts = append(parts, "- Reusable for other leads in the same situation")

	parts = append(parts, "\nTemplate:")

	return strings.Join(parts, "\n")
}

func templateName(t models.FollowUpType) string {
	if t == "" {
		t = models.FollowUpRelationship
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("followup_ai_%s_%s", t, id[:12])
}

// placeholderKeys maps {{1}}, {{2}} onto the lead fields the prompt assigned.
func placeholderKeys(body string) []string {
	highest := 0
	for _, m := range placeholder.FindAllStringSubmatch(body, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	keys := []string{"lead.name", "lead.location"}
	out := make([]string, 0, highest)
	for i := 0; i < highest; i++ {
		if i < len(keys) {
			out = append(out, keys[i])
		} else {
			out = append(out, "")
		}
	}
	return out
}

func resolveParams(keys []string, lead *models.Lead) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		switch k {
		case "lead.name":
			out[i] = firstName(lead)
		case "lead.location":
			out[i] = location(lead)
		case "lead.timeline":
			if lead != nil && lead.Timeline != "" {
				out[i] = lead.Timeline
			} else {
				out[i] = "soon"
			}
		case "lead.property_type":
			if lead != nil && lead.PropertyType != "" {
				out[i] = lead.PropertyType
			} else {
				out[i] = "home"
			}
		default:
			out[i] = "-"
		}
	}
	return out
}

func render(body string, params []string) string {
	return placeholder.ReplaceAllStringFunc(body, func(m string) string {
		n, err := strconv.Atoi(m[2 : len(m)-2])
		if err != nil || n < 1 || n > len(params) {
			return m
		}
		return params[n-1]
	})
}
