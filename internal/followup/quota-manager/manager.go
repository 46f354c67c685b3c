// internal/followup/quota-manager/manager.go
package quotamanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/common/metrics"
	"followup-orchestrator/internal/models"
)

// Store is the template slice of the persistent store.
type Store interface {
	CountApprovedTemplates(ctx context.Context, accountID string) (int, error)
	ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]*models.Template, error)
	DeleteTemplateRecord(ctx context.Context, id string) error
	PromoteTemplate(ctx context.Context, id string) (bool, error)
}

// TemplateRegistry is the remote platform that owns template approval.
type TemplateRegistry interface {
	DeleteRemoteTemplate(ctx context.Context, accountID string, tmpl models.Template) error
	RemoteTemplateStatus(ctx context.Context, tmpl models.Template) (string, error)
}

// Manager enforces the approved-template ceiling per messaging account.
type Manager struct {
	config   *Config
	store    Store
	registry TemplateRegistry
	counter  SlotCounter
	logger   logger.Logger
	now      func() time.Time
}

func NewManager(cfg *Config, store Store, registry TemplateRegistry, counter SlotCounter, log logger.Logger) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if counter == nil {
		counter = NewMemorySlotCounter()
	}
	return &Manager{
		config:   cfg,
		store:    store,
		registry: registry,
		counter:  counter,
		logger:   log.WithFields(map[string]interface{}{"component": "quota-manager"}),
		now:      time.Now,
	}
}

func (m *Manager) level(approved int) Level {
	switch {
	case approved >= m.config.Limit:
		return LevelCritical
	case approved >= m.config.WarningThreshold:
		return LevelWarning
	default:
		return LevelOK
	}
}

// CanCreate is a read-only capacity check; it neither reserves nor evicts.
func (m *Manager) CanCreate(ctx context.Context, accountID string) (*CanCreateResult, error) {
	approved, err := m.store.CountApprovedTemplates(ctx, accountID)
	if err != nil {
		return nil, err
	}
	reserved, err := m.counter.Outstanding(ctx, accountID)
	if err != nil {
		m.logger.Warn("reservation count unavailable", map[string]interface{}{"accountId": accountID, "error": err})
		reserved = 0
	}
	remaining := m.config.Limit - approved - reserved
	if remaining < 0 {
		remaining = 0
	}
	return &CanCreateResult{
		Allowed:        remaining > 0,
		RemainingSlots: remaining,
		Approved:       approved,
		Reserved:       reserved,
	}, nil
}

// AcquireSlot reserves room for one new template. At the ceiling it runs
// EnforceLimit once and re-checks before returning a QUOTA_EXCEEDED error.
func (m *Manager) AcquireSlot(ctx context.Context, accountID string) (*Reservation, error) {
	var approved int
	for attempt := 0; attempt < 2; attempt++ {
		var err error
		approved, err = m.store.CountApprovedTemplates(ctx, accountID)
		if err != nil {
			return nil, err
		}
		metrics.ApprovedTemplates.WithLabelValues(accountID).Set(float64(approved))

		outstanding, err := m.counter.Reserve(ctx, accountID, m.config.ReservationTTL)
		if err != nil {
			return nil, apperrors.NewExternalServiceError("slot-counter", err)
		}
		if approved+outstanding <= m.config.Limit {
			return &Reservation{AccountID: accountID, counter: m.counter}, nil
		}
		if err := m.counter.Release(ctx, accountID); err != nil {
			m.logger.Warn("failed to release rejected reservation", map[string]interface{}{"accountId": accountID, "error": err})
		}

		if attempt == 0 {
			if _, err := m.EnforceLimit(ctx, accountID); err != nil {
				return nil, err
			}
		}
	}
	return nil, apperrors.NewQuotaExceededError(accountID, approved, m.config.Limit)
}

// Status reports the current quota position for operational tooling.
func (m *Manager) Status(ctx context.Context, accountID string) (*Status, error) {
	res, err := m.CanCreate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	metrics.ApprovedTemplates.WithLabelValues(accountID).Set(float64(res.Approved))
	return &Status{
		AccountID: accountID,
		Approved:  res.Approved,
		Reserved:  res.Reserved,
		Limit:     m.config.Limit,
		Remaining: res.RemainingSlots,
		Level:     m.level(res.Approved),
	}, nil
}

// EnforceLimit evicts templates when the account is at the ceiling. In the
// warning band it only returns recommendations.
func (m *Manager) EnforceLimit(ctx context.Context, accountID string) (*EnforcementResult, error) {
	current, err := m.store.CountApprovedTemplates(ctx, accountID)
	if err != nil {
		return nil, err
	}
	result := &EnforcementResult{AccountID: accountID, Before: current, After: current, Level: m.level(current)}
	log := m.logger.WithFields(map[string]interface{}{"accountId": accountID, "approved": current})

	switch result.Level {
	case LevelOK:
		return result, nil
	case LevelWarning:
		result.Recommendations = m.recommend(ctx, accountID, current)
		log.Info("template quota in warning band", map[string]interface{}{
			"recommendations": len(result.Recommendations),
		})
		return result, nil
	}

	result.Enforced = true
	log.Warn("template quota at limit, enforcing", map[string]interface{}{
		"limit":       m.config.Limit,
		"targetFloor": m.config.TargetFloor,
	})

	for pass := PassUnused; pass <= PassLowPerformance && current > m.config.TargetFloor; pass++ {
		want := m.passCap(pass)
		if excess := current - m.config.TargetFloor; excess < want {
			want = excess
		}
		current, err = m.runPass(ctx, accountID, pass, want, current, result)
		if err != nil {
			result.After = current
			return result, err
		}
	}

	if current > m.config.Limit {
		current, err = m.runPass(ctx, accountID, PassOverflow, current-m.config.Limit, current, result)
		if err != nil {
			result.After = current
			return result, err
		}
	}

	result.After = current
	result.Level = m.level(current)
	metrics.ApprovedTemplates.WithLabelValues(accountID).Set(float64(current))
	log.Info("template quota enforcement finished", map[string]interface{}{
		"after":   current,
		"deleted": len(result.Actions),
	})
	if current > m.config.Limit {
		log.Error("template quota still above limit after enforcement", map[string]interface{}{"after": current})
	}
	return result, nil
}

func (m *Manager) passCap(p Pass) int {
	switch p {
	case PassUnused:
		return m.config.UnusedPassCap
	case PassStale:
		return m.config.StalePassCap
	case PassLowPerformance:
		return m.config.LowPerfPassCap
	default:
		return 0
	}
}

func (m *Manager) filter(accountID string, p Pass, limit int) models.TemplateFilter {
	now := m.now()
	f := models.TemplateFilter{
		AccountID:         accountID,
		Status:            models.TemplateStatusApproved,
		ExcludeCategories: []models.TemplateCategory{models.CategoryCoreBusiness},
		Limit:             limit,
	}
	switch p {
	case PassUnused:
		f.UsageBelow = models.IntPtr(1)
		f.CreatedBefore = models.TimePtr(now.Add(-m.config.UnusedGrace))
		f.OrderBy = models.OrderByCreatedAt
	case PassStale:
		f.Category = models.CategoryAIGenerated
		f.CreatedBefore = models.TimePtr(now.Add(-m.config.StaleAge))
		f.UsageBelow = models.IntPtr(m.config.StaleUsageMax)
		f.OrderBy = models.OrderByUsage
	case PassLowPerformance:
		f.ResponseRateBelow = models.FloatPtr(m.config.LowResponseRate)
		f.UsageAbove = models.IntPtr(m.config.LowPerfMinUsage)
		f.OrderBy = models.OrderByResponseRate
	case PassOverflow:
		f.OrderBy = models.OrderByUsage
	}
	return f
}

// candidates lists eligible templates for a pass. core_business is dropped
// again here regardless of what the store returned.
func (m *Manager) candidates(ctx context.Context, accountID string, p Pass, limit int) ([]*models.Template, error) {
	if limit <= 0 {
		return nil, nil
	}
	list, err := m.store.ListTemplates(ctx, m.filter(accountID, p, limit))
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, t := range list {
		if t.Category == models.CategoryCoreBusiness || t.Status != models.TemplateStatusApproved {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// runPass evicts up to want templates and returns the recounted total. On a
// store error it returns the last known count less what this pass removed.
func (m *Manager) runPass(ctx context.Context, accountID string, p Pass, want, known int, result *EnforcementResult) (int, error) {
	list, err := m.candidates(ctx, accountID, p, want)
	if err != nil {
		return known, err
	}

	removed := 0
	for _, t := range list {
		if err := ctx.Err(); err != nil {
			break
		}
		action := m.evict(ctx, accountID, p, t)
		if action.LocalDeleted {
			removed++
		}
		result.Actions = append(result.Actions, action)
	}

	current, err := m.store.CountApprovedTemplates(ctx, accountID)
	if err != nil {
		return known - removed, err
	}
	m.logger.Info("quota pass completed", map[string]interface{}{
		"accountId":  accountID,
		"pass":       p.String(),
		"candidates": len(list),
		"approved":   current,
	})
	return current, nil
}

// evict deletes remotely first, then locally. A remote failure is logged as a
// registry inconsistency and does not stop the local delete.
func (m *Manager) evict(ctx context.Context, accountID string, p Pass, t *models.Template) Action {
	action := Action{Pass: p.String(), TemplateID: t.ID, Name: t.Name, Category: t.Category}

	if m.registry != nil {
		rctx, cancel := context.WithTimeout(ctx, m.config.RegistryTimeout)
		err := m.registry.DeleteRemoteTemplate(rctx, accountID, *t)
		cancel()
		if err != nil {
			inconsistency := apperrors.NewRegistryInconsistencyError(t.ID, err)
			metrics.RegistryInconsistencies.Inc()
			m.logger.Warn("remote template delete failed, continuing with local delete", map[string]interface{}{
				"accountId":  accountID,
				"templateId": t.ID,
				"errorCode":  string(inconsistency.Code),
				"error":      err,
			})
			action.Error = inconsistency.Error()
		} else {
			action.RemoteDeleted = true
		}
	}

	if err := m.store.DeleteTemplateRecord(ctx, t.ID); err != nil {
		m.logger.Error("local template delete failed", map[string]interface{}{
			"accountId":  accountID,
			"templateId": t.ID,
			"error":      err,
		})
		action.Error = err.Error()
		return action
	}
	action.LocalDeleted = true
	metrics.TemplateEvictions.WithLabelValues(p.String()).Inc()
	return action
}

// recommend lists what each pass would evict if the account hit the limit now.
func (m *Manager) recommend(ctx context.Context, accountID string, current int) []Recommendation {
	var recs []Recommendation
	seen := make(map[string]bool)
	for pass := PassUnused; pass <= PassLowPerformance; pass++ {
		list, err := m.candidates(ctx, accountID, pass, m.passCap(pass))
		if err != nil {
			m.logger.Warn("recommendation lookup failed", map[string]interface{}{
				"accountId": accountID,
				"pass":      pass.String(),
				"error":     err,
			})
			continue
		}
		var ids []string
		for _, t := range list {
			if !seen[t.ID] {
				seen[t.ID] = true
				ids = append(ids, t.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		recs = append(recs, Recommendation{
			Pass:        pass.String(),
			TemplateIDs: ids,
			Message: fmt.Sprintf("%d approved of %d: %d %s templates are eviction candidates",
				current, m.config.Limit, len(ids), pass.String()),
		})
	}
	return recs
}

// SyncPending checks templates still under platform review. An approved one
// is promoted only when a slot can be reserved for it; a rejected one is
// removed from the platform and retired locally.
func (m *Manager) SyncPending(ctx context.Context, accountID string) (*SyncResult, error) {
	result := &SyncResult{AccountID: accountID}
	if m.registry == nil {
		return result, nil
	}
	pending, err := m.store.ListTemplates(ctx, models.TemplateFilter{
		AccountID: accountID,
		Status:    models.TemplateStatusPending,
		OrderBy:   models.OrderByCreatedAt,
	})
	if err != nil {
		return nil, err
	}

	log := m.logger.WithFields(map[string]interface{}{"accountId": accountID})
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		rctx, cancel := context.WithTimeout(ctx, m.config.RegistryTimeout)
		status, err := m.registry.RemoteTemplateStatus(rctx, *t)
		cancel()
		if err != nil {
			log.Warn("pending template status unavailable", map[string]interface{}{"templateId": t.ID, "error": err})
			result.Waiting++
			continue
		}

		switch models.TemplateStatus(status) {
		case models.TemplateStatusApproved:
			promoted, err := m.promote(ctx, accountID, t)
			if errors.Is(err, apperrors.ErrQuotaExceeded) {
				// no room; the rest stay pending until the next sync
				result.Waiting += len(pending) - result.Checked + 1
				log.Warn("approved template waiting for a free slot", map[string]interface{}{"templateId": t.ID})
				return result, nil
			}
			if err != nil {
				return result, err
			}
			if promoted {
				result.Promoted++
			}
		case "rejected", "disabled":
			m.retireRejected(ctx, accountID, t, status)
			if err := m.store.DeleteTemplateRecord(ctx, t.ID); err != nil {
				return result, err
			}
			result.Removed++
		default:
			result.Waiting++
		}
	}

	if result.Checked > 0 {
		log.Info("pending templates synced", map[string]interface{}{
			"checked":  result.Checked,
			"promoted": result.Promoted,
			"removed":  result.Removed,
			"waiting":  result.Waiting,
		})
	}
	return result, nil
}

func (m *Manager) promote(ctx context.Context, accountID string, t *models.Template) (bool, error) {
	reservation, err := m.AcquireSlot(ctx, accountID)
	if err != nil {
		return false, err
	}
	promoted, err := m.store.PromoteTemplate(ctx, t.ID)
	if err != nil || !promoted {
		if rerr := reservation.Release(context.WithoutCancel(ctx)); rerr != nil {
			m.logger.Warn("failed to release template slot", map[string]interface{}{"accountId": accountID, "error": rerr})
		}
		return false, err
	}
	if err := reservation.Commit(ctx); err != nil {
		m.logger.Warn("failed to commit template slot", map[string]interface{}{"accountId": accountID, "error": err})
	}
	return true, nil
}

func (m *Manager) retireRejected(ctx context.Context, accountID string, t *models.Template, status string) {
	rctx, cancel := context.WithTimeout(ctx, m.config.RegistryTimeout)
	defer cancel()
	if err := m.registry.DeleteRemoteTemplate(rctx, accountID, *t); err != nil {
		metrics.RegistryInconsistencies.Inc()
		m.logger.Warn("remote delete of rejected template failed", map[string]interface{}{
			"accountId":  accountID,
			"templateId": t.ID,
			"error":      err,
		})
	}
	m.logger.Info("pending template rejected by platform", map[string]interface{}{
		"accountId":  accountID,
		"templateId": t.ID,
		"status":     status,
	})
}
