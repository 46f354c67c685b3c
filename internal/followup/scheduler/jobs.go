// internal/followup/scheduler/jobs.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/common/metrics"
	"followup-orchestrator/internal/common/validation"
	quotamanager "followup-orchestrator/internal/followup/quota-manager"
	"followup-orchestrator/internal/models"
)

// ==========================
// Main processor
// ==========================

func (s *Scheduler) processDueTasks(ctx context.Context) (*CycleStats, error) {
	now := s.now()
	stats := &CycleStats{StartedAt: now}

	depth, err := s.deps.Store.CountDueTasks(ctx, now)
	if err != nil {
		return stats, err
	}
	stats.QueueDepth = depth
	stats.BatchSize = AdaptiveBatchSize(depth)
	metrics.QueueDepth.Set(float64(depth))
	metrics.BatchSize.Set(float64(stats.BatchSize))

	s.mu.Lock()
	s.depth = depth
	s.mu.Unlock()

	tasks, err := s.deps.Store.GetDueTasks(ctx, now, stats.BatchSize, s.config.ClaimLease)
	if err != nil {
		return stats, err
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(1, s.config.Concurrency))
	for _, task := range tasks {
		g.Go(func() error {
			o := s.runTask(ctx, task)
			metrics.TasksProcessed.WithLabelValues(o.String()).Inc()

			mu.Lock()
			defer mu.Unlock()
			stats.Processed++
			switch o {
			case outcomeSent:
				stats.Sent++
			case outcomeFailed:
				stats.Failed++
			case outcomeDead:
				stats.Dead++
			default:
				stats.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Duration = s.now().Sub(now)
	if stats.Failed+stats.Dead > 0 {
		s.errWindow.add(s.now(), stats.Failed+stats.Dead)
	}

	s.mu.Lock()
	c := *stats
	s.lastCycle = &c
	s.mu.Unlock()

	fields := map[string]interface{}{
		"queueDepth": stats.QueueDepth,
		"batchSize":  stats.BatchSize,
		"processed":  stats.Processed,
		"sent":       stats.Sent,
		"failed":     stats.Failed,
		"dead":       stats.Dead,
		"skipped":    stats.Skipped,
		"durationMs": stats.Duration.Milliseconds(),
	}
	switch {
	case stats.Duration > s.config.SlowCycleThreshold:
		s.logger.Warn("slow processing cycle", fields)
	case stats.FailureRatio() > s.config.FailureRatioWarn:
		s.logger.Warn("high failure ratio in processing cycle", fields)
	default:
		s.logger.Info("processing cycle finished", fields)
	}
	return stats, nil
}

// runTask recovers a panicking task so the rest of the batch still runs.
// A task that panics after delivery is not failed, it must not be resent.
func (s *Scheduler) runTask(ctx context.Context, task *models.FollowUpTask) (o outcome) {
	var delivered bool
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		log := s.logger.WithFields(map[string]interface{}{"taskId": task.ID, "leadId": task.LeadID})
		log.Error("task panic recovered", map[string]interface{}{
			"panic":     fmt.Sprint(r),
			"delivered": delivered,
			"stack":     string(debug.Stack()),
		})
		if delivered {
			o = outcomeSent
			return
		}
		o = s.fail(ctx, task, fmt.Errorf("task panicked: %v", r), log)
	}()
	return s.processTask(ctx, task, &delivered)
}

// processTask runs decide, select, execute and send for one claimed task.
// Errors stop at this boundary so one task cannot abort the cycle.
func (s *Scheduler) processTask(parent context.Context, task *models.FollowUpTask, delivered *bool) outcome {
	ctx, cancel := context.WithTimeout(parent, s.config.TaskTimeout)
	defer cancel()
	ctx, span := s.deps.Observability.StartSpan(ctx, "scheduler.process_task",
		attribute.String("task.id", task.ID),
		attribute.String("lead.id", task.LeadID),
		attribute.Int("task.attempt", task.AttemptCount),
	)
	defer span.End()

	log := s.logger.WithFields(map[string]interface{}{"taskId": task.ID, "leadId": task.LeadID})

	if err := validation.ValidateTask(task); err != nil {
		return s.retire(ctx, task, err, log)
	}

	lead, err := s.deps.Store.GetLead(ctx, task.LeadID)
	if err != nil {
		if errors.Is(err, apperrors.ErrLeadNotFound) {
			return s.retire(ctx, task, err, log)
		}
		return s.fail(ctx, task, err, log)
	}
	if !lead.Active() {
		return s.retire(ctx, task, apperrors.NewValidationError(fmt.Sprintf("lead is %s", lead.State)), log)
	}
	if err := validation.ValidateLead(lead); err != nil {
		return s.retire(ctx, task, err, log)
	}

	conv, err := s.deps.Store.GetConversation(ctx, lead.ID, s.config.ConversationLimit)
	if err != nil {
		return s.fail(ctx, task, err, log)
	}

	input := s.deps.Decider.Decide(lead, conv, task)
	decision := s.deps.Strategist.SelectStrategy(ctx, input, lead, conv)
	artifact := s.deps.Strategist.Execute(ctx, decision)
	span.SetAttributes(attribute.String("strategy", string(artifact.Strategy)))

	if err := s.deps.Transport.Send(ctx, lead.Phone, artifact.Outbound()); err != nil {
		span.RecordError(err)
		return s.fail(ctx, task, err, log)
	}
	*delivered = true

	// the message is out; bookkeeping must not die with the task deadline
	ctx = context.WithoutCancel(ctx)
	sentAt := s.now()
	sent := models.TaskStatusSent
	followUpType := input.FollowUpType
	if err := s.deps.Store.UpdateTask(ctx, task.ID, models.TaskUpdate{
		Status:       &sent,
		SentAt:       &sentAt,
		FollowUpType: &followUpType,
	}); err != nil {
		// delivered but not recorded; the lease keeps it from resending until expiry
		log.Error("failed to mark task sent", map[string]interface{}{"error": err})
		return outcomeFailed
	}

	if err := s.deps.Store.RecordOutbound(ctx, models.Message{
		ID:         uuid.NewString(),
		LeadID:     lead.ID,
		Direction:  models.DirectionOutbound,
		Body:       artifact.Text,
		TemplateID: artifact.TemplateID,
		SentAt:     sentAt,
	}); err != nil {
		log.Warn("failed to record outbound message", map[string]interface{}{"error": err})
	}
	if artifact.TemplateID != "" {
		if err := s.deps.Store.IncrementTemplateUsage(ctx, artifact.TemplateID, sentAt); err != nil {
			log.Warn("failed to increment template usage", map[string]interface{}{"templateId": artifact.TemplateID, "error": err})
		}
	}

	s.continueSequence(ctx, task, lead, input.FollowUpType, input.ScheduledAt, log)

	log.Info("follow-up sent", map[string]interface{}{
		"strategy":     artifact.Strategy,
		"followUpType": input.FollowUpType,
		"level":        input.Level,
		"score":        input.Score,
	})
	return outcomeSent
}

func (s *Scheduler) continueSequence(ctx context.Context, task *models.FollowUpTask, lead *models.Lead, t models.FollowUpType, at time.Time, log logger.Logger) {
	next := task.SequenceStage + 1
	if task.IsFinalAttempt || next >= s.config.MaxSequenceStages {
		return
	}
	nextTask := &models.FollowUpTask{
		ID:             uuid.NewString(),
		LeadID:         lead.ID,
		AccountID:      task.AccountID,
		ScheduledTime:  at,
		Status:         models.TaskStatusPending,
		FollowUpType:   t,
		SequenceStage:  next,
		IsFinalAttempt: next == s.config.MaxSequenceStages-1,
	}
	if err := s.deps.Store.CreateTask(ctx, nextTask); err != nil {
		log.Warn("failed to schedule next follow-up", map[string]interface{}{"stage": next, "error": err})
		return
	}
	log.Debug("next follow-up scheduled", map[string]interface{}{
		"nextTaskId":  nextTask.ID,
		"stage":       next,
		"scheduledAt": at,
	})
}

// retire marks a task dead without retry; used for malformed data.
func (s *Scheduler) retire(ctx context.Context, task *models.FollowUpTask, cause error, log logger.Logger) outcome {
	ctx = context.WithoutCancel(ctx)
	dead := models.TaskStatusDead
	msg := cause.Error()
	log.Warn("task skipped, data invalid", map[string]interface{}{
		"errorCode": string(apperrors.CodeOf(cause)),
		"error":     cause,
	})
	if err := s.deps.Store.UpdateTask(ctx, task.ID, models.TaskUpdate{Status: &dead, LastError: &msg}); err != nil {
		log.Error("failed to retire task", map[string]interface{}{"error": err})
	}
	return outcomeSkipped
}

// fail records a retryable failure. A task that already used its retry
// budget is moved to dead instead.
func (s *Scheduler) fail(ctx context.Context, task *models.FollowUpTask, cause error, log logger.Logger) outcome {
	if errors.Is(cause, apperrors.ErrValidationFailed) {
		return s.retire(ctx, task, cause, log)
	}

	// failures after the task deadline still need to be written
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	attempt := task.AttemptCount + 1

	if task.AttemptCount >= s.config.MaxRetries {
		dead := models.TaskStatusDead
		log.Warn("task exhausted retries", map[string]interface{}{"attempts": attempt, "error": cause})
		if err := s.deps.Store.UpdateTask(ctx, task.ID, models.TaskUpdate{
			Status:       &dead,
			AttemptCount: &attempt,
			LastError:    &msg,
		}); err != nil {
			log.Error("failed to mark task dead", map[string]interface{}{"error": err})
		}
		return outcomeDead
	}

	failed := models.TaskStatusFailed
	retryAt := s.now().Add(s.Backoff(attempt))
	log.Warn("task failed, will retry", map[string]interface{}{
		"attempt":   attempt,
		"retryAt":   retryAt,
		"errorCode": string(apperrors.CodeOf(cause)),
		"error":     cause,
	})
	if err := s.deps.Store.UpdateTask(ctx, task.ID, models.TaskUpdate{
		Status:        &failed,
		AttemptCount:  &attempt,
		ScheduledTime: &retryAt,
		LastError:     &msg,
	}); err != nil {
		log.Error("failed to record task failure", map[string]interface{}{"error": err})
	}
	return outcomeFailed
}

// Backoff returns the retry delay for the nth attempt: base * 2^(n-1), capped.
func (s *Scheduler) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := s.config.RetryBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.config.RetryBackoffMax {
			return s.config.RetryBackoffMax
		}
	}
	if d > s.config.RetryBackoffMax {
		return s.config.RetryBackoffMax
	}
	return d
}

// ==========================
// Housekeeping jobs
// ==========================

func (s *Scheduler) deadLeadSweep(ctx context.Context) error {
	now := s.now()
	leads, err := s.deps.Store.ListUnansweredFinalAttempts(ctx, now.Add(-s.config.NoResponseWindow))
	if err != nil {
		return err
	}

	var errs []error
	marked := 0
	for _, id := range leads {
		if err := s.deps.Store.MarkLeadDead(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("lead %s: %w", id, err))
			continue
		}
		marked++
	}

	purged, err := s.deps.Store.PurgeTrackingRows(ctx, now.Add(-s.config.RetentionWindow))
	if err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("dead lead sweep finished", map[string]interface{}{
		"candidates": len(leads),
		"markedDead": marked,
		"purgedRows": purged,
	})
	return errors.Join(errs...)
}

func (s *Scheduler) performanceAnalytics(ctx context.Context) error {
	accounts, err := s.deps.Store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	day := s.now().UTC()
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var errs []error
	for _, acc := range accounts {
		m, err := s.deps.Store.AggregateDailyMetrics(ctx, acc, date)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.deps.Store.UpsertDailyMetrics(ctx, acc, date, m); err != nil {
			errs = append(errs, err)
			continue
		}
		if s.deps.Analytics != nil {
			if err := s.deps.Analytics.IndexDailyMetrics(ctx, m); err != nil {
				s.logger.Warn("analytics sink rejected daily metrics", map[string]interface{}{"accountId": acc, "error": err})
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) templatePerformance(ctx context.Context) error {
	accounts, err := s.deps.Store.ListAccounts(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	var errs []error
	for _, acc := range accounts {
		if _, err := s.deps.Store.RefreshTemplateResponseRates(ctx, acc, s.config.ReplyWindow); err != nil {
			errs = append(errs, err)
			continue
		}
		templates, err := s.deps.Store.ListTemplates(ctx, models.TemplateFilter{
			AccountID: acc,
			Status:    models.TemplateStatusApproved,
			OrderBy:   models.OrderByResponseRate,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		rows := make([]models.TemplatePerformance, 0, len(templates))
		for _, t := range templates {
			rows = append(rows, models.TemplatePerformance{
				TemplateID:   t.ID,
				AccountID:    acc,
				Name:         t.Name,
				Category:     t.Category,
				UsageCount:   t.UsageCount,
				ResponseRate: t.ResponseRate,
				ComputedAt:   now,
			})
		}
		if s.deps.Analytics != nil && len(rows) > 0 {
			if err := s.deps.Analytics.IndexTemplatePerformance(ctx, rows); err != nil {
				s.logger.Warn("analytics sink rejected template performance", map[string]interface{}{"accountId": acc, "error": err})
			}
		}
		if s.deps.Quota != nil {
			if _, err := s.deps.Quota.SyncPending(ctx, acc); err != nil {
				s.logger.Warn("pending template sync failed", map[string]interface{}{"accountId": acc, "error": err})
			}
			if st, err := s.deps.Quota.Status(ctx, acc); err == nil && st.Level != quotamanager.LevelOK {
				s.logger.Warn("template quota above warning threshold", map[string]interface{}{
					"accountId": acc,
					"approved":  st.Approved,
					"limit":     st.Limit,
					"level":     st.Level,
				})
			}
		}
	}
	return errors.Join(errs...)
}

// healthCheck flips the scheduler to degraded on error bursts or backlog. It
// alerts once per transition and never stops the scheduler.
func (s *Scheduler) healthCheck(ctx context.Context) error {
	now := s.now()
	depth, err := s.deps.Store.CountDueTasks(ctx, now)
	if err != nil {
		return err
	}
	recent := s.errWindow.count(now)

	var reasons []string
	if recent > s.config.ErrorThreshold {
		reasons = append(reasons, fmt.Sprintf("%d errors in the last hour (threshold %d)", recent, s.config.ErrorThreshold))
	}
	if depth > s.config.QueueDepthCeiling {
		reasons = append(reasons, fmt.Sprintf("queue depth %d exceeds %d", depth, s.config.QueueDepthCeiling))
	}
	state := HealthHealthy
	if len(reasons) > 0 {
		state = HealthDegraded
	}

	s.mu.Lock()
	previous := s.health
	s.health = state
	s.reasons = reasons
	s.depth = depth
	s.mu.Unlock()

	if state == HealthDegraded {
		metrics.HealthDegraded.Set(1)
	} else {
		metrics.HealthDegraded.Set(0)
	}

	if state != previous {
		s.logger.Warn("scheduler health changed", map[string]interface{}{
			"from":    previous,
			"to":      state,
			"reasons": reasons,
		})
		if state == HealthDegraded && s.deps.Alerter != nil {
			body := "Follow-up scheduler is degraded:\n- " + strings.Join(reasons, "\n- ")
			if err := s.deps.Alerter.Alert(ctx, "[followup] scheduler degraded", body); err != nil {
				s.logger.Warn("failed to send health alert", map[string]interface{}{"error": err})
			}
		}
	}
	return nil
}
