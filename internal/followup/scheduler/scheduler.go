// internal/followup/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"followup-orchestrator/internal/common/database"
	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/common/metrics"
	"followup-orchestrator/internal/common/observability"
	decisionengine "followup-orchestrator/internal/followup/decision-engine"
	quotamanager "followup-orchestrator/internal/followup/quota-manager"
	strategyselector "followup-orchestrator/internal/followup/strategy-selector"
	"followup-orchestrator/internal/models"
)

// ErrJobRunning is returned when a job is triggered while a previous run of
// the same job is still in progress.
var ErrJobRunning = errors.New("job already running")

// Store is the persistence surface the scheduler drives.
type Store interface {
	GetDueTasks(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.FollowUpTask, error)
	CountDueTasks(ctx context.Context, now time.Time) (int, error)
	UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error
	CreateTask(ctx context.Context, t *models.FollowUpTask) error
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	GetConversation(ctx context.Context, leadID string, limit int) (models.Conversation, error)
	RecordOutbound(ctx context.Context, msg models.Message) error
	IncrementTemplateUsage(ctx context.Context, templateID string, at time.Time) error
	ListAccounts(ctx context.Context) ([]string, error)
	ListUnansweredFinalAttempts(ctx context.Context, sentBefore time.Time) ([]string, error)
	MarkLeadDead(ctx context.Context, leadID string) error
	PurgeTrackingRows(ctx context.Context, cutoff time.Time) (int64, error)
	AggregateDailyMetrics(ctx context.Context, accountID string, day time.Time) (*models.DailyMetrics, error)
	UpsertDailyMetrics(ctx context.Context, accountID string, date time.Time, m *models.DailyMetrics) error
	RefreshTemplateResponseRates(ctx context.Context, accountID string, replyWindow time.Duration) (int64, error)
	ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]*models.Template, error)
}

type Decider interface {
	Decide(lead *models.Lead, conv models.Conversation, task *models.FollowUpTask) decisionengine.StrategyInput
}

type Strategist interface {
	SelectStrategy(ctx context.Context, input decisionengine.StrategyInput, lead *models.Lead, conv models.Conversation) strategyselector.StrategyDecision
	Execute(ctx context.Context, d strategyselector.StrategyDecision) *strategyselector.MessageArtifact
}

// Locker provides cross-process run guards. *database.RedisClient satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (*database.Lock, error)
}

type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

type AnalyticsSink interface {
	IndexDailyMetrics(ctx context.Context, m *models.DailyMetrics) error
	IndexTemplatePerformance(ctx context.Context, rows []models.TemplatePerformance) error
}

// QuotaReporter reports template usage and settles templates still under
// platform review. *quotamanager.Manager satisfies it.
type QuotaReporter interface {
	Status(ctx context.Context, accountID string) (*quotamanager.Status, error)
	SyncPending(ctx context.Context, accountID string) (*quotamanager.SyncResult, error)
}

// Deps are the collaborators handed to New. Locker, Alerter, Analytics,
// Quota and Observability are optional.
type Deps struct {
	Store         Store
	Decider       Decider
	Strategist    Strategist
	Transport     Transport
	Locker        Locker
	Alerter       Alerter
	Analytics     AnalyticsSink
	Quota         QuotaReporter
	Observability *observability.Observability
}

type job struct {
	name      string
	interval  time.Duration
	immediate bool
	fn        func(ctx context.Context) error

	running atomic.Bool

	mu     sync.Mutex
	status JobStatus
}

type Scheduler struct {
	config *Config
	deps   Deps
	logger logger.Logger
	now    func() time.Time

	jobs  []*job
	byKey map[string]*job

	errWindow *errorWindow

	mu        sync.RWMutex
	running   bool
	startedAt *time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	health    HealthState
	reasons   []string
	depth     int
	lastCycle *CycleStats
}

func New(cfg *Config, deps Deps, log logger.Logger) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Store == nil || deps.Decider == nil || deps.Strategist == nil || deps.Transport == nil {
		return nil, errors.New("scheduler requires store, decider, strategist and transport")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	s := &Scheduler{
		config:    cfg,
		deps:      deps,
		logger:    log.WithFields(map[string]interface{}{"component": "scheduler"}),
		now:       time.Now,
		byKey:     make(map[string]*job),
		errWindow: newErrorWindow(time.Hour),
		health:    HealthHealthy,
	}

	s.register(JobProcessDueTasks, cfg.ProcessInterval, true, func(ctx context.Context) error {
		_, err := s.processDueTasks(ctx)
		return err
	})
	s.register(JobDeadLeadSweep, cfg.DeadSweepInterval, false, s.deadLeadSweep)
	s.register(JobPerformanceAnalytics, cfg.AnalyticsInterval, false, s.performanceAnalytics)
	s.register(JobHealthCheck, cfg.HealthInterval, false, s.healthCheck)
	s.register(JobTemplatePerformance, cfg.TemplatePerfInterval, false, s.templatePerformance)
	return s, nil
}

func (s *Scheduler) register(name string, interval time.Duration, immediate bool, fn func(context.Context) error) {
	j := &job{name: name, interval: interval, immediate: immediate, fn: fn}
	j.status = JobStatus{Name: name, Interval: interval}
	s.jobs = append(s.jobs, j)
	s.byKey[name] = j
}

// Start launches one timer goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	now := s.now()
	s.startedAt = &now

	for _, j := range s.jobs {
		if j.interval <= 0 {
			s.logger.Warn("job disabled, interval not positive", map[string]interface{}{"job": j.name})
			continue
		}
		s.wg.Add(1)
		go s.loop(runCtx, j)
	}

	s.logger.Info("scheduler started", map[string]interface{}{"jobs": len(s.jobs)})
	return nil
}

// Stop cancels all timers and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", nil)
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	if j.immediate {
		_ = s.runJob(ctx, j)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.runJob(ctx, j)
		}
	}
}

// RunOnce runs a single main-processor pass synchronously. It shares the run
// guard with the timer, so it never overlaps a scheduled pass.
func (s *Scheduler) RunOnce(ctx context.Context) (*CycleStats, error) {
	var stats *CycleStats
	j := s.byKey[JobProcessDueTasks]
	err := s.guarded(ctx, j, func(ctx context.Context) error {
		var err error
		stats, err = s.processDueTasks(ctx)
		return err
	})
	return stats, err
}

// RunJob triggers a named job outside its timer.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	j, ok := s.byKey[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runJob(ctx, j)
}

func (s *Scheduler) runJob(ctx context.Context, j *job) error {
	return s.guarded(ctx, j, j.fn)
}

// guarded wraps a job run: re-entry guard, optional distributed lock, panic
// recovery, duration and outcome recording.
func (s *Scheduler) guarded(ctx context.Context, j *job, fn func(context.Context) error) (err error) {
	log := s.logger.WithFields(map[string]interface{}{"job": j.name})

	if !j.running.CompareAndSwap(false, true) {
		s.skip(j, "previous run still in progress")
		return ErrJobRunning
	}
	defer j.running.Store(false)

	if s.deps.Locker != nil && s.config.DistributedLocks {
		lock, lerr := s.deps.Locker.TryLock(ctx, "followup:scheduler:"+j.name, s.lockTTL(j))
		switch {
		case lerr != nil:
			log.Warn("distributed lock unavailable, running with local guard only", map[string]interface{}{"error": lerr})
		case lock == nil:
			s.skip(j, "held by another scheduler instance")
			return ErrJobRunning
		default:
			defer func() {
				if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
					log.Warn("failed to release job lock", map[string]interface{}{"error": rerr})
				}
			}()
		}
	}

	ctx, span := s.deps.Observability.StartSpan(ctx, "scheduler."+j.name)
	defer span.End()

	start := s.now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job %s panicked: %v", j.name, r)
				log.Error("job panic recovered", map[string]interface{}{"panic": fmt.Sprint(r), "stack": string(debug.Stack())})
			}
		}()
		err = fn(ctx)
	}()
	duration := s.now().Sub(start)

	status := "success"
	if err != nil {
		status = "failure"
		s.errWindow.add(s.now(), 1)
		span.RecordError(err)
		log.Error("job failed", map[string]interface{}{"durationMs": duration.Milliseconds(), "error": err})
	} else {
		log.Info("job completed", map[string]interface{}{"durationMs": duration.Milliseconds()})
	}

	metrics.JobRuns.WithLabelValues(j.name, status).Inc()
	metrics.JobDuration.WithLabelValues(j.name).Observe(duration.Seconds())
	s.deps.Observability.RecordJobRun(ctx, j.name, status, duration)

	j.mu.Lock()
	j.status.Runs++
	finished := s.now()
	j.status.LastRun = &finished
	j.status.LastDuration = duration
	j.status.LastError = ""
	if err != nil {
		j.status.Failures++
		j.status.LastError = err.Error()
	}
	j.mu.Unlock()
	return err
}

func (s *Scheduler) skip(j *job, reason string) {
	metrics.JobRuns.WithLabelValues(j.name, "skipped").Inc()
	j.mu.Lock()
	j.status.Skipped++
	j.mu.Unlock()
	s.logger.Info("job run skipped", map[string]interface{}{"job": j.name, "reason": reason})
}

// lockTTL bounds how long a crashed holder can block other instances.
func (s *Scheduler) lockTTL(j *job) time.Duration {
	ttl := j.interval
	if ttl > 30*time.Minute {
		ttl = 30 * time.Minute
	}
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

// GetStatus returns a snapshot for health endpoints.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	st := Status{
		Running:       s.running,
		StartedAt:     s.startedAt,
		Health:        s.health,
		HealthReasons: append([]string(nil), s.reasons...),
		QueueDepth:    s.depth,
	}
	if s.lastCycle != nil {
		c := *s.lastCycle
		st.LastCycle = &c
	}
	s.mu.RUnlock()

	st.RecentErrors = s.errWindow.count(s.now())
	for _, j := range s.jobs {
		j.mu.Lock()
		js := j.status
		j.mu.Unlock()
		js.Running = j.running.Load()
		st.Jobs = append(st.Jobs, js)
	}
	return st
}

// AdaptiveBatchSize shrinks the per-cycle batch as the queue gets shorter.
func AdaptiveBatchSize(depth int) int {
	switch {
	case depth > 500:
		return 100
	case depth > 200:
		return 75
	case depth > 50:
		return 50
	default:
		return 25
	}
}

// errorWindow counts errors over a sliding duration.
type errorWindow struct {
	mu     sync.Mutex
	span   time.Duration
	events []time.Time
}

func newErrorWindow(span time.Duration) *errorWindow {
	return &errorWindow{span: span}
}

func (w *errorWindow) add(at time.Time, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := 0; i < n; i++ {
		w.events = append(w.events, at)
	}
	w.prune(at)
}

func (w *errorWindow) count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)
	return len(w.events)
}

func (w *errorWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	w.events = w.events[i:]
}
