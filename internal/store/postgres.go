// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"followup-orchestrator/internal/common/database"
	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/models"

	"github.com/lib/pq"
)

// PostgresStore is the row-level store behind the follow-up core. It holds no
// business rules beyond the task lifecycle check in UpdateTask.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const taskColumns = `id, lead_id, account_id, scheduled_time, attempt_count, status,
	follow_up_type, sequence_stage, is_final_attempt, last_error, sent_at, created_at, updated_at`

const templateColumns = `id, account_id, name, category, language, body, usage_count,
	response_rate, status, created_at, last_used_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.FollowUpTask, error) {
	var (
		t         models.FollowUpTask
		status    string
		fuType    sql.NullString
		lastError sql.NullString
		sentAt    sql.NullTime
	)
	err := row.Scan(&t.ID, &t.LeadID, &t.AccountID, &t.ScheduledTime, &t.AttemptCount, &status,
		&fuType, &t.SequenceStage, &t.IsFinalAttempt, &lastError, &sentAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	t.FollowUpType = models.FollowUpType(fuType.String)
	t.LastError = lastError.String
	if sentAt.Valid {
		t.SentAt = &sentAt.Time
	}
	return &t, nil
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		t          models.Template
		category   string
		status     string
		lastUsedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.Name, &category, &t.Language, &t.Body, &t.UsageCount,
		&t.ResponseRate, &status, &t.CreatedAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}
	t.Category = models.TemplateCategory(category)
	t.Status = models.TemplateStatus(status)
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	return &t, nil
}

// ==========================
// Tasks
// ==========================

// GetDueTasks claims up to limit due tasks by stamping a lease, so a second
// call (or a second scheduler) cannot pick the same rows until the lease
// expires or UpdateTask clears it.
func (s *PostgresStore) GetDueTasks(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.FollowUpTask, error) {
	query := `
		UPDATE followup_tasks SET lease_until = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM followup_tasks
			WHERE status IN ('pending', 'failed')
			  AND scheduled_time <= $1
			  AND (lease_until IS NULL OR lease_until < $1)
			ORDER BY scheduled_time ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := s.db.QueryContext(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("get_due_tasks", err)
	}
	defer rows.Close()

	var tasks []*models.FollowUpTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("get_due_tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("get_due_tasks", err)
	}
	return tasks, nil
}

func (s *PostgresStore) CountDueTasks(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM followup_tasks WHERE status IN ('pending', 'failed') AND scheduled_time <= $1`,
		now).Scan(&n)
	if err != nil {
		return 0, apperrors.NewPersistenceError("count_due_tasks", err)
	}
	return n, nil
}

// UpdateTask applies u under a row lock and rejects transitions out of a
// terminal state. The claim lease is always cleared.
func (s *PostgresStore) UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM followup_tasks WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s not found", id)
		}
		if err != nil {
			return err
		}

		task := &models.FollowUpTask{ID: id, Status: models.TaskStatus(current)}
		if err := u.Apply(task); err != nil {
			return apperrors.NewValidationError(err.Error())
		}

		sets := []string{"lease_until = NULL", "updated_at = NOW()"}
		var args []interface{}
		set := func(col string, v interface{}) {
			args = append(args, v)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		if u.Status != nil {
			set("status", string(*u.Status))
		}
		if u.AttemptCount != nil {
			set("attempt_count", *u.AttemptCount)
		}
		if u.ScheduledTime != nil {
			set("scheduled_time", *u.ScheduledTime)
		}
		if u.LastError != nil {
			set("last_error", *u.LastError)
		}
		if u.SentAt != nil {
			set("sent_at", *u.SentAt)
		}
		if u.FollowUpType != nil {
			set("follow_up_type", string(*u.FollowUpType))
		}
		args = append(args, id)

		query := fmt.Sprintf(`UPDATE followup_tasks SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err == nil {
		return nil
	}
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return err
	}
	return apperrors.NewPersistenceError("update_task", err)
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *models.FollowUpTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO followup_tasks (id, lead_id, account_id, scheduled_time, attempt_count, status,
			follow_up_type, sequence_stage, is_final_attempt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		t.ID, t.LeadID, t.AccountID, t.ScheduledTime, t.AttemptCount, string(t.Status),
		string(t.FollowUpType), t.SequenceStage, t.IsFinalAttempt)
	if err != nil {
		return apperrors.NewPersistenceError("create_task", err)
	}
	return nil
}

// ==========================
// Leads & conversations
// ==========================

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	var (
		l            models.Lead
		state        string
		timeline     sql.NullString
		budget       sql.NullString
		location     sql.NullString
		propertyType sql.NullString
		timezone     sql.NullString
		lastActivity sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, phone, current_state, timeline, budget, location_preference,
			property_type, timezone, last_activity_at, created_at
		FROM leads WHERE id = $1`, id).
		Scan(&l.ID, &l.AccountID, &l.Name, &l.Phone, &state, &timeline, &budget, &location,
			&propertyType, &timezone, &lastActivity, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewLeadNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get_lead", err)
	}
	l.State = models.LeadState(state)
	l.Timeline = timeline.String
	l.Budget = budget.String
	l.LocationPreference = location.String
	l.PropertyType = propertyType.String
	l.Timezone = timezone.String
	if lastActivity.Valid {
		l.LastActivityAt = &lastActivity.Time
	}
	return &l, nil
}

// GetConversation returns the last limit messages for a lead, oldest first.
func (s *PostgresStore) GetConversation(ctx context.Context, leadID string, limit int) (models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, direction, body, template_id, sent_at FROM (
			SELECT id, lead_id, direction, body, template_id, sent_at
			FROM messages WHERE lead_id = $1
			ORDER BY sent_at DESC LIMIT $2
		) recent ORDER BY sent_at ASC`, leadID, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("get_conversation", err)
	}
	defer rows.Close()

	var conv models.Conversation
	for rows.Next() {
		var (
			m          models.Message
			direction  string
			templateID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.LeadID, &direction, &m.Body, &templateID, &m.SentAt); err != nil {
			return nil, apperrors.NewPersistenceError("get_conversation", err)
		}
		m.Direction = models.Direction(direction)
		m.TemplateID = templateID.String
		conv = append(conv, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("get_conversation", err)
	}
	return conv, nil
}

// RecordOutbound logs a sent follow-up so replies can be attributed to it.
func (s *PostgresStore) RecordOutbound(ctx context.Context, msg models.Message) error {
	var templateID interface{}
	if msg.TemplateID != "" {
		templateID = msg.TemplateID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, lead_id, direction, body, template_id, sent_at)
		VALUES ($1, $2, 'outbound', $3, $4, $5)`,
		msg.ID, msg.LeadID, msg.Body, templateID, msg.SentAt)
	if err != nil {
		return apperrors.NewPersistenceError("record_outbound", err)
	}
	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT account_id FROM leads ORDER BY account_id`)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list_accounts", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewPersistenceError("list_accounts", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUnansweredFinalAttempts returns leads whose final follow-up went out at
// or before sentBefore and who have not written back since.
func (s *PostgresStore) ListUnansweredFinalAttempts(ctx context.Context, sentBefore time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT t.lead_id
		FROM followup_tasks t
		JOIN leads l ON l.id = t.lead_id
		WHERE t.is_final_attempt = TRUE
		  AND t.status = 'sent'
		  AND t.sent_at <= $1
		  AND l.current_state NOT IN ('dead', 'converted')
		  AND NOT EXISTS (
			SELECT 1 FROM messages m
			WHERE m.lead_id = t.lead_id AND m.direction = 'inbound' AND m.sent_at > t.sent_at
		  )`, sentBefore)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list_unanswered_final_attempts", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewPersistenceError("list_unanswered_final_attempts", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkLeadDead flags the lead and retires its open tasks.
func (s *PostgresStore) MarkLeadDead(ctx context.Context, leadID string) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE leads SET current_state = 'dead' WHERE id = $1`, leadID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE followup_tasks SET status = 'dead', lease_until = NULL, updated_at = NOW()
			 WHERE lead_id = $1 AND status IN ('pending', 'failed')`, leadID)
		return err
	})
	if err != nil {
		return apperrors.NewPersistenceError("mark_lead_dead", err)
	}
	return nil
}

// PurgeTrackingRows deletes terminal task rows last touched before cutoff.
func (s *PostgresStore) PurgeTrackingRows(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM followup_tasks WHERE status IN ('sent', 'dead') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.NewPersistenceError("purge_tracking_rows", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ==========================
// Templates
// ==========================

func (s *PostgresStore) CountApprovedTemplates(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM templates WHERE account_id = $1 AND status = 'approved'`, accountID).Scan(&n)
	if err != nil {
		return 0, apperrors.NewPersistenceError("count_approved_templates", err)
	}
	return n, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context, f models.TemplateFilter) ([]*models.Template, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Category != "" {
		add("category = $%d", string(f.Category))
	}
	if len(f.ExcludeCategories) > 0 {
		cats := make([]string, len(f.ExcludeCategories))
		for i, c := range f.ExcludeCategories {
			cats[i] = string(c)
		}
		add("category <> ALL($%d)", pq.Array(cats))
	}
	if f.CreatedBefore != nil {
		add("created_at < $%d", *f.CreatedBefore)
	}
	if f.UsageBelow != nil {
		add("usage_count < $%d", *f.UsageBelow)
	}
	if f.UsageAbove != nil {
		add("usage_count > $%d", *f.UsageAbove)
	}
	if f.ResponseRateBelow != nil {
		add("response_rate < $%d", *f.ResponseRateBelow)
	}

	query := "SELECT " + templateColumns + " FROM templates"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	switch f.OrderBy {
	case models.OrderByUsage:
		query += " ORDER BY usage_count ASC, created_at ASC"
	case models.OrderByResponseRate:
		query += " ORDER BY response_rate ASC, created_at ASC"
	default:
		query += " ORDER BY created_at ASC"
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list_templates", err)
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, apperrors.NewPersistenceError("list_templates", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("list_templates", err)
	}
	return out, nil
}

// DeleteTemplateRecord soft-deletes; the row stays for reporting.
func (s *PostgresStore) DeleteTemplateRecord(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE templates SET status = 'deleted' WHERE id = $1 AND status <> 'deleted'`, id)
	if err != nil {
		return apperrors.NewPersistenceError("delete_template_record", err)
	}
	return nil
}

func (s *PostgresStore) CreateTemplateRecord(ctx context.Context, t *models.Template) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, account_id, name, category, language, body, usage_count,
			response_rate, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8)`,
		t.ID, t.AccountID, t.Name, string(t.Category), t.Language, t.Body, string(t.Status), t.CreatedAt)
	if err != nil {
		return apperrors.NewPersistenceError("create_template_record", err)
	}
	return nil
}

// PromoteTemplate marks a pending template approved. It reports false when
// the row was not pending.
func (s *PostgresStore) PromoteTemplate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET status = 'approved' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, apperrors.NewPersistenceError("promote_template", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError("promote_template", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) IncrementTemplateUsage(ctx context.Context, templateID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE templates SET usage_count = usage_count + 1, last_used_at = $2 WHERE id = $1`, templateID, at)
	if err != nil {
		return apperrors.NewPersistenceError("increment_template_usage", err)
	}
	return nil
}

// RefreshTemplateResponseRates recomputes response_rate as the share of
// template sends answered by the lead within replyWindow.
func (s *PostgresStore) RefreshTemplateResponseRates(ctx context.Context, accountID string, replyWindow time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE templates t SET response_rate = stats.rate
		FROM (
			SELECT o.template_id,
				AVG(CASE WHEN EXISTS (
					SELECT 1 FROM messages i
					WHERE i.lead_id = o.lead_id AND i.direction = 'inbound'
					  AND i.sent_at > o.sent_at AND i.sent_at <= o.sent_at + $2 * INTERVAL '1 second'
				) THEN 1.0 ELSE 0.0 END) AS rate
			FROM messages o
			WHERE o.direction = 'outbound' AND o.template_id IS NOT NULL
			GROUP BY o.template_id
		) stats
		WHERE t.id = stats.template_id AND t.account_id = $1`,
		accountID, int64(replyWindow.Seconds()))
	if err != nil {
		return 0, apperrors.NewPersistenceError("refresh_template_response_rates", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ==========================
// Metrics
// ==========================

// AggregateDailyMetrics computes an account's rollup for the UTC day containing day.
func (s *PostgresStore) AggregateDailyMetrics(ctx context.Context, accountID string, day time.Time) (*models.DailyMetrics, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	m := &models.DailyMetrics{AccountID: accountID, Date: start}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE t.status = 'sent' AND t.sent_at >= $2 AND t.sent_at < $3),
			COUNT(*) FILTER (WHERE t.status = 'failed' AND t.updated_at >= $2 AND t.updated_at < $3),
			COUNT(*) FILTER (WHERE t.status = 'dead' AND t.updated_at >= $2 AND t.updated_at < $3),
			(SELECT COUNT(*) FROM messages msg JOIN leads l ON l.id = msg.lead_id
			 WHERE l.account_id = $1 AND msg.direction = 'inbound' AND msg.sent_at >= $2 AND msg.sent_at < $3),
			(SELECT COUNT(*) FROM templates WHERE account_id = $1 AND status = 'approved')
		FROM followup_tasks t WHERE t.account_id = $1`,
		accountID, start, end).
		Scan(&m.TasksSent, &m.TasksFailed, &m.TasksDead, &m.Replies, &m.TemplatesApproved)
	if err != nil {
		return nil, apperrors.NewPersistenceError("aggregate_daily_metrics", err)
	}
	if m.TasksSent > 0 {
		m.ResponseRate = float64(m.Replies) / float64(m.TasksSent)
		if m.ResponseRate > 1 {
			m.ResponseRate = 1
		}
	}
	return m, nil
}

func (s *PostgresStore) UpsertDailyMetrics(ctx context.Context, accountID string, date time.Time, m *models.DailyMetrics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (account_id, date, tasks_sent, tasks_failed, tasks_dead, replies,
			response_rate, templates_approved, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (account_id, date) DO UPDATE SET
			tasks_sent = EXCLUDED.tasks_sent,
			tasks_failed = EXCLUDED.tasks_failed,
			tasks_dead = EXCLUDED.tasks_dead,
			replies = EXCLUDED.replies,
			response_rate = EXCLUDED.response_rate,
			templates_approved = EXCLUDED.templates_approved,
			updated_at = NOW()`,
		accountID, date.Format("2006-01-02"), m.TasksSent, m.TasksFailed, m.TasksDead, m.Replies,
		m.ResponseRate, m.TemplatesApproved)
	if err != nil {
		return apperrors.NewPersistenceError("upsert_daily_metrics", err)
	}
	return nil
}
