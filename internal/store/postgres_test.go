// internal/store/postgres_test.go
package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	apperrors "followup-orchestrator/internal/common/errors"
	"followup-orchestrator/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskCols = []string{"id", "lead_id", "account_id", "scheduled_time", "attempt_count", "status",
	"follow_up_type", "sequence_stage", "is_final_attempt", "last_error", "sent_at", "created_at", "updated_at"}

var templateCols = []string{"id", "account_id", "name", "category", "language", "body", "usage_count",
	"response_rate", "status", "created_at", "last_used_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestGetDueTasks_ClaimsWithLease(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE followup_tasks SET lease_until = \$2.*FOR UPDATE SKIP LOCKED.*RETURNING`).
		WithArgs(now, now.Add(10*time.Minute), 25).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow("t1", "l1", "acc-1", now.Add(-time.Hour), 0, "pending", "urgency", 0, false, nil, nil, now, now).
			AddRow("t2", "l2", "acc-1", now.Add(-time.Minute), 2, "failed", nil, 1, false, "timeout", nil, now, now))

	tasks, err := s.GetDueTasks(context.Background(), now, 25, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, models.FollowUpUrgency, tasks[0].FollowUpType)
	assert.Equal(t, models.TaskStatusFailed, tasks[1].Status)
	assert.Equal(t, "timeout", tasks[1].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDueTasks_QueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`UPDATE followup_tasks`).WillReturnError(sql.ErrConnDone)

	_, err := s.GetDueTasks(context.Background(), time.Now(), 25, time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestUpdateTask_AppliesFields(t *testing.T) {
	s, mock := newMockStore(t)
	sentAt := time.Date(2026, 10, 14, 10, 5, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM followup_tasks WHERE id = \$1 FOR UPDATE`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE followup_tasks SET lease_until = NULL, updated_at = NOW\(\), status = \$1, sent_at = \$2 WHERE id = \$3`).
		WithArgs("sent", sentAt, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateTask(context.Background(), "t1", models.TaskUpdate{
		Status: models.StatusPtr(models.TaskStatusSent),
		SentAt: &sentAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTask_RejectsLeavingTerminalState(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM followup_tasks`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("dead"))
	mock.ExpectRollback()

	err := s.UpdateTask(context.Background(), "t1", models.TaskUpdate{
		Status: models.StatusPtr(models.TaskStatusPending),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLead_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM leads WHERE id = \$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := s.GetLead(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrLeadNotFound)
}

func TestGetLead(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM leads WHERE id = \$1`).WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "name", "phone", "current_state", "timeline",
			"budget", "location_preference", "property_type", "timezone", "last_activity_at", "created_at"}).
			AddRow("l1", "acc-1", "Asha", "+919800000000", "engaged", "this month", "80L", "Baner", nil, "Asia/Kolkata", now, now))

	lead, err := s.GetLead(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, models.LeadStateEngaged, lead.State)
	assert.Equal(t, "", lead.PropertyType)
	assert.False(t, lead.IntentComplete())
	require.NotNil(t, lead.LastActivityAt)
}

func TestGetConversation(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM messages WHERE lead_id = \$1`).WithArgs("l1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "lead_id", "direction", "body", "template_id", "sent_at"}).
			AddRow("m1", "l1", "outbound", "hi", "tpl-1", now.Add(-time.Hour)).
			AddRow("m2", "l1", "inbound", "hello", nil, now))

	conv, err := s.GetConversation(context.Background(), "l1", 10)
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, "tpl-1", conv[0].TemplateID)
	assert.Equal(t, "m2", conv.LastInbound().ID)
}

func TestListTemplates_BuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)
	before := time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM templates WHERE account_id = \$1 AND status = \$2 AND category <> ALL\(\$3\) AND created_at < \$4 AND usage_count < \$5 ORDER BY created_at ASC LIMIT \$6`).
		WithArgs("acc-1", "approved", sqlmock.AnyArg(), before, 1, 20).
		WillReturnRows(sqlmock.NewRows(templateCols).
			AddRow("tp1", "acc-1", "promo_a", "standard", "en", "Hi", 0, 0.0, "approved", before.Add(-time.Hour), nil))

	out, err := s.ListTemplates(context.Background(), models.TemplateFilter{
		AccountID:         "acc-1",
		Status:            models.TemplateStatusApproved,
		ExcludeCategories: []models.TemplateCategory{models.CategoryCoreBusiness},
		CreatedBefore:     &before,
		UsageBelow:        models.IntPtr(1),
		Limit:             20,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.CategoryStandard, out[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTemplates_OrderByResponseRate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`WHERE response_rate < \$1 ORDER BY response_rate ASC`).
		WithArgs(0.2).
		WillReturnRows(sqlmock.NewRows(templateCols))

	_, err := s.ListTemplates(context.Background(), models.TemplateFilter{
		ResponseRateBelow: models.FloatPtr(0.2),
		OrderBy:           models.OrderByResponseRate,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountApprovedTemplates(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM templates WHERE account_id = \$1 AND status = 'approved'`).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(250))

	n, err := s.CountApprovedTemplates(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 250, n)
}

func TestPromoteTemplate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE templates SET status = 'approved' WHERE id = \$1 AND status = 'pending'`).
		WithArgs("t-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE templates SET status = 'approved'`).
		WithArgs("t-2").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.PromoteTemplate(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.PromoteTemplate(context.Background(), "t-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkLeadDead(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads SET current_state = 'dead'`).WithArgs("l1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE followup_tasks SET status = 'dead'`).WithArgs("l1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, s.MarkLeadDead(context.Background(), "l1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeTrackingRows(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM followup_tasks WHERE status IN \('sent', 'dead'\) AND updated_at < \$1`).
		WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := s.PurgeTrackingRows(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestUpsertDailyMetrics(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO daily_metrics .* ON CONFLICT \(account_id, date\) DO UPDATE`).
		WithArgs("acc-1", "2026-10-14", 10, 1, 0, 4, 0.4, 212).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertDailyMetrics(context.Background(), "acc-1", day, &models.DailyMetrics{
		TasksSent: 10, TasksFailed: 1, Replies: 4, ResponseRate: 0.4, TemplatesApproved: 212,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateDailyMetrics(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)
	start := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM followup_tasks t WHERE t.account_id = \$1`).
		WithArgs("acc-1", start, start.Add(24*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"sent", "failed", "dead", "replies", "approved"}).AddRow(8, 2, 1, 2, 190))

	m, err := s.AggregateDailyMetrics(context.Background(), "acc-1", day)
	require.NoError(t, err)
	assert.Equal(t, 8, m.TasksSent)
	assert.InDelta(t, 0.25, m.ResponseRate, 1e-9)
	assert.Equal(t, start, m.Date)
}

func TestListUnansweredFinalAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE t.is_final_attempt = TRUE`).WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"lead_id"}).AddRow("l1").AddRow("l7"))

	ids, err := s.ListUnansweredFinalAttempts(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l7"}, ids)
}
