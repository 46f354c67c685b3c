// internal/followup/analytics/sink.go
package analytics

import (
	"context"
	"errors"
	"fmt"

	"followup-orchestrator/internal/common/logger"
	"followup-orchestrator/internal/models"
)

const (
	dailyMetricsIndex        = "daily-metrics"
	templatePerformanceIndex = "template-performance"
)

// Indexer is the document-store surface the sink writes to.
// *database.ElasticsearchClient satisfies it.
type Indexer interface {
	Index(name string) string
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

// ElasticsearchSink publishes scheduler rollups for dashboards. Documents are
// keyed by day so re-running a rollup overwrites rather than duplicates.
type ElasticsearchSink struct {
	indexer Indexer
	logger  logger.Logger
}

func NewElasticsearchSink(indexer Indexer, log logger.Logger) *ElasticsearchSink {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ElasticsearchSink{
		indexer: indexer,
		logger:  log.WithFields(map[string]interface{}{"component": "analytics"}),
	}
}

func (s *ElasticsearchSink) IndexDailyMetrics(ctx context.Context, m *models.DailyMetrics) error {
	if m == nil {
		return nil
	}
	id := fmt.Sprintf("%s-%s", m.AccountID, m.Date.Format("2006-01-02"))
	if err := s.indexer.IndexDocument(ctx, s.indexer.Index(dailyMetricsIndex), id, m); err != nil {
		return fmt.Errorf("index daily metrics %s: %w", id, err)
	}
	s.logger.Debug("daily metrics indexed", map[string]interface{}{"documentId": id})
	return nil
}

// IndexTemplatePerformance writes every row and reports all failures together.
func (s *ElasticsearchSink) IndexTemplatePerformance(ctx context.Context, rows []models.TemplatePerformance) error {
	var errs []error
	index := s.indexer.Index(templatePerformanceIndex)
	for _, p := range rows {
		id := fmt.Sprintf("%s-%s", p.TemplateID, p.ComputedAt.Format("2006-01-02"))
		if err := s.indexer.IndexDocument(ctx, index, id, p); err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", p.TemplateID, err))
		}
	}
	if len(errs) > 0 {
		s.logger.Warn("template performance partially indexed", map[string]interface{}{
			"rows":   len(rows),
			"failed": len(errs),
		})
	}
	return errors.Join(errs...)
}
