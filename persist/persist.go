// Package persist hands every decision to the configured sinks without
// letting a slow or failing sink hold up the pipeline.
package persist

import (
	"context"
	"errors"
	"sync"

	"report-intake-pipeline/metrics"
	"report-intake-pipeline/models"

	"github.com/apex/log"
)

// Saver stores one decision record.
type Saver interface {
	Save(ctx context.Context, record models.DecisionRecord) error
	Name() string
}

// Recorder accepts a decision record and returns at once.
type Recorder interface {
	Record(record models.DecisionRecord)
}

// MultiSaver fans a record out to every saver. All savers are tried; the
// errors are joined.
type MultiSaver []Saver

func (m MultiSaver) Name() string { return "multi" }

func (m MultiSaver) Save(ctx context.Context, record models.DecisionRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, record); err != nil {
			metrics.PersistErrorsTotal.WithLabelValues(s.Name()).Inc()
			log.WithError(err).WithFields(log.Fields{
				"saver":     s.Name(),
				"report_id": record.ReportID,
			}).Error("failed to save decision")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySaver keeps records in memory.
type MemorySaver struct {
	mu      sync.Mutex
	records []models.DecisionRecord
}

func NewMemorySaver() *MemorySaver {
	return &MemorySaver{}
}

func (m *MemorySaver) Name() string { return "memory" }

func (m *MemorySaver) Save(_ context.Context, record models.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

// Records returns a copy of everything saved so far.
func (m *MemorySaver) Records() []models.DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DecisionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// LogSaver writes each decision as a structured log line.
type LogSaver struct{}

func (LogSaver) Name() string { return "log" }

func (LogSaver) Save(_ context.Context, r models.DecisionRecord) error {
	log.WithFields(log.Fields{
		"report_id":     r.ReportID,
		"status":        r.Status,
		"category":      r.Category,
		"urgency":       r.Urgency,
		"priority":      r.Priority,
		"reason_code":   r.ReasonCode,
		"rules_version": r.RulesVersion,
	}).Info("decision")
	return nil
}

// SyncRecorder saves inline and only logs failures.
type SyncRecorder struct {
	saver Saver
}

func NewSyncRecorder(saver Saver) *SyncRecorder {
	return &SyncRecorder{saver: saver}
}

func (s *SyncRecorder) Record(record models.DecisionRecord) {
	if err := s.saver.Save(context.Background(), record); err != nil {
		log.WithError(err).WithField("report_id", record.ReportID).Warn("decision not persisted")
	}
}
