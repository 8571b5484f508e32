// Package pipeline turns a submitted report into exactly one accept or
// reject decision and hands every decision to the persistence layer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"report-intake-pipeline/dedup"
	"report-intake-pipeline/imagematch"
	"report-intake-pipeline/metrics"
	"report-intake-pipeline/models"
	"report-intake-pipeline/persist"

	"github.com/apex/log"
	"github.com/google/uuid"
)

const acceptedReason = "Report accepted successfully"

// TextClassifier makes the text decisions.
type TextClassifier interface {
	DetectCategory(description string) models.Category
	IsAbusive(description string) bool
	DetectUrgency(description string) models.Urgency
}

// ImageChecker decides whether an image fits a category.
type ImageChecker interface {
	Check(ctx context.Context, imageURL string, category models.Category) imagematch.Result
}

// Deduplicator fingerprints a report and commits it atomically.
type Deduplicator interface {
	Prepare(ctx context.Context, report models.Report, category models.Category, withText bool) dedup.Fingerprint
	CheckAndRecord(fp dedup.Fingerprint, th dedup.Thresholds) (dedup.Kind, bool)
}

// Options tune the pipeline.
type Options struct {
	ImageHashThreshold      int
	LocationThresholdMeters float64
	// ExactTextDedup also rejects a repeat of the same text from the same
	// user, even without an image or coordinates.
	ExactTextDedup bool
	PriorityMode   PriorityMode
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	text         TextClassifier
	images       ImageChecker
	dedup        Deduplicator
	recorder     persist.Recorder
	rulesVersion string
	opts         Options
	now          func() time.Time
}

func New(text TextClassifier, images ImageChecker, dd Deduplicator, recorder persist.Recorder, rulesVersion string, opts Options) *Pipeline {
	if opts.PriorityMode == "" {
		opts.PriorityMode = PriorityThreeTier
	}
	return &Pipeline{
		text:         text,
		images:       images,
		dedup:        dd,
		recorder:     recorder,
		rulesVersion: rulesVersion,
		opts:         opts,
		now:          time.Now,
	}
}

// RulesVersion is the version stamped on every decision.
func (p *Pipeline) RulesVersion() string { return p.rulesVersion }

// Process decides report. It always returns a result; internal failures
// become a processing_error rejection.
func (p *Pipeline) Process(ctx context.Context, report models.Report) (result models.ClassificationResult) {
	start := p.now()
	if strings.TrimSpace(report.ReportID) == "" {
		report.ReportID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("report_id", report.ReportID).Errorf("panic while processing report: %v", r)
			result = rejectedResult(report.ReportID, internalError(fmt.Errorf("panic: %v", r)))
		}
		p.finish(report, result, start)
	}()

	category, urgency, err := p.decide(ctx, report)
	if err != nil {
		var rej *Rejection
		if !errors.As(err, &rej) {
			log.WithError(err).WithField("report_id", report.ReportID).Error("report processing failed")
			rej = internalError(err)
		}
		return rejectedResult(report.ReportID, rej)
	}

	return models.ClassificationResult{
		ReportID:   report.ReportID,
		Accept:     true,
		Status:     models.StatusAccepted,
		Category:   category,
		Department: category,
		Urgency:    urgency,
		Priority:   PriorityFor(urgency, p.opts.PriorityMode),
		Reason:     acceptedReason,
		ReasonCode: models.ReasonAccepted,
	}
}

func (p *Pipeline) decide(ctx context.Context, report models.Report) (models.Category, models.Urgency, error) {
	description := strings.TrimSpace(report.Description)
	if description == "" {
		return "", "", reject(KindValidation, models.ReasonDescriptionRequired, "Description is required", models.CategoryOther)
	}

	category := p.text.DetectCategory(description)
	if category == models.CategoryOther {
		return "", "", reject(KindClassificationUnavailable, models.ReasonCategoryUndetermined, "Unable to determine issue category", models.CategoryOther)
	}

	if p.text.IsAbusive(description) {
		return "", "", reject(KindPolicyViolation, models.ReasonAbusiveLanguage, "Abusive language detected", category)
	}

	if report.HasImage() {
		res := p.images.Check(ctx, report.ImageURL, category)
		if !res.Match {
			log.WithFields(log.Fields{
				"report_id": report.ReportID,
				"category":  category,
				"label":     res.Label,
				"rule":      res.Rule,
			}).Info("image does not match category")
			return "", "", reject(KindPolicyViolation, models.ReasonImageCategoryMismatch, "Image does not match the issue description", category)
		}
	}

	if report.HasImage() || report.HasLocation() || p.opts.ExactTextDedup {
		fp := p.dedup.Prepare(ctx, report, category, p.opts.ExactTextDedup)
		th := dedup.Thresholds{
			ImageHashBits:  p.opts.ImageHashThreshold,
			LocationMeters: p.opts.LocationThresholdMeters,
		}
		if kind, dup := p.dedup.CheckAndRecord(fp, th); dup {
			return "", "", reject(KindPolicyViolation, models.ReasonDuplicate, duplicateMessage(kind), category)
		}
	}

	return category, p.text.DetectUrgency(description), nil
}

func duplicateMessage(kind dedup.Kind) string {
	switch kind {
	case dedup.KindImage:
		return "Duplicate image detected"
	case dedup.KindLocation:
		return "Duplicate report at this location"
	default:
		return "Duplicate report"
	}
}

func rejectedResult(reportID string, rej *Rejection) models.ClassificationResult {
	category := rej.Category
	if category == "" {
		category = models.CategoryOther
	}
	return models.ClassificationResult{
		ReportID:   reportID,
		Accept:     false,
		Status:     models.StatusRejected,
		Category:   category,
		Department: category,
		Reason:     rej.Message,
		ReasonCode: rej.Code,
	}
}

func (p *Pipeline) finish(report models.Report, result models.ClassificationResult, start time.Time) {
	elapsed := p.now().Sub(start)
	metrics.DecisionsTotal.WithLabelValues(string(result.Status), string(result.ReasonCode)).Inc()
	metrics.DecisionDurationSeconds.WithLabelValues(string(result.Status)).Observe(elapsed.Seconds())

	log.WithFields(log.Fields{
		"report_id":   result.ReportID,
		"status":      result.Status,
		"category":    result.Category,
		"reason_code": result.ReasonCode,
		"duration":    elapsed,
	}).Debug("report decided")

	if p.recorder != nil {
		p.recorder.Record(models.NewDecisionRecord(report, result, p.rulesVersion, p.now()))
	}
}
