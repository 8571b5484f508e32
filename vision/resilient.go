package vision

import (
	"context"
	"time"

	"report-intake-pipeline/metrics"

	"github.com/apex/log"
	"golang.org/x/time/rate"
)

// Resilient wraps a primary Labeler with a timeout, an optional rate limit
// and a fallback. It never returns an error: when the primary fails, times
// out or answers with an empty label, the fallback is used, and when that
// fails too the answer is LabelOther.
type Resilient struct {
	primary  Labeler
	fallback Labeler
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewResilient builds the wrapper. fallback may be nil. A ratePerSecond of
// zero or less disables rate limiting.
func NewResilient(primary, fallback Labeler, timeout time.Duration, ratePerSecond float64) *Resilient {
	r := &Resilient{
		primary:  primary,
		fallback: fallback,
		timeout:  timeout,
	}
	if ratePerSecond > 0 {
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return r
}

func (r *Resilient) SourceName() string { return r.primary.SourceName() }

func (r *Resilient) Classify(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return LabelOther, nil
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(callCtx); err != nil {
			return r.degrade(ctx, imageURL, "rate_limited", err), nil
		}
	}

	start := time.Now()
	label, err := r.primary.Classify(callCtx, imageURL)
	metrics.VisionDurationSeconds.WithLabelValues(r.primary.SourceName()).Observe(time.Since(start).Seconds())
	if err != nil {
		return r.degrade(ctx, imageURL, "error", err), nil
	}
	label = CleanLabel(label)
	if label == "" {
		return r.degrade(ctx, imageURL, "empty_label", nil), nil
	}
	return label, nil
}

func (r *Resilient) degrade(ctx context.Context, imageURL, reason string, cause error) string {
	metrics.VisionFallbackTotal.WithLabelValues(reason).Inc()
	fields := log.Fields{
		"provider":  r.primary.SourceName(),
		"image_url": imageURL,
		"reason":    reason,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}

	if r.fallback == nil {
		log.WithFields(fields).Warn("vision labeler failed, using sentinel label")
		return LabelOther
	}
	label, err := r.fallback.Classify(ctx, imageURL)
	label = CleanLabel(label)
	if err != nil || label == "" {
		log.WithFields(fields).Warn("vision fallback failed, using sentinel label")
		return LabelOther
	}
	fields["fallback"] = r.fallback.SourceName()
	fields["label"] = label
	log.WithFields(fields).Warn("vision labeler failed, using fallback label")
	return label
}
