package dedup

import (
	"context"

	"report-intake-pipeline/metrics"
	"report-intake-pipeline/models"
)

// Kind names the fingerprint that matched.
type Kind string

const (
	KindNone     Kind = ""
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindLocation Kind = "location"
)

// Thresholds are the caller-supplied tolerances for the fuzzy checks.
type Thresholds struct {
	// ImageHashBits is the largest Hamming distance still counted as the
	// same image. Zero means bit-identical only.
	ImageHashBits int
	// LocationMeters is the largest distance still counted as the same spot.
	LocationMeters float64
}

// Fingerprint holds every key of one report that a commit checks. Build it
// with Prepare; the image hash is fetched there, outside any lock.
type Fingerprint struct {
	text     *textKey
	image    imageFingerprint
	location *locationEntry
}

// Empty reports whether the fingerprint has nothing to check.
func (f Fingerprint) Empty() bool {
	return f.text == nil && !f.image.present && f.location == nil
}

// Prepare builds the fingerprint of report filed under category. The text
// key is only included when withText is set; the image and location keys are
// included whenever the report carries them.
func (d *Detector) Prepare(ctx context.Context, report models.Report, category models.Category, withText bool) Fingerprint {
	var fp Fingerprint
	if withText {
		k := newTextKey(report.UserID, report.Description, string(category))
		fp.text = &k
	}
	if report.HasImage() {
		fp.image = d.prepareImage(ctx, report.ImageURL)
	}
	if report.HasLocation() {
		e := newLocationEntry(*report.Latitude, *report.Longitude, report.Description, string(category))
		fp.location = &e
	}
	return fp
}

// CheckAndRecord checks every key of fp and, only when none is a duplicate,
// records all of them. The stores are locked in a fixed order for the whole
// operation, so of N concurrent identical submissions exactly one is
// recorded and the rest observe a duplicate.
func (d *Detector) CheckAndRecord(fp Fingerprint, th Thresholds) (Kind, bool) {
	d.text.mu.Lock()
	defer d.text.mu.Unlock()
	d.images.mu.Lock()
	defer d.images.mu.Unlock()
	d.locations.mu.Lock()
	defer d.locations.mu.Unlock()

	kind := KindNone
	switch {
	case fp.image.present && d.images.containsLocked(fp.image, th.ImageHashBits):
		kind = KindImage
	case fp.location != nil && d.locations.containsLocked(*fp.location, th.LocationMeters):
		kind = KindLocation
	case fp.text != nil && d.text.containsLocked(*fp.text):
		kind = KindText
	}
	if kind != KindNone {
		metrics.DuplicatesTotal.WithLabelValues(string(kind)).Inc()
		return kind, true
	}

	if fp.text != nil {
		d.text.seen[*fp.text] = struct{}{}
	}
	d.images.insertLocked(fp.image)
	if fp.location != nil {
		d.locations.entries = append(d.locations.entries, *fp.location)
	}
	return KindNone, false
}
