// Package dedup detects repeated submissions: exact text, perceptually equal
// images and identical reports filed at the same spot. All stores are owned
// by a Detector and every check-and-insert is atomic per store.
package dedup

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"report-intake-pipeline/imagehash"
	"report-intake-pipeline/metrics"

	"github.com/apex/log"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the sphere radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// ImageHasher computes the perceptual hash of a remote image.
type ImageHasher interface {
	HashURL(ctx context.Context, imageURL string) (imagehash.Hash, error)
}

type textKey struct {
	user        string
	description string
	category    string
}

type locationEntry struct {
	point       s2.LatLng
	description string
	category    string
}

type textStore struct {
	mu   sync.Mutex
	seen map[textKey]struct{}
}

type imageStore struct {
	mu     sync.Mutex
	urls   map[string]struct{}
	hashes []imagehash.Hash
}

type locationStore struct {
	mu      sync.Mutex
	entries []locationEntry
}

// Detector owns the three duplicate stores. The zero value is not usable;
// create one with NewDetector.
type Detector struct {
	hasher    ImageHasher
	text      textStore
	images    imageStore
	locations locationStore
}

func NewDetector(hasher ImageHasher) *Detector {
	return &Detector{
		hasher: hasher,
		text:   textStore{seen: make(map[textKey]struct{})},
		images: imageStore{urls: make(map[string]struct{})},
	}
}

// NormalizeText lower-cases, trims and collapses whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeURL drops the query string and fragment, which do not change the
// image served.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

func newTextKey(userID, description, category string) textKey {
	user := strings.TrimSpace(userID)
	if user == "" {
		user = "anon"
	}
	return textKey{
		user:        user,
		description: NormalizeText(description),
		category:    strings.ToLower(strings.TrimSpace(category)),
	}
}

// IsDuplicateText reports whether the same user already filed the same text
// under the same category. With store set, a first sighting is recorded.
func (d *Detector) IsDuplicateText(userID, description, category string, store bool) bool {
	key := newTextKey(userID, description, category)

	d.text.mu.Lock()
	defer d.text.mu.Unlock()
	if d.text.containsLocked(key) {
		return true
	}
	if store {
		d.text.seen[key] = struct{}{}
	}
	return false
}

// IsDuplicateImage reports whether the image was seen before, by normalized
// URL or by a perceptual hash within threshold bits. Fetch and decode
// failures are never duplicates and are never recorded.
func (d *Detector) IsDuplicateImage(ctx context.Context, imageURL string, threshold int, store bool) bool {
	if strings.TrimSpace(imageURL) == "" {
		return false
	}
	fp := d.prepareImage(ctx, imageURL)

	d.images.mu.Lock()
	defer d.images.mu.Unlock()
	if d.images.containsLocked(fp, threshold) {
		return true
	}
	if store {
		d.images.insertLocked(fp)
	}
	return false
}

// IsDuplicateLocation reports whether a report with the same normalized text
// and category was filed within thresholdMeters. Proximity alone or equal
// text alone is not enough.
func (d *Detector) IsDuplicateLocation(lat, lon float64, description, category string, thresholdMeters float64, store bool) bool {
	entry := newLocationEntry(lat, lon, description, category)

	d.locations.mu.Lock()
	defer d.locations.mu.Unlock()
	if d.locations.containsLocked(entry, thresholdMeters) {
		return true
	}
	if store {
		d.locations.entries = append(d.locations.entries, entry)
	}
	return false
}

// Stats reports store sizes.
type Stats struct {
	TextKeys    int `json:"text_keys"`
	ImageURLs   int `json:"image_urls"`
	ImageHashes int `json:"image_hashes"`
	Locations   int `json:"locations"`
}

func (d *Detector) Stats() Stats {
	var s Stats
	d.text.mu.Lock()
	s.TextKeys = len(d.text.seen)
	d.text.mu.Unlock()
	d.images.mu.Lock()
	s.ImageURLs = len(d.images.urls)
	s.ImageHashes = len(d.images.hashes)
	d.images.mu.Unlock()
	d.locations.mu.Lock()
	s.Locations = len(d.locations.entries)
	d.locations.mu.Unlock()
	return s
}

func newLocationEntry(lat, lon float64, description, category string) locationEntry {
	return locationEntry{
		point:       s2.LatLngFromDegrees(lat, lon),
		description: NormalizeText(description),
		category:    strings.ToLower(strings.TrimSpace(category)),
	}
}

// imageFingerprint is computed outside any lock; hashing does network I/O.
type imageFingerprint struct {
	url     string
	hash    imagehash.Hash
	hashed  bool
	present bool
}

func (d *Detector) prepareImage(ctx context.Context, imageURL string) imageFingerprint {
	fp := imageFingerprint{url: NormalizeURL(imageURL), present: true}

	d.images.mu.Lock()
	_, seen := d.images.urls[fp.url]
	d.images.mu.Unlock()
	if seen {
		return fp
	}

	h, err := d.hasher.HashURL(ctx, imageURL)
	if err != nil {
		metrics.ImageHashFailuresTotal.Inc()
		log.WithError(err).WithField("image_url", imageURL).Warn("image hash failed, treating as not duplicate")
		return fp
	}
	fp.hash = h
	fp.hashed = true
	return fp
}

func (s *textStore) containsLocked(key textKey) bool {
	_, ok := s.seen[key]
	return ok
}

func (s *imageStore) containsLocked(fp imageFingerprint, threshold int) bool {
	if !fp.present {
		return false
	}
	if _, ok := s.urls[fp.url]; ok {
		return true
	}
	if !fp.hashed {
		return false
	}
	for _, h := range s.hashes {
		if imagehash.Distance(fp.hash, h) <= threshold {
			return true
		}
	}
	return false
}

func (s *imageStore) insertLocked(fp imageFingerprint) {
	if !fp.present || !fp.hashed {
		return
	}
	s.hashes = append(s.hashes, fp.hash)
	s.urls[fp.url] = struct{}{}
}

func (s *locationStore) containsLocked(e locationEntry, thresholdMeters float64) bool {
	for _, prev := range s.entries {
		if prev.description != e.description || prev.category != e.category {
			continue
		}
		if prev.point.Distance(e.point).Radians()*EarthRadiusMeters <= thresholdMeters {
			return true
		}
	}
	return false
}
