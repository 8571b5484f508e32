package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"report-intake-pipeline/imagehash"
	"report-intake-pipeline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHasher returns fixed hashes per URL and counts calls.
type fakeHasher struct {
	mu     sync.Mutex
	hashes map[string]imagehash.Hash
	calls  int32
}

func newFakeHasher(h map[string]imagehash.Hash) *fakeHasher {
	return &fakeHasher{hashes: h}
}

func (f *fakeHasher) HashURL(ctx context.Context, imageURL string) (imagehash.Hash, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[imageURL]
	if !ok {
		return 0, errors.New("fetch failed")
	}
	return h, nil
}

func ptr(f float64) *float64 { return &f }

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		in, want string
	}{
		{"https://cdn.example.com/a.jpg?size=large#top", "https://cdn.example.com/a.jpg"},
		{"https://cdn.example.com/a.jpg?", "https://cdn.example.com/a.jpg"},
		{"  https://cdn.example.com/a.jpg ", "https://cdn.example.com/a.jpg"},
		{"https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, NormalizeURL(tc.in))
	}
}

func TestDistanceMeters(t *testing.T) {
	assert.InDelta(t, 0, DistanceMeters(12.9716, 77.5946, 12.9716, 77.5946), 1e-9)
	// One degree of latitude on the 6,371 km sphere.
	assert.InDelta(t, 111194.9, DistanceMeters(0, 0, 1, 0), 1)
}

func TestIsDuplicateText(t *testing.T) {
	d := NewDetector(newFakeHasher(nil))

	assert.False(t, d.IsDuplicateText("u1", "Pothole on  Main St", "Road & Traffic", false))
	assert.False(t, d.IsDuplicateText("u1", "Pothole on  Main St", "Road & Traffic", true), "probe must not record")
	assert.True(t, d.IsDuplicateText("u1", "  pothole on main st ", "road & traffic", true))
	assert.False(t, d.IsDuplicateText("u2", "pothole on main st", "Road & Traffic", true))
	assert.False(t, d.IsDuplicateText("", "pothole on main st", "Road & Traffic", true))
	assert.True(t, d.IsDuplicateText("anon", "pothole on main st", "Road & Traffic", true))
	assert.False(t, d.IsDuplicateText("u1", "pothole on main st", "Electricity", true))
}

func TestIsDuplicateImageThreshold(t *testing.T) {
	hasher := newFakeHasher(map[string]imagehash.Hash{
		"https://img/a.jpg":      0b0000,
		"https://img/a-copy.jpg": 0b0000,
		"https://img/b.jpg":      0b0001,
		"https://img/c.jpg":      0b0111,
	})
	ctx := context.Background()

	d := NewDetector(hasher)
	assert.False(t, d.IsDuplicateImage(ctx, "https://img/a.jpg", 0, true))
	assert.True(t, d.IsDuplicateImage(ctx, "https://img/a-copy.jpg", 0, false), "identical hash is a duplicate at threshold 0")
	assert.False(t, d.IsDuplicateImage(ctx, "https://img/b.jpg", 0, false), "one bit apart is not a duplicate at threshold 0")
	assert.True(t, d.IsDuplicateImage(ctx, "https://img/b.jpg", 1, false))
	assert.False(t, d.IsDuplicateImage(ctx, "https://img/c.jpg", 2, false))
	assert.True(t, d.IsDuplicateImage(ctx, "https://img/c.jpg", 3, false))
}

func TestIsDuplicateImageURLShortcut(t *testing.T) {
	hasher := newFakeHasher(map[string]imagehash.Hash{"https://img/a.jpg?v=1": 42})
	ctx := context.Background()
	d := NewDetector(hasher)

	assert.False(t, d.IsDuplicateImage(ctx, "https://img/a.jpg?v=1", 0, true))
	calls := atomic.LoadInt32(&hasher.calls)

	assert.True(t, d.IsDuplicateImage(ctx, "https://img/a.jpg?v=2#frag", 0, true))
	assert.Equal(t, calls, atomic.LoadInt32(&hasher.calls), "URL hit must not fetch")
}

func TestIsDuplicateImageFailsOpen(t *testing.T) {
	d := NewDetector(newFakeHasher(nil))
	ctx := context.Background()

	assert.False(t, d.IsDuplicateImage(ctx, "https://img/broken.jpg", 64, true))
	assert.False(t, d.IsDuplicateImage(ctx, "https://img/broken.jpg", 64, true), "failed images are never recorded")
	assert.False(t, d.IsDuplicateImage(ctx, "", 64, true))
	assert.Equal(t, Stats{}, d.Stats())
}

func TestIsDuplicateLocation(t *testing.T) {
	d := NewDetector(newFakeHasher(nil))
	const desc = "Garbage pile near the bus stop"
	const cat = "Garbage & Sanitation"

	assert.False(t, d.IsDuplicateLocation(12.9716, 77.5946, desc, cat, 0, true))

	testCases := []struct {
		name      string
		lat, lon  float64
		desc      string
		cat       string
		threshold float64
		want      bool
	}{
		{"same spot zero threshold", 12.9716, 77.5946, desc, cat, 0, true},
		{"same spot text normalized", 12.9716, 77.5946, "  garbage PILE near the bus stop", cat, 0, true},
		{"same spot different text", 12.9716, 77.5946, "Garbage near the school", cat, 100, false},
		{"same spot different category", 12.9716, 77.5946, desc, "Electricity", 100, false},
		{"about 11m away within threshold", 12.9717, 77.5946, desc, cat, 12, true},
		{"about 11m away beyond threshold", 12.9717, 77.5946, desc, cat, 2, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, d.IsDuplicateLocation(tc.lat, tc.lon, tc.desc, tc.cat, tc.threshold, false))
		})
	}
}

func TestCheckAndRecordIsAllOrNothing(t *testing.T) {
	hasher := newFakeHasher(map[string]imagehash.Hash{
		"https://img/a.jpg": 1,
		"https://img/b.jpg": ^imagehash.Hash(0),
	})
	d := NewDetector(hasher)
	ctx := context.Background()
	th := Thresholds{ImageHashBits: 3, LocationMeters: 2}

	first := models.Report{Description: "Pothole", ImageURL: "https://img/a.jpg", Latitude: ptr(1), Longitude: ptr(1)}
	kind, dup := d.CheckAndRecord(d.Prepare(ctx, first, models.CategoryRoadTraffic, false), th)
	require.False(t, dup)
	assert.Equal(t, KindNone, kind)

	// Same image, new place: the image is the duplicate and the new
	// location must not be recorded.
	second := models.Report{Description: "Pothole", ImageURL: "https://img/a.jpg?x=1", Latitude: ptr(5), Longitude: ptr(5)}
	kind, dup = d.CheckAndRecord(d.Prepare(ctx, second, models.CategoryRoadTraffic, false), th)
	require.True(t, dup)
	assert.Equal(t, KindImage, kind)
	assert.Equal(t, 1, d.Stats().Locations)

	// New image, same place and text.
	third := models.Report{Description: "pothole", ImageURL: "https://img/b.jpg", Latitude: ptr(1), Longitude: ptr(1)}
	kind, dup = d.CheckAndRecord(d.Prepare(ctx, third, models.CategoryRoadTraffic, false), th)
	require.True(t, dup)
	assert.Equal(t, KindLocation, kind)
	assert.Equal(t, 1, d.Stats().ImageHashes)
}

func TestCheckAndRecordText(t *testing.T) {
	d := NewDetector(newFakeHasher(nil))
	ctx := context.Background()
	r := models.Report{Description: "Streetlight not working", UserID: "u1"}

	fp := d.Prepare(ctx, r, models.CategoryStreetLighting, false)
	assert.True(t, fp.Empty())

	_, dup := d.CheckAndRecord(d.Prepare(ctx, r, models.CategoryStreetLighting, true), Thresholds{})
	assert.False(t, dup)
	kind, dup := d.CheckAndRecord(d.Prepare(ctx, r, models.CategoryStreetLighting, true), Thresholds{})
	assert.True(t, dup)
	assert.Equal(t, KindText, kind)
}

func TestCheckAndRecordConcurrentFirstAcceptance(t *testing.T) {
	hasher := newFakeHasher(map[string]imagehash.Hash{"https://img/same.jpg": 7})
	d := NewDetector(hasher)
	ctx := context.Background()
	r := models.Report{Description: "Fallen tree", ImageURL: "https://img/same.jpg", Latitude: ptr(3), Longitude: ptr(4)}

	const n = 64
	var accepted int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			fp := d.Prepare(ctx, r, models.CategoryParks, true)
			if _, dup := d.CheckAndRecord(fp, Thresholds{LocationMeters: 2}); !dup {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), accepted)
	assert.Equal(t, Stats{TextKeys: 1, ImageURLs: 1, ImageHashes: 1, Locations: 1}, d.Stats())
}

func TestIsDuplicateTextConcurrent(t *testing.T) {
	d := NewDetector(newFakeHasher(nil))

	const n = 64
	var firsts int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.IsDuplicateText("u", "same words", "Electricity", true) {
				atomic.AddInt32(&firsts, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), firsts)
}
