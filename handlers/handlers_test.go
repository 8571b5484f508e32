package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"report-intake-pipeline/dedup"
	"report-intake-pipeline/models"
	"report-intake-pipeline/rules"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	got []models.Report
}

func (f *fakeProcessor) Process(ctx context.Context, r models.Report) models.ClassificationResult {
	f.got = append(f.got, r)
	if r.Description == "" {
		return models.ClassificationResult{
			ReportID: r.ReportID, Status: models.StatusRejected,
			Category: models.CategoryOther, Department: models.CategoryOther,
			Reason: "Description is required", ReasonCode: models.ReasonDescriptionRequired,
		}
	}
	return models.ClassificationResult{
		ReportID: r.ReportID, Accept: true, Status: models.StatusAccepted,
		Category: models.CategoryStreetLighting, Department: models.CategoryStreetLighting,
		Urgency: models.UrgencyMedium, Priority: models.PriorityMedium,
		Reason: "Report accepted successfully", ReasonCode: models.ReasonAccepted,
	}
}

type fakeStats struct{}

func (fakeStats) Stats() dedup.Stats { return dedup.Stats{ImageHashes: 2} }

type fakeCounter struct {
	counts map[models.Status]int
	err    error
}

func (f fakeCounter) CountByStatus(context.Context) (map[models.Status]int, error) {
	return f.counts, f.err
}

func newRouter(t *testing.T, proc Processor, counter DecisionCounter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	table, err := rules.Default()
	require.NoError(t, err)

	router := gin.New()
	NewHandlers(proc, table, fakeStats{}, counter).RegisterRoutes(router)
	return router
}

func TestSubmitReport(t *testing.T) {
	testCases := []struct {
		name   string
		path   string
		body   string
		status int
		accept bool
	}{
		{"accepted on api route", "/api/v1/reports", `{"report_id":"r1","description":"streetlight not working","latitude":12.5,"longitude":77.1}`, http.StatusOK, true},
		{"rejected is still 200", "/submit", `{"report_id":"r2","description":"","image_url":null}`, http.StatusOK, false},
		{"malformed json", "/submit", `{"description":`, http.StatusBadRequest, false},
		{"wrong type", "/api/v1/reports", `{"description": 42}`, http.StatusBadRequest, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &fakeProcessor{}
			router := newRouter(t, proc, nil)

			req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.status, w.Code)
			if tc.status != http.StatusOK {
				assert.Empty(t, proc.got)
				assert.Contains(t, w.Body.String(), "Invalid request body")
				return
			}

			var res models.ClassificationResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, tc.accept, res.Accept)
			require.Len(t, proc.got, 1)
			assert.Equal(t, res.ReportID, proc.got[0].ReportID)
		})
	}
}

func TestSubmitReportBindsCoordinates(t *testing.T) {
	proc := &fakeProcessor{}
	router := newRouter(t, proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewBufferString(`{"description":"x","latitude":0,"longitude":-3.5}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, proc.got, 1)
	require.True(t, proc.got[0].HasLocation())
	assert.Equal(t, 0.0, *proc.got[0].Latitude)
	assert.Equal(t, -3.5, *proc.got[0].Longitude)
}

func TestHealthCheck(t *testing.T) {
	router := newRouter(t, &fakeProcessor{}, nil)

	for _, path := range []string{"/", "/api/v1/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, w.Code, path)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ML API running", body["status"])
	}
}

func TestGetRules(t *testing.T) {
	router := newRouter(t, &fakeProcessor{}, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Version    string         `json:"version"`
		Categories []categoryInfo `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Version)
	require.Len(t, body.Categories, len(models.Categories))
	assert.Equal(t, models.CategoryRoadTraffic, body.Categories[0].Name)
}

func TestGetStats(t *testing.T) {
	t.Run("without database", func(t *testing.T) {
		router := newRouter(t, &fakeProcessor{}, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"image_hashes":2`)
		assert.NotContains(t, w.Body.String(), "decisions")
	})

	t.Run("with database", func(t *testing.T) {
		counter := fakeCounter{counts: map[models.Status]int{models.StatusAccepted: 4}}
		router := newRouter(t, &fakeProcessor{}, counter)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"accepted":4`)
	})

	t.Run("database error", func(t *testing.T) {
		router := newRouter(t, &fakeProcessor{}, fakeCounter{err: errors.New("down")})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
