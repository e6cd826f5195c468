package ui

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corrcov/app"
	"corrcov/internal/config"
)

func testServer() *Server {
	cfg := config.CorrectionConfig{
		PriorW:      0.2,
		NRep:        200,
		PP0Min:      0.001,
		Accuracy:    0.005,
		MaxIter:     20,
		Workers:     2,
		CIRepeats:   100,
		CILevel:     0.95,
		DefaultSeed: 1,
	}
	service := app.NewCorrectionService(cfg, nil, nil)
	return NewServer(service, nil)
}

func postJSON(t *testing.T, server *Server, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func testRegionBody() map[string]interface{} {
	return map[string]interface{}{
		"variants": []map[string]interface{}{
			{"id": "rs1", "z": 4.2, "maf": 0.3},
			{"id": "rs2", "z": 1.8, "maf": 0.3},
			{"id": "rs3", "z": 0.5, "maf": 0.3},
		},
		"n0": 5000,
		"n1": 5000,
		"ld": [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPosteriorsEndpoint(t *testing.T) {
	server := testServer()

	rec := postJSON(t, server, "/api/posteriors", map[string]interface{}{
		"region": testRegionBody(),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		PP []float64 `json:"pp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.PP, 3)

	sum := 0.0
	for _, p := range resp.PP {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPosteriorsEndpointRejectsMalformedBody(t *testing.T) {
	server := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/posteriors", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCredibleSetEndpoint(t *testing.T) {
	server := testServer()

	rec := postJSON(t, server, "/api/credible-set", map[string]interface{}{
		"region":    testRegionBody(),
		"threshold": 0.9,
		"causal_id": "rs1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Size            int     `json:"size"`
		ClaimedCoverage float64 `json:"claimed_coverage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.Size, 0)
	assert.Greater(t, resp.ClaimedCoverage, 0.9)
}

func TestCorrectedCoverageEndpoint(t *testing.T) {
	server := testServer()

	rec := postJSON(t, server, "/api/corrections/coverage", map[string]interface{}{
		"region":    testRegionBody(),
		"threshold": 0.9,
		"nrep":      100,
		"seed":      42,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		CorrectedCoverage float64 `json:"corrected_coverage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.GreaterOrEqual(t, resp.CorrectedCoverage, 0.0)
	assert.LessOrEqual(t, resp.CorrectedCoverage, 1.0)
}

func TestCorrectedCoverageEndpointRejectsBadLD(t *testing.T) {
	server := testServer()
	region := testRegionBody()
	region["ld"] = [][]float64{{1, 0.9}, {0.1, 1}} // asymmetric

	rec := postJSON(t, server, "/api/corrections/coverage", map[string]interface{}{
		"region":    region,
		"threshold": 0.9,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsEndpointsWithoutPersistence(t *testing.T) {
	server := testServer()

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/runs/some-id", nil)
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
