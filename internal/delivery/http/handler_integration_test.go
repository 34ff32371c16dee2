package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"github.com/smartprocure/backend/config"
	"github.com/smartprocure/backend/internal/domain"
	"github.com/smartprocure/backend/internal/infrastructure/storage"
	"github.com/smartprocure/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"https://app.*", "http://localhost:3000"},
		},
		Cache: config.CacheConfig{
			Type: "memory",
		},
	}
}

// setupTestRouter creates a test router without a discovery service
func setupTestRouter() *gin.Engine {
	return SetupRouter(testConfig(), NewHandler(nil, nil, nil), nil)
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return response
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		w := doRequest(setupTestRouter(), "GET", "/health", "")

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decodeBody(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "smartprocure-backend" {
			t.Errorf("service = %v, want smartprocure-backend", response["service"])
		}
		version, ok := response["version"].(string)
		if !ok || strings.TrimSpace(version) == "" {
			t.Errorf("version = %v, want non-empty string", response["version"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter()

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			w := doRequest(router, method, "/health", "")
			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

// --- Mock implementations of the handler dependencies ---

type mockDiscoveryRunner struct {
	result *usecase.DiscoveryResult
	err    error
	doc    map[string]any
}

func (m *mockDiscoveryRunner) Run(ctx context.Context, doc map[string]any) (*usecase.DiscoveryResult, error) {
	m.doc = doc
	return m.result, m.err
}

type mockShortlistReader struct {
	path     string
	artifact *domain.ShortlistArtifact
	err      error
}

func (m *mockShortlistReader) Latest(ctx context.Context) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.path, nil
}

func (m *mockShortlistReader) Load(ctx context.Context, path string) (*domain.ShortlistArtifact, error) {
	return m.artifact, nil
}

func TestDiscoveryEndpoint(t *testing.T) {
	t.Run("returns 503 when the service is not configured", func(t *testing.T) {
		w := doRequest(setupTestRouter(), "POST", "/api/v1/discovery", `{"product_type":"bolts"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("rejects a non-object body", func(t *testing.T) {
		runner := &mockDiscoveryRunner{}
		router := SetupRouter(testConfig(), NewHandler(runner, nil, nil), nil)

		w := doRequest(router, "POST", "/api/v1/discovery", `["bolts"]`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if runner.doc != nil {
			t.Errorf("discovery should not run for an invalid body")
		}
	})

	t.Run("passes the document through and returns the result", func(t *testing.T) {
		runner := &mockDiscoveryRunner{result: &usecase.DiscoveryResult{
			Requirements: &domain.RequirementSpec{ProductType: "industrial bolts"},
			ArtifactPath: "data/shortlist_x.json",
		}}
		router := SetupRouter(testConfig(), NewHandler(runner, nil, nil), nil)

		w := doRequest(router, "POST", "/api/v1/discovery", `{"product_type":"industrial bolts","quantity":"500 pcs"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		if runner.doc["quantity"] != "500 pcs" {
			t.Errorf("doc[quantity] = %v, want 500 pcs", runner.doc["quantity"])
		}
		response := decodeBody(t, w)
		if response["artifact_path"] != "data/shortlist_x.json" {
			t.Errorf("artifact_path = %v, want data/shortlist_x.json", response["artifact_path"])
		}
	})

	errorCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "validation error",
			err:        &domain.StageError{Stage: domain.StageNormalize, Err: fmt.Errorf("%w: product_type is required", domain.ErrValidation)},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "discovery error",
			err:        &domain.StageError{Stage: domain.StageFetch, QueriesAttempted: 4, Err: domain.ErrDiscovery},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "persistence error",
			err:        &domain.StageError{Stage: domain.StagePersist, Err: fmt.Errorf("%w: disk full", domain.ErrPersistence)},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			router := SetupRouter(testConfig(), NewHandler(&mockDiscoveryRunner{err: tc.err}, nil, nil), nil)

			w := doRequest(router, "POST", "/api/v1/discovery", `{"product_type":"bolts"}`)
			if w.Code != tc.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tc.wantStatus)
			}
			response := decodeBody(t, w)
			if _, ok := response["error"].(string); !ok {
				t.Errorf("error field missing: %v", response)
			}
		})
	}

	t.Run("stage details are reported", func(t *testing.T) {
		err := &domain.StageError{Stage: domain.StageFetch, QueriesAttempted: 4, ListingsFetched: 0, Err: domain.ErrDiscovery}
		router := SetupRouter(testConfig(), NewHandler(&mockDiscoveryRunner{err: err}, nil, nil), nil)

		response := decodeBody(t, doRequest(router, "POST", "/api/v1/discovery", `{"product_type":"bolts"}`))
		if response["stage"] != domain.StageFetch {
			t.Errorf("stage = %v, want %s", response["stage"], domain.StageFetch)
		}
		if response["queries_attempted"] != float64(4) {
			t.Errorf("queries_attempted = %v, want 4", response["queries_attempted"])
		}
	})
}

func TestLatestShortlistEndpoint(t *testing.T) {
	t.Run("returns the artifact", func(t *testing.T) {
		reader := &mockShortlistReader{
			path:     "data/shortlist_x.json",
			artifact: &domain.ShortlistArtifact{Name: "shortlist_x.json", TotalSuppliers: 0, Suppliers: []domain.ScoredSupplier{}},
		}
		router := SetupRouter(testConfig(), NewHandler(nil, reader, nil), nil)

		w := doRequest(router, "GET", "/api/v1/shortlists/latest", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if decodeBody(t, w)["name"] != "shortlist_x.json" {
			t.Errorf("unexpected artifact: %s", w.Body.String())
		}
	})

	t.Run("returns 404 when nothing was saved", func(t *testing.T) {
		router := SetupRouter(testConfig(), NewHandler(nil, &mockShortlistReader{err: domain.ErrArtifactNotFound}, nil), nil)

		w := doRequest(router, "GET", "/api/v1/shortlists/latest", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("returns 500 on storage failure", func(t *testing.T) {
		router := SetupRouter(testConfig(), NewHandler(nil, &mockShortlistReader{err: errors.New("permission denied")}, nil), nil)

		w := doRequest(router, "GET", "/api/v1/shortlists/latest", "")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for the web app", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://app.smartprocure.in")
		w := httptest.NewRecorder()

		setupTestRouter().ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.smartprocure.in" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://app.smartprocure.in")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	router := setupTestRouter()
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := doRequest(router, "GET", "/panic", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// TestAPIVersioning tests that API v1 routes are correctly versioned
func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter()

	for _, path := range []string{"/api/discovery", "/discovery", "/api/v2/discovery"} {
		w := doRequest(router, "POST", path, `{}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("Path %s: Status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}

// --- End-to-end with the real pipeline ---

type stubSource struct {
	listings []domain.RawListing
}

func (s *stubSource) Search(ctx context.Context, query string) ([]domain.RawListing, error) {
	return s.listings, nil
}

func TestDiscoveryWithService(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writer := storage.NewShortlistWriter(fsys, "data", nil)
	source := &stubSource{listings: []domain.RawListing{
		{"name": "Steelcraft Fasteners", "phone": "98765 00001", "rating": "4.6", "description": "stainless steel industrial bolts"},
		{"name": "Metro Hardware", "email": "metro@example.com"},
		{"name": "No Contact Traders"},
	}}
	service := usecase.NewDiscoveryService(source, nil, writer, usecase.DiscoveryServiceConfig{
		Fetcher: usecase.FetcherConfig{MaxRetries: -1},
	}, nil)
	router := SetupRouter(testConfig(), NewHandler(service, writer, nil), nil)

	t.Run("runs discovery and persists the shortlist", func(t *testing.T) {
		w := doRequest(router, "POST", "/api/v1/discovery", `{"product_type":"industrial bolts","specifications":{"material":"stainless steel"}}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}

		var result usecase.DiscoveryResult
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatalf("Failed to unmarshal result: %v", err)
		}
		if result.Shortlist.Len() != 2 {
			t.Fatalf("suppliers = %d, want 2", result.Shortlist.Len())
		}
		if result.Shortlist.Suppliers[0].Name != "Steelcraft Fasteners" {
			t.Errorf("top supplier = %s, want Steelcraft Fasteners", result.Shortlist.Suppliers[0].Name)
		}
		if exists, _ := afero.Exists(fsys, result.ArtifactPath); !exists {
			t.Errorf("artifact %s was not written", result.ArtifactPath)
		}

		latest := doRequest(router, "GET", "/api/v1/shortlists/latest", "")
		if latest.Code != http.StatusOK {
			t.Fatalf("latest Status = %d, want %d", latest.Code, http.StatusOK)
		}
		if got := decodeBody(t, latest)["total_suppliers"]; got != float64(2) {
			t.Errorf("total_suppliers = %v, want 2", got)
		}
	})

	t.Run("missing product type is unprocessable", func(t *testing.T) {
		w := doRequest(router, "POST", "/api/v1/discovery", `{"quantity":"10 kg"}`)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
		}
	})
}
