package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/radar-merge-service/internal/adapter/http"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockSubmitter struct {
	keys   []string
	values []string
	err    error
}

func (m *mockSubmitter) Submit(_ context.Context, key, value []byte) error {
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, string(key))
	m.values = append(m.values, string(value))
	return nil
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", nil, slog.Default(), &mockReadiness{err: readyErr})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("not ready yet"))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestReadyzRequiresEveryChecker(t *testing.T) {
	srv := httpadapter.NewServer(":0", nil, slog.Default(),
		&mockReadiness{},
		&mockReadiness{err: errors.New("ledger: database is locked")},
	)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "ledger")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSubmitJob(t *testing.T) {
	const job = `{"id":"job-1","archives":["CASET_201706141400_Surveillance_vol.tar.gz"]}`

	tests := []struct {
		name      string
		body      string
		submitErr error
		wantCode  int
		wantKeys  []string
	}{
		{name: "queued", body: job, wantCode: http.StatusAccepted, wantKeys: []string{"job-1"}},
		{name: "invalid json", body: "{", wantCode: http.StatusBadRequest},
		{name: "missing id", body: `{"archives":["a.tar.gz"]}`, wantCode: http.StatusBadRequest},
		{name: "cycle without output", body: `{"id":"j","mode":"cycle","archives":["a.tar.gz"]}`, wantCode: http.StatusBadRequest},
		{name: "broker down", body: job, submitErr: errors.New("dial tcp: connection refused"), wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &mockSubmitter{err: tt.submitErr}
			srv := httpadapter.NewServer(":0", sub, slog.Default())
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tt.body))

			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantKeys, sub.keys)
			if tt.wantCode == http.StatusAccepted {
				assert.Equal(t, []string{job}, sub.values)
			}
		})
	}
}

func TestSubmitJobDisabledWithoutSubmitter(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{}`))

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
