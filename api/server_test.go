package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-verify/db/clickhouse"
	"inventory-verify/decision/reconcile"
	"inventory-verify/decision/verify"
	"inventory-verify/pkg/entity"
)

type fakeVerifier struct {
	run *verify.Run
	err error
}

func (f *fakeVerifier) Run(context.Context) (*verify.Run, error) {
	return f.run, f.err
}

type fakeHistory struct {
	runs  []clickhouse.RunRecord
	limit int
}

func (f *fakeHistory) ListRuns(_ context.Context, limit int) ([]clickhouse.RunRecord, error) {
	f.limit = limit
	return f.runs, nil
}

func (f *fakeHistory) GetRun(_ context.Context, id uuid.UUID) (*clickhouse.RunDetail, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return &clickhouse.RunDetail{RunRecord: r}, nil
		}
	}
	return nil, clickhouse.ErrRunNotFound
}

func (f *fakeHistory) Ping(context.Context) error { return nil }

func newTestServer(v Verifier, h RunHistory, cfg *Config) *httptest.Server {
	return httptest.NewServer(NewServer(nil, v, h, cfg, zerolog.Nop()).Handler())
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDerive_Empty(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/v1/derive", `{"snapshot": {}, "flavors": {}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body DeriveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 4, body.Counts[entity.ExtManagementSystem])
	assert.Equal(t, 76, body.Counts[entity.Flavor])
	assert.Equal(t, 0, body.Counts[entity.VM])
	assert.Len(t, body.Counts, len(entity.All()))
}

func TestDerive_UnknownFlavor(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/v1/derive",
		`{"snapshot": {"instances": [{"instance_id": "i-1", "instance_type": "x9.huge"}]}, "flavors": {"t2.micro": 0}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDerive_BadRequest(t *testing.T) {
	srv := newTestServer(nil, nil, nil)
	defer srv.Close()

	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/v1/derive", `{}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/v1/derive", `not json`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/v1/derive", `{"snapshot": {"buckets": []}}`).StatusCode)
}

func TestVerify(t *testing.T) {
	passed := &verify.Run{ID: uuid.New(), Outcome: verify.OutcomePassed}
	mismatch := &reconcile.MismatchError{Mismatches: []reconcile.Row{{Type: entity.VM, Expected: 1, Persisted: 2}}}

	tests := []struct {
		name     string
		verifier Verifier
		status   int
	}{
		{"not configured", nil, http.StatusServiceUnavailable},
		{"passed", &fakeVerifier{run: passed}, http.StatusOK},
		{"mismatch", &fakeVerifier{run: passed, err: mismatch}, http.StatusConflict},
		{"failure", &fakeVerifier{run: passed, err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.verifier, nil, nil)
			defer srv.Close()

			resp := post(t, srv.URL+"/api/v1/verify", "")
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestVerify_MismatchBody(t *testing.T) {
	version := "3.0"
	mismatch := &reconcile.MismatchError{
		Mismatches: []reconcile.Row{{Type: entity.VM, Expected: 1, Persisted: 2}},
		Attributes: []reconcile.AttributeCheck{{Name: "api_version", Actual: &version}},
	}
	srv := newTestServer(&fakeVerifier{run: &verify.Run{ID: uuid.New()}, err: mismatch}, nil, nil)
	defer srv.Close()

	resp := post(t, srv.URL+"/api/v1/verify", "")
	var body VerifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Mismatches, 1)
	assert.Equal(t, entity.VM, body.Mismatches[0].Type)
	require.Len(t, body.AttributeMismatches, 1)
	assert.Equal(t, "api_version", body.AttributeMismatches[0].Name)
	assert.Contains(t, body.Error, "COUNT_MISMATCH")
}

func TestJSONResponse_LogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	s := NewServer(nil, nil, nil, nil, zerolog.New(&logs).Level(zerolog.DebugLevel))

	rec := httptest.NewRecorder()
	s.jsonResponse(rec, http.StatusOK, map[string]float64{"drift": math.Inf(1)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), "failed to encode response")
	assert.Contains(t, logs.String(), "unsupported value")
}

func TestRuns(t *testing.T) {
	id := uuid.New()
	history := &fakeHistory{runs: []clickhouse.RunRecord{{ID: id, Outcome: "passed"}}}
	srv := newTestServer(nil, history, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, history.limit)

	var runs []clickhouse.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)

	for path, status := range map[string]int{
		"/api/v1/runs/" + id.String():         http.StatusOK,
		"/api/v1/runs/" + uuid.New().String(): http.StatusNotFound,
		"/api/v1/runs/not-a-uuid":             http.StatusBadRequest,
		"/api/v1/runs?limit=-1":               http.StatusBadRequest,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}
}

func TestAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "secret"
	srv := newTestServer(nil, &fakeHistory{}, cfg)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/runs", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
