package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solarscan/scanbridge/internal/config"
	"github.com/solarscan/scanbridge/internal/invoker"
)

type fakeRunner struct {
	mu          sync.Mutex
	calls       int
	lastPayload []byte
	res         *invoker.Result
	err         error
}

func (f *fakeRunner) Invoke(_ context.Context, payload []byte) (*invoker.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPayload = append([]byte(nil), payload...)
	return f.res, f.err
}

func (f *fakeRunner) invocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, MaxBodyMiB: 1},
		Worker: config.WorkerConfig{Executable: "python3", Script: "main.py", TimeoutSeconds: 120},
	}
}

func newTestServer(runner Runner) *Server {
	return NewServer(runner, testConfig(), nil)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, true, body["ok"])
	require.NotEmpty(t, body["msg"])
}

func TestServer_Scan_Succeeds(t *testing.T) {
	t.Parallel()

	document := `{"ok":true,"results":[{"id":"SUB_BTF","qnt_aprox_placa":42}]}`
	runner := &fakeRunner{res: &invoker.Result{Document: json.RawMessage(document), Diagnostics: "loaded model"}}
	server := newTestServer(runner)

	req := httptest.NewRequest(http.MethodPost, "/scan",
		bytes.NewBufferString(`[{"id":"SUB_BTF","lat":-23.5,"lon":-46.6}]`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// The worker document is relayed into data without re-encoding.
	require.Contains(t, rec.Body.String(), document)
	var body struct {
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.OK)
	require.JSONEq(t, document, string(body.Data))
}

func TestServer_Scan_SingleObjectForwardedAsBatch(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{res: &invoker.Result{Document: json.RawMessage(`{"ok":true}`)}}
	server := newTestServer(runner)

	req := httptest.NewRequest(http.MethodPost, "/scan",
		bytes.NewBufferString(`{"id_subestacao":"SUB_X","latitude":-22.9,"longitude":-43.3}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, runner.invocations())

	var forwarded []map[string]any
	require.NoError(t, json.Unmarshal(runner.lastPayload, &forwarded))
	require.Len(t, forwarded, 1)
	require.Equal(t, "SUB_X", forwarded[0]["id"])
	require.InDelta(t, -22.9, forwarded[0]["lat"].(float64), 1e-9)
	require.InDelta(t, 300, forwarded[0]["radius_meters"].(float64), 1e-9)
}

func TestServer_Scan_EmptyBatchRejectedWithoutInvocation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	server := newTestServer(runner)

	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBufferString(`[]`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "empty batch")
	require.Zero(t, runner.invocations())
}

func TestServer_Scan_InvalidCoordinatesRejectedWithoutInvocation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	server := newTestServer(runner)

	req := httptest.NewRequest(http.MethodPost, "/scan",
		bytes.NewBufferString(`[{"id":"good","lat":1,"lon":2},{"id":"broken","lat":"north","lon":2}]`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "broken")
	require.Zero(t, runner.invocations())
}

func TestServer_Scan_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{})
	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBufferString(`{not json`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON")
}

func TestServer_Scan_BodyTooLarge(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{})
	huge := `{"id":"big","lat":1,"lon":2,"blob":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBufferString(huge))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "request body too large")
}

func TestServer_Scan_ClassifiedInvocationFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: &invoker.Error{
		Kind:        invoker.KindInvalidOutput,
		Message:     "Invalid structured output",
		Output:      "garbage from worker",
		Diagnostics: "Traceback (most recent call last): ...",
	}}
	server := newTestServer(runner)

	req := httptest.NewRequest(http.MethodPost, "/scan",
		bytes.NewBufferString(`[{"id":"a","lat":1,"lon":2}]`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body struct {
		OK      bool           `json:"ok"`
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.OK)
	require.Equal(t, "Invalid structured output", body.Error)
	require.Equal(t, "garbage from worker", body.Details["stdout"])
	require.Contains(t, body.Details["stderr"], "Traceback")
}

func TestServer_Scan_WorkerReportedFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: &invoker.Error{
		Kind:     invoker.KindWorker,
		Message:  "boom",
		Document: json.RawMessage(`{"ok":false,"error":"boom"}`),
	}}
	server := newTestServer(runner)

	req := httptest.NewRequest(http.MethodPost, "/scan",
		bytes.NewBufferString(`[{"id":"a","lat":1,"lon":2}]`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"error":"boom"`)
}

func TestServer_Scan_UnclassifiedFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("unexpected")}
	server := newTestServer(runner)

	req := httptest.NewRequest(http.MethodPost, "/scan",
		bytes.NewBufferString(`[{"id":"a","lat":1,"lon":2}]`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "unexpected")
}

func TestServer_CORSHeaders(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{})

	req := httptest.NewRequest(http.MethodOptions, "/scan", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RequestIDHeader(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
