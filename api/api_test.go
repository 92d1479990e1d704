package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/tck-bridge/analysis"
	"github.com/wippyai/tck-bridge/call"
	"github.com/wippyai/tck-bridge/errors"
	"github.com/wippyai/tck-bridge/invoke"
	"github.com/wippyai/tck-bridge/native"
	"github.com/wippyai/tck-bridge/observability"
	"github.com/wippyai/tck-bridge/report"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const sysdecl = "system:s\nprocess:P\nlocation:P:l0{initial:}\n"

// fakeInvoker answers every call with the same status. A completed call
// returns the model file's contents so tests can see what reached the worker.
type fakeInvoker struct {
	mu     sync.Mutex
	status invoke.Status
	calls  []*call.Descriptor
}

func (f *fakeInvoker) Invoke(_ context.Context, d *call.Descriptor, _ ...invoke.CallOption) (*invoke.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	status := f.status
	f.mu.Unlock()

	out := &invoke.Outcome{ID: uuid.New(), Symbol: d.Symbol(), Duration: 3 * time.Millisecond}
	if status == "" || status == invoke.StatusCompleted {
		model, _ := os.ReadFile(string(d.Args()[0].Text))
		out.Status = invoke.StatusCompleted
		out.Output = []byte("REACHABLE true\nVISITED_STATES 3\n")
		out.Value = native.Value{Type: native.Text, Str: "model:" + string(model)}
		return out, nil
	}
	out.Status = status
	out.Err = errors.New(errors.PhaseSpawn, errors.KindCrashed).Detail("worker %s", status).Build()
	return out, out.Err
}

func (f *fakeInvoker) last() *call.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func newTestServer(t *testing.T, status invoke.Status, opts ...Option) (*gin.Engine, *fakeInvoker) {
	t.Helper()
	cat, err := analysis.Default()
	require.NoError(t, err)
	iv := &fakeInvoker{status: status}
	svc := analysis.NewService(cat, iv, analysis.WithScratchDir(t.TempDir()))
	return New(svc, opts...).Router(), iv
}

func do(router http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), "body %s", w.Body.String())
	return m
}

func TestHealth(t *testing.T) {
	router, _ := newTestServer(t, "")
	w := do(router, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestSyntaxCheck_PlainText(t *testing.T) {
	router, iv := newTestServer(t, "")
	w := do(router, http.MethodPut, "/tck_syntax/check", "text/plain", sysdecl)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "model:"+sysdecl, body["result"])
	assert.Equal(t, "REACHABLE true\nVISITED_STATES 3\n", body["stats"])
	assert.Equal(t, body["id"], w.Header().Get(invocationHeader))

	d := iv.last()
	require.NotNil(t, d)
	assert.Equal(t, "tck_syntax_check_syntax", d.Symbol())
	assert.Equal(t, "free_string", d.Release())
	_, err := os.Stat(string(d.Args()[0].Text))
	assert.True(t, os.IsNotExist(err), "model file should be removed after the request")
}

func TestSyntaxToDot_JSONString(t *testing.T) {
	router, _ := newTestServer(t, "")
	encoded, _ := json.Marshal(sysdecl)
	w := do(router, http.MethodPut, "/tck_syntax/to_dot", "application/json", string(encoded))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "model:"+sysdecl, decode(t, w)["dot"])
}

func TestSyntax_EmptyBody(t *testing.T) {
	router, iv := newTestServer(t, "")
	for _, path := range []string{"/tck_syntax/check", "/tck_syntax/to_dot", "/tck_syntax/to_json"} {
		w := do(router, http.MethodPut, path, "text/plain", "  \n")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, path)
		assert.Equal(t, "malformed_request", decode(t, w)["status"], path)
	}
	assert.Nil(t, iv.last(), "rejected requests must not reach the invoker")
}

func TestReach(t *testing.T) {
	router, iv := newTestServer(t, "")
	body := `{"sysdecl": ` + mustJSON(sysdecl) + `, "labels": ["green", "red"], "algorithm": 1,
		"search_order": "dfs", "certificate": 0, "block_size": null}`
	w := do(router, http.MethodPut, "/tck_reach", "application/json", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "model:"+sysdecl, decode(t, w)["certificate"])

	args := iv.last().Args()
	require.Len(t, args, 7)
	assert.Equal(t, "green,red", string(args[1].Text))
	assert.Equal(t, int32(1), args[2].Int)
	assert.Equal(t, "dfs", string(args[3].Text))
	assert.Equal(t, int32(0), args[5].Int)
}

func TestOperation_RequestErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"empty body", "/tck_reach", "", http.StatusUnprocessableEntity},
		{"not an object", "/tck_reach", `[1, 2]`, http.StatusUnprocessableEntity},
		{"trailing data", "/tck_liveness", `{} {}`, http.StatusUnprocessableEntity},
		{"empty model", "/tck_reach", `{"sysdecl": "", "algorithm": 0, "search_order": "bfs", "certificate": 0}`, http.StatusUnprocessableEntity},
		{"missing required", "/tck_compare", `{"first_sysdecl": "a", "second_sysdecl": "b"}`, http.StatusUnprocessableEntity},
		{"overflow", "/tck_simulate/randomized", `{"sysdecl": "a", "nsteps": 9999999999}`, http.StatusUnprocessableEntity},
		{"unknown parameter", "/tck_simulate/one_step", `{"sysdecl": "a", "seed": 4}`, http.StatusUnprocessableEntity},
		{"unknown operation", "/v1/operations/prove", `{"sysdecl": "a"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, iv := newTestServer(t, "")
			w := do(router, http.MethodPut, tt.path, "application/json", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, decode(t, w), "error")
			assert.Nil(t, iv.last())
		})
	}
}

func TestOperation_FailureStatus(t *testing.T) {
	tests := []struct {
		status invoke.Status
		code   int
	}{
		{invoke.StatusCrashed, http.StatusBadGateway},
		{invoke.StatusResultParse, http.StatusBadGateway},
		{invoke.StatusTimedOut, http.StatusGatewayTimeout},
		{invoke.StatusLibraryLoad, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			router, _ := newTestServer(t, tt.status)
			w := do(router, http.MethodPut, "/tck_simulate/one_step", "application/json", `{"sysdecl": "a"}`)

			assert.Equal(t, tt.code, w.Code)
			body := decode(t, w)
			assert.Equal(t, string(tt.status), body["status"])
			assert.Equal(t, tt.status.Retryable(), body["retryable"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestNamedOperation(t *testing.T) {
	router, iv := newTestServer(t, "")
	w := do(router, http.MethodPut, "/v1/operations/syntax.create_synchronized_product", "application/json",
		`{"sysdecl": "a", "process_name": "P"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w), "product")
	assert.Equal(t, "tck_syntax_create_synchronized_product", iv.last().Symbol())
}

func TestListOperations(t *testing.T) {
	router, _ := newTestServer(t, "")
	w := do(router, http.MethodGet, "/v1/operations", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Release    string `json:"release"`
		Operations []struct {
			Name    string `json:"name"`
			Symbol  string `json:"symbol"`
			Returns string `json:"returns"`
			Path    string `json:"path"`
			Params  []struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"params"`
		} `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "free_string", body.Release)
	require.Len(t, body.Operations, 9)
	assert.Equal(t, "syntax.check", body.Operations[0].Name)
	assert.Equal(t, "text", body.Operations[0].Returns)
	assert.Equal(t, "/v1/operations/syntax.check", body.Operations[0].Path)
	assert.Equal(t, "sysdecl", body.Operations[0].Params[0].Name)

	w = do(router, http.MethodGet, "/v1/operations/reach", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tck_reach", decode(t, w)["symbol"])

	w = do(router, http.MethodGet, "/v1/operations/prove", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeCaller struct {
	symbol string
	args   []any
	opts   int
}

func (f *fakeCaller) Call(_ context.Context, symbol string, params []string, returns string, args []any, opts ...invoke.CallOption) (*invoke.Outcome, error) {
	f.symbol, f.args, f.opts = symbol, args, len(opts)
	d, err := call.New(symbol, params, returns, args)
	if err != nil {
		out := invoke.Rejected(symbol, err)
		return out, err
	}
	out := &invoke.Outcome{ID: uuid.New(), Symbol: d.Symbol(), Status: invoke.StatusCompleted}
	out.Value = native.Value{Type: native.Double, Float: 0.5}
	out.Out = []report.OutValue{{Index: 1, Value: 4}}
	out.Output = []byte("called\n")
	return out, nil
}

func TestRawInvoke(t *testing.T) {
	caller := &fakeCaller{}
	router, _ := newTestServer(t, "", WithRawInvoke(caller))

	w := do(router, http.MethodPost, "/v1/invoke", "application/json",
		`{"symbol": "frexp", "params": ["double", "out_int32_ptr"], "returns": "double", "args": [8, null], "timeout_ms": 500}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, 0.5, body["value"])
	assert.Equal(t, map[string]any{"1": float64(4)}, body["out"])
	assert.Equal(t, "called\n", body["output"])
	assert.Equal(t, 1, caller.opts)

	w = do(router, http.MethodPost, "/v1/invoke", "application/json",
		`{"symbol": "abs", "params": ["long"], "returns": "int32", "args": [1]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "unknown_type", decode(t, w)["status"])

	w = do(router, http.MethodPost, "/v1/invoke", "application/json", `{"params": []}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRawInvoke_DisabledByDefault(t *testing.T) {
	router, _ := newTestServer(t, "")
	w := do(router, http.MethodPost, "/v1/invoke", "application/json", `{"symbol": "abs", "returns": "int32"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.Finished("tck_reach", invoke.StatusCompleted, time.Second)

	router, _ := newTestServer(t, "", WithGatherer(reg))
	w := do(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tckbridge_invocations_total{status="completed",symbol="tck_reach"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodOptions, "/tck_reach", nil)
	req.Header.Set("Origin", "http://ui.tchecker.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}

func TestCORS_SimpleRequest(t *testing.T) {
	router, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPut, "/tck_syntax/check", strings.NewReader(sysdecl))
	req.Header.Set("Origin", "http://ui.tchecker.test")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), invocationHeader)
}

func TestRequestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cat, err := analysis.Default()
	require.NoError(t, err)
	svc := analysis.NewService(cat, &fakeInvoker{}, analysis.WithScratchDir(t.TempDir()))
	router := New(svc, WithLogger(zap.New(core))).Router()

	w := do(router, http.MethodPut, "/tck_syntax/check", "text/plain", sysdecl)
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(invocationHeader)
	require.NotEmpty(t, id)

	entries := logs.FilterField(zap.String("id", id)).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, http.MethodPut, fields["method"])

	do(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, 1, logs.Len(), "health checks are not logged")
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	cat, err := analysis.Default()
	require.NoError(t, err)
	svc := analysis.NewService(cat, &fakeInvoker{}, analysis.WithScratchDir(t.TempDir()))
	router := New(svc, WithLogger(zap.New(core))).Router()
	router.GET("/boom", func(*gin.Context) { panic("native handler bug") })

	w := do(router, http.MethodGet, "/boom", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.GreaterOrEqual(t, logs.Len(), 1)

	w = do(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code, "server keeps serving after a panic")
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
