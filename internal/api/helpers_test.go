package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/optilead/internal/callservice"
	"github.com/kalambet/optilead/internal/events"
	"github.com/kalambet/optilead/internal/leadscoring"
	"github.com/kalambet/optilead/internal/metrics"
	"github.com/kalambet/optilead/internal/prompts"
	"github.com/kalambet/optilead/internal/scripts"
	"github.com/kalambet/optilead/internal/storage"
)

// --- fakes ---

type fakeLLM struct {
	mu     sync.Mutex
	raw    json.RawMessage
	err    error
	model  string
	prompt string
}

func (f *fakeLLM) Generate(_ context.Context, model, prompt string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model, f.prompt = model, prompt
	return f.raw, f.err
}

type fakeCalls struct {
	mu     sync.Mutex
	format string
	resp   callservice.Response
	err    error
	result callservice.Result
	got    callservice.Request
	toDial string
}

func (f *fakeCalls) Format() string { return f.format }

func (f *fakeCalls) StartCall(_ context.Context, req callservice.Request) (callservice.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = req
	return f.resp, f.err
}

func (f *fakeCalls) TriggerOutboundCall(_ context.Context, toPhone string) callservice.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toDial = toPhone
	return f.result
}

type fakeSummaries struct {
	out json.RawMessage
	err error
	got callservice.Summary
}

func (f *fakeSummaries) Forward(_ context.Context, s callservice.Summary) (json.RawMessage, error) {
	f.got = s
	return f.out, f.err
}

type fakeScorer struct {
	out leadscoring.Output
	err error
	got leadscoring.Input
}

func (f *fakeScorer) Score(_ context.Context, in leadscoring.Input) (leadscoring.Output, error) {
	f.got = in
	return f.out, f.err
}

type failingPrompts struct{ err error }

func (f failingPrompts) ListSystemPrompts(context.Context) ([]storage.SystemPrompt, error) {
	return nil, f.err
}

func (f failingPrompts) CreateSystemPrompt(context.Context, string, string) (storage.SystemPrompt, error) {
	return storage.SystemPrompt{}, f.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// newTestDeps returns Deps wired with fakes and an in-memory store. The
// default prompt file does not exist, so the built-in prompt is served.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	logger := discardLogger()
	m := metrics.New()
	return Deps{
		LLM:           &fakeLLM{raw: json.RawMessage(`{"response":"hi"}`)},
		Model:         "openhermes",
		Scripts:       scripts.NewStore(),
		Prompts:       openTestStore(t),
		DefaultPrompt: prompts.NewDefaultLoader(filepath.Join(t.TempDir(), "missing.txt"), logger),
		Calls:         &fakeCalls{format: callservice.FormatCamel},
		Summaries:     &fakeSummaries{out: json.RawMessage(`{"ok":true}`)},
		Scorer:        &fakeScorer{},
		Hub:           events.NewHub(m, logger),
		Metrics:       m,
		Logger:        logger,
	}
}

// do sends a request through a fresh router and returns the recorder.
func do(t *testing.T, deps Deps, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	return doHandler(t, NewRouter(deps), method, path, body, headers...)
}

func doHandler(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return m
}
