package callservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/optilead/internal/metrics"
)

// Summary is a post-call summary posted by the calling service.
type Summary struct {
	CallSID  string          `json:"call_sid"`
	Summary  string          `json:"summary"`
	Metadata json.RawMessage `json:"metadata"`
}

// MarshalJSON always emits the three fields; absent metadata is null.
func (s Summary) MarshalJSON() ([]byte, error) {
	meta := s.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage("null")
	}
	return json.Marshal(struct {
		CallSID  string          `json:"call_sid"`
		Summary  string          `json:"summary"`
		Metadata json.RawMessage `json:"metadata"`
	}{s.CallSID, s.Summary, meta})
}

// Forwarder posts summaries to a fixed endpoint.
type Forwarder struct {
	url        string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewForwarder creates a Forwarder posting to url.
func NewForwarder(url string, m *metrics.Metrics) *Forwarder {
	return &Forwarder{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		metrics:    m,
	}
}

// Forward posts s as JSON and returns the endpoint's JSON reply. A reply
// that is not JSON yields a *NonJSONError.
func (f *Forwarder) Forward(ctx context.Context, s Summary) (out json.RawMessage, err error) {
	start := time.Now()
	defer func() { f.metrics.ObserveUpstream(metrics.UpstreamSummary, start, err) }()

	body, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forwarding summary: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, &NonJSONError{StatusCode: resp.StatusCode, Raw: string(raw)}
	}
	return raw, nil
}
