package callservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRequestAliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Request
	}{
		{
			name: "camel",
			body: `{"phoneNumber":"+15550001","prospectName":"Ann","promptId":"p1","voiceId":"v1"}`,
			want: Request{PhoneNumber: "+15550001", ProspectName: "Ann", PromptID: "p1", VoiceID: "v1"},
		},
		{
			name: "snake",
			body: `{"phone_number":"+15550002","name":"Bob","prompt_id":"p2","voice_id":"v2"}`,
			want: Request{PhoneNumber: "+15550002", ProspectName: "Bob", PromptID: "p2", VoiceID: "v2"},
		},
		{
			name: "documentId stands in for promptId",
			body: `{"phoneNumber":"+1","documentId":"doc-9","prompt_id":"ignored"}`,
			want: Request{PhoneNumber: "+1", PromptID: "doc-9"},
		},
		{
			name: "camel wins over snake",
			body: `{"phoneNumber":"+1","phone_number":"+2","promptId":"a","prompt_id":"b"}`,
			want: Request{PhoneNumber: "+1", PromptID: "a"},
		},
		{
			name: "empty camel falls through to snake",
			body: `{"phoneNumber":"","phone_number":"+2"}`,
			want: Request{PhoneNumber: "+2"},
		},
		{
			name: "numbers keep their JSON spelling",
			body: `{"phoneNumber":15551234567,"promptId":42}`,
			want: Request{PhoneNumber: "15551234567", PromptID: "42"},
		},
		{
			name: "falsy values count as absent",
			body: `{"phoneNumber":0,"phone_number":"+3","promptId":false,"documentId":null,"prompt_id":"p3","voiceId":""}`,
			want: Request{PhoneNumber: "+3", PromptID: "p3"},
		},
		{
			name: "string zero is kept",
			body: `{"phoneNumber":"0","promptId":true}`,
			want: Request{PhoneNumber: "0", PromptID: "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Request
			if err := json.Unmarshal([]byte(tt.body), &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRequestRejectsNonScalar(t *testing.T) {
	var got Request
	err := json.Unmarshal([]byte(`{"phoneNumber":{"n":"+1"},"promptId":"p"}`), &got)
	if err == nil || !strings.Contains(err.Error(), "phoneNumber") {
		t.Errorf("err = %v, want error naming phoneNumber", err)
	}
}

func TestValidate(t *testing.T) {
	full := Request{PhoneNumber: "+1", ProspectName: "Ann", PromptID: "p"}

	tests := []struct {
		name    string
		req     Request
		format  string
		wantMsg string
	}{
		{"camel ok", full, FormatCamel, ""},
		{"camel no name ok", Request{PhoneNumber: "+1", PromptID: "p"}, FormatCamel, ""},
		{"camel no phone", Request{PromptID: "p"}, FormatCamel, "phoneNumber is required"},
		{"camel no prompt", Request{PhoneNumber: "+1"}, FormatCamel, "promptId is required"},
		{"snake ok", full, FormatSnake, ""},
		{"snake no name", Request{PhoneNumber: "+1", PromptID: "p"}, FormatSnake,
			"Missing required fields: phoneNumber, prospectName, and promptId are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(tt.format)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", ve.Message, tt.wantMsg)
			}
		})
	}
}

func TestStartCall_CamelPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/start-call" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"success":true,"callSid":"CA1"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "", FormatCamel)
	resp, err := c.StartCall(context.Background(), Request{PhoneNumber: "+1", PromptID: "p1"})
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	want := map[string]any{"phoneNumber": "+1", "prospectName": "", "promptId": "p1", "voiceId": "default"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%s] = %v, want %v", k, got[k], v)
		}
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("StatusCode = %d, want 202", resp.StatusCode)
	}
	if string(resp.Body) != `{"success":true,"callSid":"CA1"}` {
		t.Errorf("Body = %s", resp.Body)
	}
}

func TestStartCall_SnakePayloadForcesDefaultVoice(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"prompt_id":"p1"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", FormatSnake)
	if c.Format() != FormatSnake {
		t.Fatalf("Format() = %q", c.Format())
	}
	_, err := c.StartCall(context.Background(), Request{PhoneNumber: "+1", ProspectName: "Ann", PromptID: "p1", VoiceID: "custom"})
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	want := map[string]any{"phone_number": "+1", "name": "Ann", "prompt_id": "p1", "voice_id": "default"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%s] = %v, want %v", k, got[k], v)
		}
	}
}

func TestStartCall_SnakeWarnsOnPromptMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"prompt_id":"other"}`)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	c := NewClient(srv.URL, "", FormatSnake, WithLogger(logger))

	if _, err := c.StartCall(context.Background(), Request{PhoneNumber: "+1", ProspectName: "A", PromptID: "p1"}); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if !strings.Contains(logs.String(), "prompt_id mismatch") {
		t.Errorf("expected mismatch warning, logs: %s", logs.String())
	}
}

func TestStartCall_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>upstream down</html>")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", FormatCamel).StartCall(context.Background(), Request{PhoneNumber: "+1", PromptID: "p"})
	nj, ok := AsNonJSON(err)
	if !ok {
		t.Fatalf("error = %v, want *NonJSONError", err)
	}
	if nj.Raw != "<html>upstream down</html>" || nj.StatusCode != http.StatusBadGateway {
		t.Errorf("NonJSONError = %+v", nj)
	}
	if nj.Snippet(6) != "<html>" {
		t.Errorf("Snippet(6) = %q", nj.Snippet(6))
	}
}

func TestSnippetRuneBoundary(t *testing.T) {
	nj := &NonJSONError{Raw: strings.Repeat("a", 99) + "é tail"}

	got := nj.Snippet(100)
	if !utf8.ValidString(got) {
		t.Fatalf("Snippet(100) = %q, not valid UTF-8", got)
	}
	if got != strings.Repeat("a", 99) {
		t.Errorf("Snippet(100) = %q, want the 99 leading bytes", got)
	}
	if got := nj.Snippet(101); got != strings.Repeat("a", 99)+"é" {
		t.Errorf("Snippet(101) = %q", got)
	}
	if got := (&NonJSONError{Raw: "日本語"}).Snippet(2); got != "" {
		t.Errorf("Snippet(2) = %q, want empty", got)
	}
}

func TestStartCall_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL, "", FormatCamel).StartCall(context.Background(), Request{PhoneNumber: "+1", PromptID: "p"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if _, ok := AsNonJSON(err); ok {
		t.Error("transport error must not be a NonJSONError")
	}
}

func TestTriggerOutboundCall(t *testing.T) {
	var gotKey, gotPhone string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/twilio/call" {
			http.NotFound(w, r)
			return
		}
		gotKey = r.Header.Get("X-API-Key")
		gotPhone = r.URL.Query().Get("to_phone")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := NewClient(srv.URL, "k-123", FormatCamel).TriggerOutboundCall(context.Background(), "+1 555 0100")
	if !res.Success || res.Message != "Call initiated successfully!" {
		t.Errorf("result = %+v", res)
	}
	if gotKey != "k-123" {
		t.Errorf("X-API-Key = %q", gotKey)
	}
	if gotPhone != "+1 555 0100" {
		t.Errorf("to_phone = %q", gotPhone)
	}
}

func TestTriggerOutboundCall_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "number blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	res := NewClient(srv.URL, "k", FormatCamel).TriggerOutboundCall(context.Background(), "+1")
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(res.Message, "Call failed: number blocked") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestTriggerOutboundCall_NotConfigured(t *testing.T) {
	res := NewClient("http://calls.local", "", FormatCamel).TriggerOutboundCall(context.Background(), "+1")
	if res.Success || res.Message != "Call Service URL or API Key not set" {
		t.Errorf("result = %+v", res)
	}
}

func TestForwarder(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"json":{"call_sid":"CA1"}}`)
	}))
	defer srv.Close()

	out, err := NewForwarder(srv.URL, nil).Forward(context.Background(), Summary{
		CallSID:  "CA1",
		Summary:  "Interested, call back Friday.",
		Metadata: json.RawMessage(`{"duration":42}`),
	})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(out) != `{"json":{"call_sid":"CA1"}}` {
		t.Errorf("out = %s", out)
	}
	if string(got["call_sid"]) != `"CA1"` || string(got["metadata"]) != `{"duration":42}` {
		t.Errorf("forwarded body = %v", got)
	}
}

func TestForwarder_NullMetadataAndNonJSON(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	_, err := NewForwarder(srv.URL, nil).Forward(context.Background(), Summary{CallSID: "CA2"})
	if _, ok := AsNonJSON(err); !ok {
		t.Fatalf("error = %v, want *NonJSONError", err)
	}
	if !bytes.Contains(body, []byte(`"metadata":null`)) {
		t.Errorf("body = %s, want null metadata", body)
	}
}
