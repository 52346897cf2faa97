package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kalambet/optilead/internal/callservice"
)

// handleStartCall validates a start-call request and forwards it to the
// calling service, relaying the upstream status and JSON body.
func handleStartCall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callservice.Request
		if err := decodeBody(w, r, &req); err != nil {
			callError(w, http.StatusInternalServerError, err.Error())
			return
		}

		format := deps.Calls.Format()
		if err := req.Validate(format); err != nil {
			deps.Logger.Warn("start-call rejected", "reason", err.Error())
			callError(w, http.StatusBadRequest, err.Error())
			return
		}

		deps.Logger.Info("forwarding start-call",
			"format", format,
			"prompt_id", req.PromptID,
			"voice_id", req.VoiceID,
		)

		resp, err := deps.Calls.StartCall(r.Context(), req)
		if err != nil {
			if nj, ok := callservice.AsNonJSON(err); ok {
				deps.Logger.Error("call service returned non-JSON", "status", nj.StatusCode, "body", nj.Snippet(200))
				if format == callservice.FormatSnake {
					callError(w, http.StatusBadGateway,
						fmt.Sprintf("External API error: HTTP %d - %s", nj.StatusCode, nj.Snippet(100)))
					return
				}
				writeJSON(w, http.StatusBadGateway, map[string]any{
					"success": false,
					"message": "Backend did not return JSON",
					"raw":     nj.Raw,
				})
				return
			}
			deps.Logger.Error("start-call failed", "error", err)
			callError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeRaw(w, resp.StatusCode, resp.Body)
	}
}

type callProspectRequest struct {
	ToPhone string `json:"to_phone"`
}

// handleCallProspect triggers an outbound call through the Twilio endpoint
// of the calling service.
func handleCallProspect(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callProspectRequest
		if err := decodeBody(w, r, &req); err != nil {
			callError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if strings.TrimSpace(req.ToPhone) == "" {
			callError(w, http.StatusBadRequest, "to_phone is required")
			return
		}

		res := deps.Calls.TriggerOutboundCall(r.Context(), req.ToPhone)
		code := http.StatusOK
		if !res.Success {
			code = http.StatusBadGateway
			if res.Message == callservice.ErrNotConfigured.Error() {
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, res)
	}
}

// handleSummary forwards a post-call summary and echoes the endpoint's reply.
func handleSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invalid := func(err error) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "Invalid request",
				"details": err.Error(),
			})
		}

		var s callservice.Summary
		if err := decodeBody(w, r, &s); err != nil {
			invalid(err)
			return
		}

		out, err := deps.Summaries.Forward(r.Context(), s)
		if err != nil {
			var nj *callservice.NonJSONError
			if errors.As(err, &nj) {
				deps.Logger.Error("summary endpoint returned non-JSON", "status", nj.StatusCode)
			} else {
				deps.Logger.Error("forwarding summary failed", "call_sid", s.CallSID, "error", err)
			}
			invalid(err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"received": true,
			"outbound": out,
		})
	}
}
