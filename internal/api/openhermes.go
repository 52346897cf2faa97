package api

import (
	"net/http"
	"time"

	"github.com/kalambet/optilead/internal/metrics"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// handleOpenHermes proxies a prompt to the local model and returns the
// upstream JSON unchanged.
func handleOpenHermes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		start := time.Now()
		raw, err := deps.LLM.Generate(r.Context(), deps.Model, req.Prompt)
		deps.Metrics.ObserveUpstream(metrics.UpstreamOllama, start, err)
		if err != nil {
			deps.Logger.Error("ollama generate failed", "model", deps.Model, "error", err)
			httpError(w, http.StatusInternalServerError, "Error communicating with OpenHermes")
			return
		}

		writeRaw(w, http.StatusOK, raw)
	}
}
