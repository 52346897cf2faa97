package api

import (
	"net/http"
	"time"

	"github.com/kalambet/optilead/internal/leadscoring"
	"github.com/kalambet/optilead/internal/metrics"
)

func handleLeadScoring(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in leadscoring.Input
		if err := decodeBody(w, r, &in); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if err := in.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "%s", err.Error())
			return
		}

		start := time.Now()
		out, err := deps.Scorer.Score(r.Context(), in)
		deps.Metrics.ObserveUpstream(metrics.UpstreamOllama, start, err)
		if err != nil {
			deps.Logger.Error("lead scoring failed", "error", err)
			httpError(w, http.StatusInternalServerError, "Error scoring lead")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
