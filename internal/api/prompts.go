package api

import (
	"net/http"
	"strings"
)

type systemPromptRequest struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

// handleSystemPrompts serves GET (list) and POST (create) on one path and
// answers every other method with 405.
func handleSystemPrompts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list, err := deps.Prompts.ListSystemPrompts(r.Context())
			if err != nil {
				deps.Logger.Error("listing system prompts failed", "error", err)
				httpError(w, http.StatusInternalServerError, "Failed to fetch prompts")
				return
			}
			writeJSON(w, http.StatusOK, list)

		case http.MethodPost:
			var req systemPromptRequest
			if err := decodeBody(w, r, &req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
				return
			}
			if req.Title == "" || req.Prompt == "" {
				httpError(w, http.StatusBadRequest, "Title and prompt are required")
				return
			}
			p, err := deps.Prompts.CreateSystemPrompt(r.Context(), req.Title, req.Prompt)
			if err != nil {
				deps.Logger.Error("saving system prompt failed", "error", err)
				httpError(w, http.StatusInternalServerError, "Failed to save prompt")
				return
			}
			writeJSON(w, http.StatusOK, p)

		default:
			w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost}, ", "))
			httpError(w, http.StatusMethodNotAllowed, "Method %s Not Allowed", r.Method)
		}
	}
}

func handleDefaultPrompt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, _ := deps.DefaultPrompt.Load()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"prompt":  text,
		})
	}
}
