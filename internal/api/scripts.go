package api

import (
	"errors"
	"net/http"

	"github.com/kalambet/optilead/internal/scripts"
)

type scriptRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func handleListScripts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Scripts.List())
	}
}

func handleCreateScript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scriptRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.Title == "" || req.Content == "" {
			httpError(w, http.StatusBadRequest, "Title and content are required.")
			return
		}

		writeJSON(w, http.StatusOK, deps.Scripts.Create(req.Title, req.Content))
	}
}

func handleUpdateScript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scriptRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.ID == "" || req.Title == "" || req.Content == "" {
			httpError(w, http.StatusBadRequest, "ID, title, and content are required.")
			return
		}

		sc, err := deps.Scripts.Update(req.ID, req.Title, req.Content)
		if errors.Is(err, scripts.ErrNotFound) {
			httpError(w, http.StatusNotFound, "Script not found.")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "updating script: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, sc)
	}
}
