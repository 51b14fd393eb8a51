package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleSessionAsset serves a level image while its handle is live.
func (s *Server) handleSessionAsset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(chi.URLParam(r, "sid"))
	if !ok {
		writeNotFound(w, "session not found")
		return
	}
	entry, ok := sess.images.Lookup(chi.URLParam(r, "token"))
	if !ok {
		writeNotFound(w, "asset not found")
		return
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
	// The URL dies with the handle, so caches must not outlive it.
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write; client may have gone away
	w.Write(entry.Data)
}
