package httpapi

import (
	"net/http"

	"github.com/browseragent/control-plane/internal/artifact"
	"github.com/browseragent/control-plane/internal/errs"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.Create(r.Context(), "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sessionId": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.sessions.List()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids, "total": len(ids)})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTab(w http.ResponseWriter, r *http.Request) {
	tab, err := s.sessions.CreateTab(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tabId": tab.ID()})
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.CloseTab(r.PathValue("id"), r.PathValue("tabId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	a, ok := s.artifacts.Get(r.PathValue("id"))
	if !ok {
		writeError(w, errs.New(errs.InvalidParameter, "unknown or expired artifact: "+r.PathValue("id")))
		return
	}
	switch a.Kind {
	case artifact.KindJSON:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(a.Bytes)
	case artifact.KindText:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(a.Bytes)
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(a.Bytes)
	}
}
