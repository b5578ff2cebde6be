package web

import (
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/groupsub/internal/core"
	"github.com/JonMunkholm/groupsub/internal/web/templates"
)

// render writes v as JSON for API clients and view as HTML otherwise.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, v any, view templ.Component) {
	if wantsJSON(r) || view == nil {
		writeJSON(w, status, v)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := view.Render(r.Context(), w); err != nil {
		s.logger.Error("render failed", "path", r.URL.Path, "error", err)
	}
}

// handleTerm returns a term with its package and groups.
func (s *Server) handleTerm(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "termID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	pt, ok, err := s.deps.Packages.GetPackageTerm(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %d", errTermNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

// handleGroups lists the forum groups a package can grant. ?refresh=1
// reloads the list after groups were changed in the forum.
func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "" {
		s.deps.Groups.Invalidate()
	}
	groups, err := s.deps.Groups.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// handleAuditLog lists admin actions, newest first. Supports ?action=,
// ?limit= and ?offset=.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", core.DefaultAuditLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	entries, err := s.deps.Audit.List(r.Context(), core.AuditFilter{
		Action: core.AuditAction(r.URL.Query().Get("action")),
		Limit:  min(max(limit, 1), maxPageSize),
		Offset: max(offset, 0),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, map[string]any{"entries": entries}, templates.AuditPage(entries))
}
