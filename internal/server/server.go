// Package server exposes a storage.Remote backend over a JSON HTTP API —
// the reference shared backend the httprpc adapter talks to. The server's
// own durability is out of scope; it exists so a fleet of devices has one
// authoritative copy to reconcile against.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/storage"
)

// Server handles the group API on top of any storage.Remote.
type Server struct {
	backend storage.Remote

	imgMu  sync.Mutex
	images map[string]string // path -> data URI
}

// New creates a Server around the given backend.
func New(backend storage.Remote) *Server {
	return &Server{
		backend: backend,
		images:  make(map[string]string),
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/groups", s.createGroup)
	mux.HandleFunc("GET /api/groups/{id}", s.getGroup)
	mux.HandleFunc("PATCH /api/groups/{id}", s.updateGroup)
	mux.HandleFunc("DELETE /api/groups/{id}", s.deleteGroup)
	mux.HandleFunc("POST /api/groups/{id}/expenses", s.addExpense)
	mux.HandleFunc("DELETE /api/groups/{id}/expenses/{expenseID}", s.deleteExpense)
	mux.HandleFunc("POST /api/groups/{id}/members", s.addMember)
	mux.HandleFunc("DELETE /api/groups/{id}/members/{memberID}", s.removeMember)
	mux.HandleFunc("PATCH /api/groups/{id}/members/{memberID}", s.updateMemberStatus)
	mux.HandleFunc("POST /api/groups/{id}/merge", s.mergeMember)
	mux.HandleFunc("GET /api/groups/{id}/metadata", s.metadata)
	mux.HandleFunc("POST /api/images", s.uploadImage)
	mux.HandleFunc("GET /images/{path...}", s.serveImage)
	mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(corsMiddleware(mux))
}

type createGroupRequest struct {
	Name     string        `json:"name"`
	Creator  models.Member `json:"creator"`
	CustomID string        `json:"customId,omitempty"`
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Creator.ID == "" || req.Creator.Name == "" {
		respondError(w, http.StatusBadRequest, "name and creator are required")
		return
	}

	g, err := s.backend.CreateGroup(r.Context(), req.Name, req.Creator, req.CustomID)
	if err != nil {
		s.fail(w, "create group", err)
		return
	}
	respondJSON(w, http.StatusCreated, "group created", g)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	g, err := s.backend.GetGroup(r.Context(), groupID)
	if err != nil {
		s.fail(w, "get group", err)
		return
	}
	if g == nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}

	// A poll with ?since=<unix ms> gets 204 when nothing changed, which
	// keeps subscription polling cheap.
	if since := r.URL.Query().Get("since"); since != "" {
		ts, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		if g.UpdatedAt <= ts {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respondJSON(w, http.StatusOK, "ok", g)
}

func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	var update models.GroupUpdate
	if err := decodeJSON(r, &update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.backend.UpdateGroup(r.Context(), r.PathValue("id"), update); err != nil {
		s.fail(w, "update group", err)
		return
	}
	respondJSON(w, http.StatusOK, "group updated", nil)
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteGroup(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, "delete group", err)
		return
	}
	respondJSON(w, http.StatusOK, "group deleted", nil)
}

func (s *Server) addExpense(w http.ResponseWriter, r *http.Request) {
	var e models.Expense
	if err := decodeJSON(r, &e); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if e.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if err := s.backend.AddExpense(r.Context(), r.PathValue("id"), e); err != nil {
		s.fail(w, "add expense", err)
		return
	}
	respondJSON(w, http.StatusCreated, "expense added", nil)
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteExpense(r.Context(), r.PathValue("id"), r.PathValue("expenseID")); err != nil {
		s.fail(w, "delete expense", err)
		return
	}
	respondJSON(w, http.StatusOK, "expense deleted", nil)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var m models.Member
	if err := decodeJSON(r, &m); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if m.ID == "" || m.Name == "" {
		respondError(w, http.StatusBadRequest, "member id and name are required")
		return
	}
	if err := s.backend.AddMember(r.Context(), r.PathValue("id"), m); err != nil {
		s.fail(w, "add member", err)
		return
	}
	respondJSON(w, http.StatusCreated, "member added", nil)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.RemoveMember(r.Context(), r.PathValue("id"), r.PathValue("memberID")); err != nil {
		s.fail(w, "remove member", err)
		return
	}
	respondJSON(w, http.StatusOK, "member removed", nil)
}

type statusRequest struct {
	Status models.MemberStatus `json:"status"`
}

func (s *Server) updateMemberStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != models.StatusActive && req.Status != models.StatusPending {
		respondError(w, http.StatusBadRequest, "status must be active or pending")
		return
	}
	if err := s.backend.UpdateMemberStatus(r.Context(), r.PathValue("id"), r.PathValue("memberID"), req.Status); err != nil {
		s.fail(w, "update member status", err)
		return
	}
	respondJSON(w, http.StatusOK, "member updated", nil)
}

type mergeRequest struct {
	OldID string `json:"oldId"`
	NewID string `json:"newId"`
}

func (s *Server) mergeMember(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.backend.MergeMember(r.Context(), r.PathValue("id"), req.OldID, req.NewID); err != nil {
		s.fail(w, "merge member", err)
		return
	}
	respondJSON(w, http.StatusOK, "members merged", nil)
}

func (s *Server) metadata(w http.ResponseWriter, r *http.Request) {
	md, err := s.backend.GroupMetadata(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, "get metadata", err)
		return
	}
	if md == nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	respondJSON(w, http.StatusOK, "ok", md)
}

type uploadRequest struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || req.Data == "" {
		respondError(w, http.StatusBadRequest, "path and data are required")
		return
	}

	s.imgMu.Lock()
	s.images[req.Path] = req.Data
	s.imgMu.Unlock()

	respondJSON(w, http.StatusCreated, "image stored", uploadResponse{URL: "/images/" + req.Path})
}

func (s *Server) serveImage(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")

	s.imgMu.Lock()
	data, ok := s.images[path]
	s.imgMu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(data))
}

// fail maps backend errors to status codes.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, models.ErrMemberNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrNameTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrOwnerRemoval):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("Request failed", "op", op, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
