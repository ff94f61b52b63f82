package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/market-research/internal/artifacts"
	"github.com/jonathan/market-research/internal/rendering"
	"github.com/jonathan/market-research/internal/server/middleware"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

// researchList is the listing payload; items carry no results.
type researchList struct {
	Count    int                      `json:"count"`
	Research []*types.ResearchRequest `json:"research"`
}

func (s *Server) handleListResearch(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.caller(w, r)
	if !ok {
		return
	}
	items, err := s.requests.List(r.Context(), owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*types.ResearchRequest{}
	}
	s.jsonResponse(w, http.StatusOK, researchList{Count: len(items), Research: items})
}

// handleCreateResearch stores a pending request and queues its run. A full queue
// leaves the request pending for the sweeper to resubmit.
func (s *Server) handleCreateResearch(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.caller(w, r)
	if !ok {
		return
	}
	var in types.CreateResearchRequest
	if err := decodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	req := in.NewRequest(owner, s.now().UTC())
	if err := s.requests.Create(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}

	if _, err := s.runs.Submit(req.ID); err != nil {
		s.logger.Warn("run not queued, left pending for the sweeper",
			zap.String("request_id", req.ID.String()),
			zap.Error(err),
		)
	}
	s.jsonResponse(w, http.StatusCreated, req)
}

func (s *Server) handleGetResearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, req)
}

func (s *Server) handleUpdateResearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	var upd types.UpdateResearchRequest
	if err := decodeJSON(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := upd.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}
	if upd.Empty() {
		s.errorResponse(w, http.StatusBadRequest, "validation error: body - no fields to update")
		return
	}
	if req.Status != types.StatusPending {
		s.errorResponse(w, http.StatusConflict, "Cannot update research that is already in progress or completed")
		return
	}

	// the store rechecks pending atomically, a run may have started since the read
	updated, err := s.requests.Update(r.Context(), req.ID, store.PatchFromUpdate(&upd))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteResearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	if err := s.requests.Delete(r.Context(), req.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResearchResults(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	if req.Status != types.StatusCompleted || req.Results == nil {
		s.errorResponse(w, http.StatusBadRequest, "Research results not available yet")
		return
	}
	s.jsonResponse(w, http.StatusOK, req.Results)
}

func (s *Server) handleDownloadResearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ownedRequest(w, r)
	if !ok {
		return
	}
	if s.reports == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "report rendering is not configured")
		return
	}
	url, err := s.reports.Render(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, rendering.ErrNotCompleted) {
			s.errorResponse(w, http.StatusBadRequest, "Research not completed yet")
			return
		}
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"artifactUrl": url})
}

// handleServeArtifact streams a stored report. Names are random and only handed
// out to the owner, so the route itself is unauthenticated.
func (s *Server) handleServeArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		s.errorResponse(w, http.StatusNotFound, artifacts.ErrNotFound.Error())
		return
	}
	name := r.PathValue("name")
	if err := artifacts.ValidateKey(name); err != nil {
		s.fail(w, r, err)
		return
	}

	body, contentType, err := s.artifacts.Open(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("artifact stream interrupted", zap.String("name", name), zap.Error(err))
	}
}

// caller returns the authenticated user id.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

// ownedRequest loads the {id} request and hides requests of other users behind 404.
func (s *Server) ownedRequest(w http.ResponseWriter, r *http.Request) (*types.ResearchRequest, bool) {
	owner, ok := s.caller(w, r)
	if !ok {
		return nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid research ID")
		return nil, false
	}
	req, err := s.requests.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "Research not found")
			return nil, false
		}
		s.fail(w, r, err)
		return nil, false
	}
	if req.Owner != owner {
		s.errorResponse(w, http.StatusNotFound, "Research not found")
		return nil, false
	}
	return req, true
}
