package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pinaxlabs/organizer/types"
)

func (s *Server) handleOrganize(w http.ResponseWriter, r *http.Request) {
	var req types.OrganizeRequest
	r.Body = http.MaxBytesReader(w, r.Body, types.MaxRequestBytes+1)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body exceeds 10 MiB")
			return
		}
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	plan, err := s.organizer.Organize(r.Context(), &req)
	if err != nil {
		status, msg := organizeErrorStatus(err)
		writeAPIError(w, status, msg)
		return
	}
	writeAPIJSON(w, http.StatusOK, plan)
}

// organizeErrorStatus maps pipeline errors onto the HTTP contract:
// 400 validation, 413 size cap, 503 rate limit or overload, 500
// everything else.
func organizeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, types.ErrLLMTransient):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req types.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := types.ValidateProcessRequest(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The batch outlives this request; it must not inherit the
	// request's cancellation.
	resp, err := s.batches.Submit(s.baseCtx, &req)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.batches.Status(r.PathValue("batch_id"), r.PathValue("chunk_id"))
	if errors.Is(err, types.ErrNotFound) {
		writeAPIJSON(w, http.StatusOK, types.StatusResponse{Status: "not_found"})
		return
	}
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAPIJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeAPIJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}
