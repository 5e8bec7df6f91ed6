package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/gosched/internal/table"
	"github.com/me/gosched/pkg/model"
)

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.kernel.ListProcesses())
}

func (s *Server) handleCreateProcess(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.CreateProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.Name == "" {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "name is required",
		})
		return
	}

	info, err := s.kernel.CreateProcess(req)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, info)
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r, reqID)
	if !ok {
		return
	}
	info, err := s.kernel.ProcessStats(pid)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, info)
}

func (s *Server) handleTerminateProcess(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r, reqID)
	if !ok {
		return
	}
	exitStatus := 0
	if v := r.URL.Query().Get("exit_status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, &model.APIError{
				Code: model.ErrInvalidParam, Message: "exit_status must be an integer",
			})
			return
		}
		exitStatus = n
	}
	if err := s.kernel.TerminateProcess(table.RootPID, pid, exitStatus); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"pid": pid, "terminated": true})
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	pid, ok := pidParam(w, r, reqID)
	if !ok {
		return
	}
	var body struct {
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	prio, err := model.ParsePriority(body.Priority)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: err.Error(),
		})
		return
	}
	if err := s.kernel.SetProcessPriority(pid, prio); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"pid": pid, "priority": prio})
}

// pidParam parses the {pid} URL parameter, responding with 400 itself
// on malformed input.
func pidParam(w http.ResponseWriter, r *http.Request, reqID string) (model.PID, bool) {
	raw := chi.URLParam(r, "pid")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid pid " + strconv.Quote(raw),
		})
		return 0, false
	}
	return model.PID(n), true
}
