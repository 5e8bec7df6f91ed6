package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/gosched/pkg/model"
)

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.kernel.ListThreads())
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	info, err := s.kernel.CreateThread(req)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, info)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tid, ok := tidParam(w, r, reqID)
	if !ok {
		return
	}
	info, err := s.kernel.ThreadStats(tid)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, info)
}

func (s *Server) handleTerminateThread(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tid, ok := tidParam(w, r, reqID)
	if !ok {
		return
	}
	if err := s.kernel.TerminateThread(tid); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"tid": tid, "terminated": true})
}

func (s *Server) handleBlockThread(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tid, ok := tidParam(w, r, reqID)
	if !ok {
		return
	}
	if err := s.kernel.BlockThread(tid); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"tid": tid, "state": model.ThreadStateBlocked})
}

func (s *Server) handleWakeThread(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tid, ok := tidParam(w, r, reqID)
	if !ok {
		return
	}
	if err := s.kernel.WakeThread(tid); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"tid": tid, "state": model.ThreadStateReady})
}

func (s *Server) handleSleepThread(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tid, ok := tidParam(w, r, reqID)
	if !ok {
		return
	}
	var body struct {
		Ticks uint64 `json:"ticks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	if err := s.kernel.SleepThread(tid, body.Ticks); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"tid": tid, "wake_at": s.kernel.Now() + body.Ticks})
}

func (s *Server) handleSetAffinity(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	tid, ok := tidParam(w, r, reqID)
	if !ok {
		return
	}
	var body struct {
		Mask uint64 `json:"mask"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	if err := s.kernel.SetThreadAffinity(tid, model.Affinity(body.Mask)); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"tid": tid, "mask": body.Mask})
}

// tidParam parses the {tid} URL parameter, responding with 400 itself
// on malformed input.
func tidParam(w http.ResponseWriter, r *http.Request, reqID string) (model.TID, bool) {
	raw := chi.URLParam(r, "tid")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid tid " + strconv.Quote(raw),
		})
		return 0, false
	}
	return model.TID(n), true
}
