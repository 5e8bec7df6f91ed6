package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/gosched/pkg/model"
)

type healthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	GoVersion string          `json:"go_version"`
	Uptime    string          `json:"uptime"`
	Algorithm model.Algorithm `json:"algorithm"`
	Tick      uint64          `json:"tick"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	stats := s.kernel.SchedulerStats()
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Algorithm: stats.Algorithm,
		Tick:      stats.Tick,
	})
}

func (s *Server) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.kernel.SchedulerStats())
}

// handleAdvanceClock drives simulated time forward. The daemon has no
// hardware timer interrupt; this is it.
func (s *Server) handleAdvanceClock(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	var body struct {
		Ticks uint64 `json:"ticks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	if body.Ticks == 0 {
		body.Ticks = 1
	}
	s.kernel.Clock().Advance(body.Ticks)
	respondOK(w, reqID, map[string]any{"tick": s.kernel.Now()})
}

func (s *Server) handleCPUOnline(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	cpu, ok := cpuParam(w, r, reqID)
	if !ok {
		return
	}
	if err := s.kernel.SetCPUOnline(cpu); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"cpu": cpu, "state": model.CPUStateOnline})
}

func (s *Server) handleCPUOffline(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	cpu, ok := cpuParam(w, r, reqID)
	if !ok {
		return
	}
	if err := s.kernel.SetCPUOffline(cpu); err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"cpu": cpu, "state": model.CPUStateOffline})
}

func (s *Server) handleListExits(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts := listOptions(r)
	recs, total, err := s.kernel.ExitHistory(r.Context(), opts)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondList(w, reqID, recs, &model.Pagination{
		Total: total, Limit: opts.Limit, Offset: opts.Offset,
		HasMore: opts.Offset+len(recs) < total,
	})
}

func (s *Server) handleListSamples(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts := listOptions(r)
	samples, total, err := s.kernel.StatHistory(r.Context(), opts)
	if err != nil {
		respondKernelError(w, reqID, err)
		return
	}
	respondList(w, reqID, samples, &model.Pagination{
		Total: total, Limit: opts.Limit, Offset: opts.Offset,
		HasMore: opts.Offset+len(samples) < total,
	})
}

// listOptions parses limit/offset query parameters.
func listOptions(r *http.Request) model.ListOptions {
	opts := model.DefaultListOptions()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	opts.Clamp()
	return opts
}

// cpuParam parses the {cpu} URL parameter.
func cpuParam(w http.ResponseWriter, r *http.Request, reqID string) (model.CPUID, bool) {
	raw := chi.URLParam(r, "cpu")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code: model.ErrInvalidParam, Message: "invalid cpu " + strconv.Quote(raw),
		})
		return 0, false
	}
	return model.CPUID(n), true
}
