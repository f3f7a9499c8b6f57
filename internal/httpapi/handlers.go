package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/event"
)

// startRunRequest is the body of POST /workflows/{name}/runs.
type startRunRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId,omitempty"`
}

// resumeRequest is the body of POST /threads/{threadID}/resume.
type resumeRequest struct {
	Authorized bool   `json:"authorized"`
	Message    string `json:"message,omitempty"`
}

// threadResponse is the body of GET /threads/{threadID}.
type threadResponse struct {
	ThreadID        string    `json:"threadId"`
	Workflow        string    `json:"workflow,omitempty"`
	Status          string    `json:"status"`
	Stage           string    `json:"stage"`
	PendingStage    string    `json:"pendingStage"`
	Sequence        int       `json:"sequence"`
	Timestamp       time.Time `json:"timestamp"`
	InterruptReason string    `json:"interruptReason,omitempty"`
}

// handleStartRun starts a conversation and streams its events as SSE:
// one step event per completed stage, then a terminal
// completed/interrupted/error event, in exact execution order.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	runner, ok := s.runners.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown workflow: "+name)
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}
	s.threads.Register(threadID, name)

	// Subscribe before starting so no event can slip past.
	sub := s.bus.Subscribe(threadID)
	defer sub.Cancel()

	go func() {
		if err := runner.Start(r.Context(), threadID, req.Message); err != nil {
			s.logger.Error("run failed",
				"workflow", name, "thread_id", threadID, "error", err)
		}
	}()

	s.streamEvents(w, r, sub, threadID)
}

// handleResume restarts an interrupted thread and streams the resumed
// run's events.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	runner, ok := s.runnerForThread(threadID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown thread: "+threadID)
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub := s.bus.Subscribe(threadID)
	defer sub.Cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- runner.Resume(r.Context(), threadID, req.Authorized, req.Message)
	}()

	// Resume can fail before any event is published (no pending approval,
	// thread already completed). Surface that as an HTTP error instead of
	// an empty stream.
	select {
	case err := <-errc:
		if err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	case <-time.After(100 * time.Millisecond):
	}

	s.streamEvents(w, r, sub, threadID)
}

// handleThread returns the thread's latest checkpoint summary.
func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	runner, ok := s.runnerForThread(threadID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown thread: "+threadID)
		return
	}

	cp, err := runner.Thread(threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no checkpoints for thread: "+threadID)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	workflow, _ := s.threads.Get(threadID)
	writeJSON(w, http.StatusOK, threadResponse{
		ThreadID:        cp.ThreadID,
		Workflow:        workflow,
		Status:          string(cp.Status),
		Stage:           cp.StageID,
		PendingStage:    cp.PendingStage,
		Sequence:        cp.Sequence,
		Timestamp:       cp.Timestamp,
		InterruptReason: cp.InterruptReason,
	})
}

// handleApprovals lists pending authorization requests.
func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.approvals.Pending())
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runnerForThread finds the runner that owns a thread. Threads started
// through the API are tracked; otherwise a lone registered runner wins.
func (s *Server) runnerForThread(threadID string) (Runner, bool) {
	if name, ok := s.threads.Get(threadID); ok {
		return s.runners.Get(name)
	}
	if names := s.runners.Keys(); len(names) == 1 {
		return s.runners.Get(names[0])
	}
	return nil, false
}

// streamEvents writes the thread's events as SSE until a terminal event,
// client disconnect, or the stream timeout.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sub event.Subscription, threadID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	deadline := time.NewTimer(s.streamTimeout)
	defer deadline.Stop()

	for {
		select {
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			data, err := ev.Marshal()
			if err != nil {
				s.logger.Error("marshal event", "thread_id", threadID, "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(ev.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		case <-r.Context().Done():
			return
		case <-deadline.C:
			s.logger.Warn("stream timeout", "thread_id", threadID)
			return
		}
	}
}
