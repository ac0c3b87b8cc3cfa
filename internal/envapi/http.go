package envapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dr-isosan/LifeNode/core"
	"github.com/dr-isosan/LifeNode/internal/logging"
	"github.com/dr-isosan/LifeNode/internal/observability"
	"github.com/dr-isosan/LifeNode/internal/telemetry"
	"github.com/dr-isosan/LifeNode/model"
)

const requestIDHeader = "X-Request-Id"

// Server exposes the RL environment and the live world over HTTP: episode
// management under /v1/episodes, world state, statistics, and mesh
// membership for the shared ticking simulator, and an event stream over
// WebSocket.
type Server struct {
	logger   logging.Logger
	episodes *EpisodeService
	world    *core.Simulator
	bus      *telemetry.Bus
	metrics  *observability.EnvCollector
}

// NewServer wires the handler set. world and bus may be nil when the server
// only fronts episodes; the affected routes then answer 503.
func NewServer(episodes *EpisodeService, world *core.Simulator, bus *telemetry.Bus, metrics *observability.EnvCollector, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Server{
		logger:   logger,
		episodes: episodes,
		world:    world,
		bus:      bus,
		metrics:  metrics,
	}
}

// Routes builds the route table. The stream route skips the metrics
// middleware so the recorder does not hide http.Hijacker from the upgrader.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/episodes", s.instrument("episodes", http.HandlerFunc(s.handleCreateEpisode)))
	mux.Handle("POST /v1/episodes/{id}/step", s.instrument("episode_step", http.HandlerFunc(s.handleStep)))
	mux.Handle("POST /v1/episodes/{id}/reset", s.instrument("episode_reset", http.HandlerFunc(s.handleReset)))
	mux.Handle("DELETE /v1/episodes/{id}", s.instrument("episode_delete", http.HandlerFunc(s.handleDeleteEpisode)))

	mux.Handle("GET /v1/state", s.instrument("state", http.HandlerFunc(s.handleState)))
	mux.Handle("GET /v1/stats", s.instrument("stats", http.HandlerFunc(s.handleStats)))
	mux.Handle("POST /v1/nodes", s.instrument("nodes", http.HandlerFunc(s.handleAddNode)))
	mux.Handle("DELETE /v1/nodes/{id}", s.instrument("node_delete", http.HandlerFunc(s.handleRemoveNode)))
	mux.Handle("GET /healthz", s.instrument("healthz", http.HandlerFunc(s.handleHealthz)))

	mux.Handle("GET /v1/stream", s.requestID(TracingMiddleware("stream", http.HandlerFunc(s.handleStream))))

	return mux
}

// instrument stacks the shared middleware for a plain REST route.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return s.requestID(TracingMiddleware(route, s.metrics.Middleware(route, next)))
}

// requestID sources the request id from the inbound header when present,
// attaches a per-request logger, and echoes the id back to the client.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.logger)
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleCreateEpisode(w http.ResponseWriter, r *http.Request) {
	var req CreateEpisodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.episodes.CreateEpisode(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req StepRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.episodes.Step(r.Context(), r.PathValue("id"), req.Action)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	state, err := s.episodes.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteEpisode(w http.ResponseWriter, r *http.Request) {
	if err := s.episodes.DeleteEpisode(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.world == nil {
		writeError(w, http.StatusServiceUnavailable, "no world simulator attached")
		return
	}
	writeJSON(w, http.StatusOK, s.world.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.world == nil {
		writeError(w, http.StatusServiceUnavailable, "no world simulator attached")
		return
	}
	writeJSON(w, http.StatusOK, s.world.Stats())
}

// AddNodeRequest places a new device in the deployment area.
type AddNodeRequest struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
}

// AddNodeResponse carries the id assigned to the new node.
type AddNodeResponse struct {
	NodeID int `json:"NodeID"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	if s.world == nil {
		writeError(w, http.StatusServiceUnavailable, "no world simulator attached")
		return
	}
	var req AddNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := s.world.AddNode(model.Position{X: req.X, Y: req.Y})
	if s.bus != nil {
		s.bus.Publish(telemetry.NodeAddedEvent(s.world.Tick(), id))
	}
	writeJSON(w, http.StatusCreated, AddNodeResponse{NodeID: id})
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	if s.world == nil {
		writeError(w, http.StatusServiceUnavailable, "no world simulator attached")
		return
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "node id must be an integer")
		return
	}
	if err := s.world.RemoveNode(id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.bus != nil {
		s.bus.Publish(telemetry.NodeRemovedEvent(s.world.Tick(), id))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Status": "ok"})
}

// writeServiceError maps service and simulator sentinels onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrEpisodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrEpisodeDone):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidParameter),
		errors.Is(err, core.ErrInvalidNode),
		errors.Is(err, core.ErrInvalidPacket):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrBufferFull),
		errors.Is(err, core.ErrNoActivePair):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log := logging.LoggerFromContext(r.Context())
		if log == nil {
			log = s.logger
		}
		log.Error(r.Context(), "request failed", logging.Err(err))
	}
	writeError(w, status, err.Error())
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error string `json:"Error"`
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
