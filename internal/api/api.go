package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/poolstation-bridge/internal/entity"
	"github.com/thatsimonsguy/poolstation-bridge/internal/integration"
	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

const (
	readTimeout     = 10 * time.Second
	idleTimeout     = 60 * time.Second
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Registry is what the API needs from the running integration.
type Registry interface {
	Pools() []*integration.Pool
	Pool(id string) (*integration.Pool, bool)
	Reauthenticate(ctx context.Context, email, password string) error
}

type Server struct {
	registry Registry
	hub      *Hub
	metrics  http.Handler
}

type PoolResponse struct {
	ID                string     `json:"id"`
	Alias             string     `json:"alias"`
	State             string     `json:"state"`
	Ready             bool       `json:"ready"`
	AuthRetries       int        `json:"auth_retries"`
	LastUpdateSuccess bool       `json:"last_update_success"`
	LastUpdate        *time.Time `json:"last_update,omitempty"`
}

type PoolDetailResponse struct {
	PoolResponse
	Snapshot *model.Snapshot `json:"snapshot"`
}

type EntityResponse struct {
	UniqueID    string   `json:"unique_id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Key         string   `json:"key"`
	DeviceClass string   `json:"device_class,omitempty"`
	StateClass  string   `json:"state_class,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Available   bool     `json:"available"`
	State       any      `json:"state"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Step        *float64 `json:"step,omitempty"`
}

type SetNumberRequest struct {
	Value *float64 `json:"value"`
}

type ReauthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the API. metrics may be nil.
func NewServer(registry Registry, hub *Hub, metrics http.Handler) *Server {
	if hub == nil {
		hub = NewHub()
	}
	return &Server{registry: registry, hub: hub, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		corsMiddleware,
		loggingMiddleware,
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	// websocket connections outlive the request timeout
	r.Get("/api/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/api/reauth", s.reauthenticate)
		r.Get("/api/pools", s.getPools)
		r.Route("/api/pools/{poolID}", func(r chi.Router) {
			r.Get("/", s.getPool)
			r.Get("/entities", s.getEntities)
			r.Put("/numbers/{key}", s.setNumber)
			r.Post("/refresh", s.refreshPool)
		})
	})
	return r
}

// Start serves the API on port until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Starting REST API server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	log.Info().Msg("REST API server stopped")
	return nil
}

func (s *Server) getPools(w http.ResponseWriter, _ *http.Request) {
	pools := s.registry.Pools()
	resp := make([]PoolResponse, 0, len(pools))
	for _, p := range pools {
		resp = append(resp, poolResponse(p))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPool(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, PoolDetailResponse{
		PoolResponse: poolResponse(p),
		Snapshot:     p.Coordinator.Snapshot(),
	})
}

func (s *Server) getEntities(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPool(w, r)
	if !ok {
		return
	}
	resp := make([]EntityResponse, 0, len(p.Points))
	for _, pt := range p.Points {
		resp = append(resp, entityResponse(pt))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setNumber(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPool(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	n, ok := entity.Find(p.Points, entity.KindNumber, key).(*entity.Number)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Number not found")
		return
	}

	var req SetNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := n.SetValue(r.Context(), *req.Value); err != nil {
		if errors.Is(err, entity.ErrOutOfRange) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("pool", p.Info.Alias).Str("entity", key).Msg("Failed to set target via API")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, entityResponse(n))
}

func (s *Server) refreshPool(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPool(w, r)
	if !ok {
		return
	}
	if !p.Coordinator.RequestRefresh() {
		s.writeError(w, http.StatusTooManyRequests, "Refresh requested too recently")
		return
	}
	log.Info().Str("pool", p.Info.Alias).Msg("Manual refresh requested via API")
	s.writeJSON(w, http.StatusAccepted, StatusResponse{Status: "scheduled"})
}

func (s *Server) reauthenticate(w http.ResponseWriter, r *http.Request) {
	var req ReauthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	err := s.registry.Reauthenticate(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	case errors.Is(err, integration.ErrAuthFailed):
		s.writeError(w, http.StatusUnauthorized, "Credentials rejected by poolstation.net")
	case errors.Is(err, integration.ErrNotReady):
		s.writeError(w, http.StatusServiceUnavailable, "poolstation.net unreachable")
	default:
		log.Error().Err(err).Msg("Re-authentication failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var initial []Event
	for _, p := range s.registry.Pools() {
		if snap := p.Coordinator.Snapshot(); snap != nil {
			initial = append(initial, Event{PoolID: p.Info.ID, Alias: p.Info.Alias, Snapshot: snap, Time: time.Now()})
		}
	}
	s.hub.Serve(w, r, initial)
}

func (s *Server) lookupPool(w http.ResponseWriter, r *http.Request) (*integration.Pool, bool) {
	p, ok := s.registry.Pool(chi.URLParam(r, "poolID"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Pool not found")
	}
	return p, ok
}

func poolResponse(p *integration.Pool) PoolResponse {
	c := p.Coordinator
	resp := PoolResponse{
		ID:                p.Info.ID,
		Alias:             p.Info.Alias,
		State:             c.State().String(),
		Ready:             c.Ready(),
		AuthRetries:       c.Budget(),
		LastUpdateSuccess: c.LastUpdateSuccess(),
	}
	if t := c.LastUpdate(); !t.IsZero() {
		resp.LastUpdate = &t
	}
	return resp
}

func entityResponse(pt entity.Point) EntityResponse {
	d := pt.Describe()
	resp := EntityResponse{
		UniqueID:    pt.UniqueID(),
		Name:        pt.DisplayName(),
		Kind:        string(pt.Kind()),
		Key:         d.Key,
		DeviceClass: d.DeviceClass,
		StateClass:  d.StateClass,
		Unit:        d.Unit,
		Icon:        d.Icon,
		Available:   pt.Available(),
		State:       pt.State(),
	}
	if n, ok := pt.(*entity.Number); ok {
		minV, maxV, step := n.Min(), n.Max(), n.Step()
		resp.Min, resp.Max, resp.Step = &minV, &maxV, &step
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

var _ Registry = (*integration.Integration)(nil)
