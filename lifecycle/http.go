package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gmbyapa/kfactory/pkg/errors"
	"github.com/gmbyapa/kfactory/streams"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tryfix/log"
)

// Describer renders a topology, see factory.Factory.
type Describer interface {
	Describe() (string, error)
}

// EngineSource exposes the active engine handle, see factory.Factory.
type EngineSource interface {
	Handle() streams.Engine
}

type Err struct {
	Err string `json:"error"`
}

type ServerOption func(*Server)

func WithTopology(describer Describer) ServerOption {
	return func(s *Server) {
		s.topology = describer
	}
}

func WithEngineSource(source EngineSource) ServerOption {
	return func(s *Server) {
		s.engine = source
	}
}

// WithMetricsHandler replaces the default promhttp handler served on /metrics.
func WithMetricsHandler(handler http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = handler
	}
}

func WithServerLogger(logger log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server is a Startable HTTP status and control server for a Manager.
type Server struct {
	addr     string
	manager  *Manager
	topology Describer
	engine   EngineSource
	metrics  http.Handler
	logger   log.Logger
	router   *mux.Router

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

func NewServer(addr string, manager *Manager, opts ...ServerOption) *Server {
	s := &Server{
		addr:    addr,
		manager: manager,
		metrics: promhttp.Handler(),
		logger:  log.NewNoopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.NewLog(log.Prefixed(`Http`))
	s.router = s.makeEndpoints()

	return s
}

func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler()(handlers.CORS()(s.router))
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen(`tcp`, s.addr)
	if err != nil {
		return errors.Wrapf(err, `cannot listen on %s`, s.addr)
	}

	srv := &http.Server{Handler: s.Handler()}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(fmt.Sprintf(`Cannot start web server : %+v`, err))
		}
	}()

	s.srv = srv
	s.listener = ln
	s.logger.Info(fmt.Sprintf(`Http server started on %s`, ln.Addr()))

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}

	srv := s.srv
	s.srv = nil
	s.listener = nil

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, `http server shutdown failed`)
	}

	s.logger.Info(`Http server stopped`)

	return nil
}

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.srv != nil
}

// Addr returns the bound address, empty when the server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ``
	}

	return s.listener.Addr().String()
}

func (s *Server) makeEndpoints() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc(`/components`, func(writer http.ResponseWriter, request *http.Request) {
		s.writeJSON(writer, http.StatusOK, s.manager.Components())
	}).Methods(http.MethodGet)

	r.HandleFunc(`/components/{name}/{action:start|stop}`, func(writer http.ResponseWriter, request *http.Request) {
		vars := mux.Vars(request)
		name := vars[`name`]

		// stopping the server from one of its own requests never completes
		if cmp, err := s.manager.Component(name); err == nil && cmp == Startable(s) {
			s.writeError(writer, http.StatusConflict, errors.New(`http server cannot be controlled through itself`))
			return
		}

		var err error
		if vars[`action`] == `start` {
			err = s.manager.StartComponent(request.Context(), name)
		} else {
			err = s.manager.StopComponent(request.Context(), name)
		}

		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrUnknownComponent) {
				status = http.StatusNotFound
			}
			s.writeError(writer, status, err)
			return
		}

		for _, cmp := range s.manager.Components() {
			if cmp.Name == name {
				s.writeJSON(writer, http.StatusOK, cmp)
				return
			}
		}
	}).Methods(http.MethodPost)

	r.HandleFunc(`/health`, func(writer http.ResponseWriter, request *http.Request) {
		status := http.StatusOK
		components := s.manager.Components()
		for _, cmp := range components {
			if !cmp.Running {
				status = http.StatusServiceUnavailable
			}
		}
		s.writeJSON(writer, status, components)
	}).Methods(http.MethodGet)

	r.HandleFunc(`/topology`, func(writer http.ResponseWriter, request *http.Request) {
		if s.topology == nil {
			s.writeError(writer, http.StatusNotFound, errors.New(`topology is not available`))
			return
		}

		graph, err := s.topology.Describe()
		if err != nil {
			s.writeError(writer, http.StatusInternalServerError, err)
			return
		}

		writer.Header().Set(`Content-Type`, `text/vnd.graphviz`)
		if _, err := writer.Write([]byte(graph)); err != nil {
			s.logger.Error(err)
		}
	}).Methods(http.MethodGet)

	r.HandleFunc(`/stores/{store}/{key}`, func(writer http.ResponseWriter, request *http.Request) {
		var handle streams.Engine
		if s.engine != nil {
			handle = s.engine.Handle()
		}

		if handle == nil {
			s.writeError(writer, http.StatusServiceUnavailable, errors.New(`engine is not running`))
			return
		}

		vars := mux.Vars(request)
		stor, err := handle.Store(vars[`store`])
		if err != nil {
			s.writeError(writer, http.StatusNotFound, err)
			return
		}

		key, err := stor.KeyEncoder().Decode([]byte(vars[`key`]))
		if err != nil {
			s.writeError(writer, http.StatusBadRequest, err)
			return
		}

		value, err := stor.Get(request.Context(), key)
		if err != nil {
			s.writeError(writer, http.StatusInternalServerError, err)
			return
		}

		s.writeJSON(writer, http.StatusOK, struct {
			Key   interface{} `json:"key"`
			Value interface{} `json:"value"`
		}{Key: key, Value: value})
	}).Methods(http.MethodGet)

	r.Handle(`/metrics`, s.metrics).Methods(http.MethodGet)

	return r
}

func (s *Server) writeJSON(writer http.ResponseWriter, status int, v interface{}) {
	writer.Header().Set(`Content-Type`, `application/json`)
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		s.logger.Error(err)
	}
}

func (s *Server) writeError(writer http.ResponseWriter, status int, err error) {
	s.writeJSON(writer, status, Err{Err: err.Error()})
}
