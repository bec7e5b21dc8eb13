package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatline/internal/broker"
	"chatline/internal/config"
	"chatline/internal/gateway"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler holds application dependencies
type Handler struct {
	Gateway *gateway.Gateway
	Broker  *broker.Broker
	Config  config.Config
	Log     zerolog.Logger

	limiter *rate.Limiter

	sessionMu sync.RWMutex
	sessions  map[*session]struct{}
	wg        sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a new Handler with the given dependencies
func New(gw *gateway.Gateway, br *broker.Broker, cfg config.Config, log zerolog.Logger) *Handler {
	h := &Handler{
		Gateway:  gw,
		Broker:   br,
		Config:   withTransportDefaults(cfg),
		Log:      log,
		sessions: make(map[*session]struct{}),
		done:     make(chan struct{}),
	}
	if cfg.SendRatePerSec > 0 {
		burst := cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.SendRatePerSec), burst)
	}
	return h
}

func withTransportDefaults(cfg config.Config) config.Config {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 3 * time.Second
	}
	return cfg
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// REST API
	r.HandleFunc("/messages", h.GetMessages).Methods("GET")
	r.HandleFunc("/messages", h.CreateMessage).Methods("POST")
	r.HandleFunc("/healthz", h.Health).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")
	r.HandleFunc("/graphql", h.HandleWebSocket).Methods("GET")

	return r
}

// Shutdown tells every open subscription connection to close and waits for
// them to finish or for ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.sessionMu.Lock()
	h.doneOnce.Do(func() { close(h.done) })
	h.sessionMu.Unlock()

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connections returns the number of open subscription connections.
func (h *Handler) Connections() int {
	h.sessionMu.RLock()
	defer h.sessionMu.RUnlock()
	return len(h.sessions)
}

// addSession registers s unless the handler is shutting down.
func (h *Handler) addSession(s *session) (int, bool) {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	select {
	case <-h.done:
		return len(h.sessions), false
	default:
	}
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	return len(h.sessions), true
}

func (h *Handler) removeSession(s *session) int {
	h.sessionMu.Lock()
	defer h.sessionMu.Unlock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		h.wg.Done()
	}
	return len(h.sessions)
}
