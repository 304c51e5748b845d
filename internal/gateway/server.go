package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/config"
	httpapi "github.com/nextlevelbuilder/botchat/internal/http"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

// MemberChecker verifies channel membership before a channel stream is opened.
type MemberChecker interface {
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
}

// Server is the gateway server handling WebSocket and HTTP connections.
type Server struct {
	cfg      *config.Config
	eventPub bus.EventPublisher
	registry *prometheus.Registry
	members  MemberChecker

	usersHandler    *httpapi.UsersHandler
	channelsHandler *httpapi.ChannelsHandler
	routingHandler  *httpapi.RoutingHandler

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter
	clients     map[string]*Client
	mu          sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new gateway server. registry may be nil, which
// disables /metrics.
func NewServer(cfg *config.Config, eventPub bus.EventPublisher, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:      cfg,
		eventPub: eventPub,
		registry: registry,
		clients:  make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	// rate_limit_rpm <= 0 disables limiting.
	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, 5)

	if registry != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "botchat",
			Subsystem: "gateway",
			Name:      "clients_connected",
			Help:      "Connected WebSocket clients.",
		}, func() float64 { return float64(s.ClientCount()) }))
	}
	return s
}

// RateLimiter returns the server's per-sender rate limiter.
func (s *Server) RateLimiter() *RateLimiter { return s.rateLimiter }

// SetMemberChecker enables membership checks on /ws?channel_id=.
func (s *Server) SetMemberChecker(m MemberChecker) { s.members = m }

// SetUsersHandler sets the user and bot API handler.
func (s *Server) SetUsersHandler(h *httpapi.UsersHandler) { s.usersHandler = h }

// SetChannelsHandler sets the channel, membership and message API handler.
func (s *Server) SetChannelsHandler(h *httpapi.ChannelsHandler) { s.channelsHandler = h }

// SetRoutingHandler sets the orchestrator and reply RPC handler.
func (s *Server) SetRoutingHandler(h *httpapi.RoutingHandler) { s.routingHandler = h }

// checkOrigin validates the WebSocket Origin against the allow-list.
// No configured origins allows all. An empty Origin (non-browser client)
// is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	if s.usersHandler != nil {
		s.usersHandler.RegisterRoutes(mux)
	}
	if s.channelsHandler != nil {
		if s.rateLimiter.Enabled() {
			s.channelsHandler.SetRateLimiter(s.rateLimiter.Allow)
		}
		s.channelsHandler.RegisterRoutes(mux)
	}
	if s.routingHandler != nil {
		s.routingHandler.RegisterRoutes(mux)
	}

	s.mux = mux
	return mux
}

// Start begins listening and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebSocket upgrades /ws?channel_id=&user_id= to an event stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if token := s.cfg.Gateway.Token; token != "" {
		if r.URL.Query().Get("token") != token && bearerToken(r) != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	channelID, userID, status, msg := s.streamScope(r)
	if status != 0 {
		http.Error(w, msg, status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, channelID, userID)
	s.registerClient(client)
	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.Run(r.Context())
}

// streamScope validates the stream's query parameters. A non-zero status
// means the request is refused.
func (s *Server) streamScope(r *http.Request) (channelID, userID string, status int, msg string) {
	q := r.URL.Query()
	channelID, userID = q.Get("channel_id"), q.Get("user_id")
	if channelID == "" && userID == "" {
		return "", "", http.StatusBadRequest, "channel_id or user_id required"
	}
	var chID, uID uuid.UUID
	var err error
	if channelID != "" {
		if chID, err = uuid.Parse(channelID); err != nil {
			return "", "", http.StatusBadRequest, "invalid channel_id"
		}
	}
	if userID != "" {
		if uID, err = uuid.Parse(userID); err != nil {
			return "", "", http.StatusBadRequest, "invalid user_id"
		}
	}
	if channelID == "" || s.members == nil {
		return channelID, userID, 0, ""
	}
	if userID == "" {
		return "", "", http.StatusBadRequest, "user_id required for a channel stream"
	}
	ok, err := s.members.IsMember(r.Context(), chID, uID)
	if err != nil {
		slog.Warn("gateway: membership check failed", "channel", channelID, "error", err)
		return "", "", http.StatusServiceUnavailable, "membership check failed"
	}
	if !ok {
		return "", "", http.StatusForbidden, "not a member of this channel"
	}
	return channelID, userID, 0, ""
}

func bearerToken(r *http.Request) string {
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c

	s.eventPub.Subscribe(c.id, func(event bus.Event) {
		if !c.Wants(event) {
			return
		}
		c.SendEvent(*protocol.NewEvent(event.Name, event.Payload))
	})

	slog.Info("client connected", "id", c.id, "channel", c.channelID, "user", c.userID)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	s.eventPub.Unsubscribe(c.id)
	slog.Info("client disconnected", "id", c.id)
}

// StartTestServer creates a listener on 127.0.0.1:0 and returns the actual
// address and a start function. Used for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}
	return addr, start
}
