package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
	"worklens/internal/infrastructure/middleware"
	"worklens/pkg/config"
	"worklens/pkg/tracing"
	"worklens/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Relay is the part of the relay service the control channel drives.
type Relay interface {
	Register(ctx context.Context, ch ports.Channel) error
	Unregister(ctx context.Context, ch ports.Channel)
	Start(ctx context.Context, viewer ports.Channel, sourceID domain.SubjectID) bool
	Stop(ctx context.Context, viewer ports.Channel, sourceID domain.SubjectID) bool
	SourceTerminate(identity domain.Identity, sourceID domain.SubjectID) bool
	RelayFrame(identity domain.Identity, frame domain.Frame) bool
}

// Options tunes the control channel.
type Options struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBufferSize  int
	MaxMessageBytes int64
	AllowedOrigins  []string

	RateLimitEnabled     bool
	ConnectionsPerMinute int
	MessagesPerSecond    float64
	MessageBurst         int
	MaxConcurrent        int
}

// OptionsFromConfig maps the signal and rate_limiting sections to Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PingInterval:         cfg.Signal.PingInterval,
		PongTimeout:          cfg.Signal.PongTimeout,
		WriteTimeout:         cfg.Signal.WriteTimeout,
		SendBufferSize:       cfg.Signal.SendBufferSize,
		MaxMessageBytes:      cfg.Signal.MaxMessageBytes,
		AllowedOrigins:       cfg.Auth.AllowedOrigins,
		RateLimitEnabled:     cfg.RateLimiting.Enabled,
		ConnectionsPerMinute: cfg.RateLimiting.WebSocket.ConnectionsPerMinute,
		MessagesPerSecond:    cfg.RateLimiting.WebSocket.MessagesPerSecond,
		MessageBurst:         cfg.RateLimiting.WebSocket.Burst,
		MaxConcurrent:        cfg.RateLimiting.WebSocket.MaxConcurrent,
	}
}

type WebSocketServer struct {
	relay    Relay
	resolver ports.IdentityResolver
	metrics  ports.MetricsRecorder
	opts     Options
	upgrader websocket.Upgrader

	connectLimiter *middleware.RateLimiterStore
	sem            chan struct{}

	connections map[string]*Connection
	mu          sync.RWMutex

	logger *zap.SugaredLogger
}

func NewWebSocketServer(relay Relay, resolver ports.IdentityResolver, metrics ports.MetricsRecorder, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		relay:       relay,
		resolver:    resolver,
		metrics:     metrics,
		opts:        opts,
		connections: make(map[string]*Connection),
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	if opts.RateLimitEnabled {
		if opts.ConnectionsPerMinute > 0 {
			perSecond := rate.Limit(float64(opts.ConnectionsPerMinute) / 60)
			s.connectLimiter = middleware.NewRateLimiterStore(perSecond, opts.ConnectionsPerMinute)
		}
		if opts.MaxConcurrent > 0 {
			s.sem = make(chan struct{}, opts.MaxConcurrent)
		}
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// tokenFrom reads the bearer header first, then the token query parameter.
func tokenFrom(r *http.Request) string {
	if token := middleware.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes. A missing or invalid token yields an anonymous connection.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.connectLimiter != nil && !s.connectLimiter.Allow(middleware.ClientIP(r)) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}
	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		default:
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
	}

	identity := domain.Anonymous
	if token := tokenFrom(r); token != "" {
		resolved, err := s.resolver.ValidateToken(token)
		if err != nil {
			s.logger.Debugw("websocket token rejected, continuing anonymous", "error", err)
		} else {
			identity = resolved
		}
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	var limiter *rate.Limiter
	if s.opts.RateLimitEnabled && s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
	}
	conn := newConnection(utils.GenerateConnectionID(), identity, ws, s.opts.SendBufferSize, limiter)

	ctx := context.WithoutCancel(r.Context())
	if err := s.relay.Register(ctx, conn); err != nil {
		s.logger.Warnw("connection rejected by relay", "conn_id", conn.id, "error", err)
		conn.close()
		return
	}
	s.track(conn)
	s.metrics.ConnectionOpened(identity.Role)
	s.logger.Infow("websocket connected",
		"conn_id", conn.id,
		"subject_id", identity.SubjectID,
		"role", identity.Role.String(),
	)

	go conn.writePump(s.opts.PingInterval, s.opts.WriteTimeout, s.logger)
	s.readPump(ctx, conn)

	s.relay.Unregister(ctx, conn)
	conn.close()
	s.untrack(conn)
	s.metrics.ConnectionClosed(identity.Role)
	s.logger.Infow("websocket disconnected", "conn_id", conn.id, "subject_id", identity.SubjectID)
}

func (s *WebSocketServer) readPump(ctx context.Context, conn *Connection) {
	ws := conn.conn
	ws.SetReadLimit(s.opts.MaxMessageBytes)
	ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("websocket read failed", "conn_id", conn.id, "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if !conn.allow() {
			s.logger.Debugw("message rate exceeded, dropping", "conn_id", conn.id)
			continue
		}
		s.handleMessage(ctx, conn, data)
	}
}

// handleMessage dispatches one envelope. Malformed, unknown and unauthorized
// messages are dropped without a reply.
func (s *WebSocketServer) handleMessage(ctx context.Context, conn *Connection, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		s.logger.Debugw("malformed control message", "conn_id", conn.id)
		return
	}

	identity := conn.Identity()

	// frames are the hot path and are not traced individually
	if env.Event == domain.EventLiveViewFrame {
		var frame domain.Frame
		if err := json.Unmarshal(env.Data, &frame); err != nil {
			s.logger.Debugw("malformed frame", "conn_id", conn.id)
			return
		}
		frame.SourceID = domain.SubjectID(utils.NormalizeSubjectID(string(frame.SourceID)))
		if frame.SourceID == "" {
			frame.SourceID = identity.SubjectID
		}
		s.relay.RelayFrame(identity, frame)
		return
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, env.Event, string(identity.SubjectID))
	defer span.End()

	var payload domain.SourceRef
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			s.logger.Debugw("malformed control payload", "conn_id", conn.id, "event", env.Event)
			return
		}
	}
	payload.SourceID = domain.SubjectID(utils.NormalizeSubjectID(string(payload.SourceID)))
	span.SetAttributes(tracing.SourceIDKey.String(string(payload.SourceID)))

	var accepted bool
	switch env.Event {
	case domain.EventLiveViewStart:
		accepted = s.relay.Start(ctx, conn, payload.SourceID)
	case domain.EventLiveViewStop:
		accepted = s.relay.Stop(ctx, conn, payload.SourceID)
	case domain.EventLiveViewTerminate:
		if payload.SourceID == "" {
			payload.SourceID = identity.SubjectID
		}
		accepted = s.relay.SourceTerminate(identity, payload.SourceID)
	default:
		s.logger.Debugw("unknown control event", "conn_id", conn.id, "event", env.Event)
		return
	}
	span.SetAttributes(tracing.AcceptedKey.Bool(accepted))
}

func (s *WebSocketServer) track(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.id] = conn
}

func (s *WebSocketServer) untrack(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, conn.id)
}

// ConnectionCount returns the number of open control channel connections.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Shutdown sends a going-away close frame to every connection and closes it.
func (s *WebSocketServer) Shutdown(ctx context.Context) {
	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	deadline := time.Now().Add(s.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		c.close()
	}
	s.logger.Infow("websocket connections closed", "count", len(conns))
}
