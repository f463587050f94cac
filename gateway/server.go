package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"game-relay/domain/event"
	"game-relay/errors"
	"game-relay/observability"
	"game-relay/ratelimit"
	"game-relay/runtime"
	"game-relay/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

var validate = validator.New()

type Options struct {
	BufferSize       int
	HandshakeTimeout time.Duration
}

// Server accepts game clients on a websocket, admits them with their ticket
// and dispatches their events to the services.
type Server struct {
	upgrader websocket.Upgrader
	registry *runtime.Registry
	groups   *services.GroupService
	router   *services.Router
	notifier *services.Notifier
	limiter  *ratelimit.Limiter
	options  Options
	log      *slog.Logger
	metrics  *observability.Metrics
}

func NewServer(registry *runtime.Registry, groups *services.GroupService, router *services.Router,
	notifier *services.Notifier, limiter *ratelimit.Limiter, options Options,
	log *slog.Logger, metrics *observability.Metrics) *Server {
	if options.BufferSize <= 0 {
		options.BufferSize = 64
	}
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = 10 * time.Second
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Game clients are not browsers, the ticket is the credential.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		registry: registry,
		groups:   groups,
		router:   router,
		notifier: notifier,
		limiter:  limiter,
		options:  options,
		log:      log,
		metrics:  metrics,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameSize)

	c := newConn(ws, s.options.BufferSize, s.log, s.metrics)
	go c.writeLoop()

	session, err := s.handshake(c)
	if err != nil {
		s.log.Info("Handshake refused", "remote_addr", r.RemoteAddr, "error", err)
		_ = c.closeWith(websocket.ClosePolicyViolation, "invalid ticket")
		return
	}
	defer func() { _ = c.Close() }()
	defer s.disconnect(session)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.welcome(ctx, session)
	s.readLoop(ctx, c, session)
}

// handshake waits for the first frame, which must carry a valid ticket.
func (s *Server) handshake(c *conn) (*runtime.Session, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(s.options.HandshakeTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidTicket, err)
	}

	var frame inFrame
	if err = json.Unmarshal(data, &frame); err != nil || frame.Event != event.Handshake {
		return nil, fmt.Errorf("%w: first frame is not a handshake", errors.ErrInvalidTicket)
	}
	req, err := decode[event.HandshakeRequest](frame.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidTicket, err)
	}

	session, err := s.registry.Admit(req.UserID, req.ConnectionKey, c)
	if err != nil {
		return nil, err
	}
	s.log.Info("Session admitted", "user_id", session.UserID, "name", session.Name)
	return session, nil
}

// welcome acknowledges the handshake, restores group routing and pushes the
// initial snapshots.
func (s *Server) welcome(ctx context.Context, session *runtime.Session) {
	if err := session.Emit(event.Connected, event.ConnectedPayload{UserID: session.UserID, Name: session.Name}); err != nil {
		s.log.Warn("Unable to acknowledge handshake", "user_id", session.UserID, "error", err)
	}
	if err := s.groups.Bootstrap(ctx, session); err != nil {
		s.log.Error("Unable to restore group routing", "user_id", session.UserID, "error", err)
	}
	if err := s.notifier.SendGroupList(ctx, session); err != nil {
		s.log.Error("Unable to send group list", "user_id", session.UserID, "error", err)
	}
	if err := s.notifier.SendInvitations(ctx, session); err != nil {
		s.log.Error("Unable to send invitations", "user_id", session.UserID, "error", err)
	}
}

func (s *Server) readLoop(ctx context.Context, c *conn, session *runtime.Session) {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Connection lost", "user_id", session.UserID, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame inFrame
		if err = json.Unmarshal(data, &frame); err != nil {
			s.metrics.EventDropped("malformed", "invalid_payload")
			s.log.Debug("Malformed frame dropped", "user_id", session.UserID, "error", err)
			continue
		}
		name := metricName(frame.Event)
		s.metrics.EventReceived(name)
		if !s.limiter.Allow(session.UserID, time.Now()) {
			s.metrics.EventDropped(name, "rate_limited")
			s.log.Debug("Event rate limited", "user_id", session.UserID, "event", frame.Event)
			continue
		}
		s.handleError(session, name, s.dispatch(ctx, session, frame))
	}
}

func (s *Server) disconnect(session *runtime.Session) {
	if s.registry.Remove(session) {
		s.limiter.Forget(session.UserID)
		s.log.Info("Session closed", "user_id", session.UserID)
		return
	}
	s.log.Debug("Superseded session closed", "user_id", session.UserID)
}

// handleError applies the per-error policy: client mistakes are dropped
// quietly, storage failures are logged and the connection stays open.
func (s *Server) handleError(session *runtime.Session, name string, err error) {
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrInvalidPayload):
		s.metrics.EventDropped(name, "invalid_payload")
		s.log.Debug("Invalid payload dropped", "user_id", session.UserID, "event", name, "error", err)
	case stderrors.Is(err, errors.ErrNotMember):
		s.metrics.EventDropped(name, "not_member")
		s.log.Debug("Event from non-member dropped", "user_id", session.UserID, "event", name)
	case stderrors.Is(err, errors.ErrNoSuchInvitation):
		s.metrics.EventDropped(name, "no_invitation")
		s.log.Debug("Event without invitation dropped", "user_id", session.UserID, "event", name)
	case stderrors.Is(err, errors.ErrGroupNotFound):
		s.metrics.EventDropped(name, "group_not_found")
		s.log.Debug("Event for unknown group dropped", "user_id", session.UserID, "event", name)
	default:
		s.metrics.EventDropped(name, "internal")
		s.log.Error("Event handling failed", "user_id", session.UserID, "event", name, "error", err)
	}
}

// CloseAll closes every admitted session. Hijacked connections are not
// tracked by http.Server, so shutdown has to end them here.
func (s *Server) CloseAll() {
	for _, session := range s.registry.Sessions() {
		_ = session.Transport.Close()
	}
}

// decode unmarshals and validates an event payload. A missing payload
// decodes as an empty object.
func decode[T any](data json.RawMessage) (T, error) {
	var req T
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %w", errors.ErrInvalidPayload, err)
	}
	return req, nil
}
