package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"chatline/internal/broker"
	"chatline/internal/model"
)

// sessionState is the protocol state of one subscription connection.
type sessionState int

const (
	stateIdle sessionState = iota
	stateConnected
	stateSubscribed
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnected:
		return "connected"
	case stateSubscribed:
		return "subscribed"
	case stateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransportError ends a single connection with a websocket close code.
type TransportError struct {
	Code   int
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error %d: %s", e.Code, e.Reason)
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		Subprotocols: []string{model.Subprotocol},
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin
			return origin == "" || allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws and GET /graphql
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("[WebSocket] upgrade error")
		return
	}

	s := newSession(h, conn)
	total, ok := h.addSession(s)
	if !ok {
		s.closeWith(websocket.CloseGoingAway, "Server shutting down")
		conn.Close()
		return
	}
	s.log.Info().Int("clients", total).Msg("[WebSocket] New connection")

	s.run()
}

type session struct {
	id   string
	h    *Handler
	conn *websocket.Conn
	log  zerolog.Logger

	state  sessionState
	sub    *broker.Subscription
	subID  string
	subReq model.SubscribePayload

	frames  chan []byte
	readErr chan error
	closed  chan struct{}
}

func newSession(h *Handler, conn *websocket.Conn) *session {
	id := xid.New().String()
	return &session{
		id:      id,
		h:       h,
		conn:    conn,
		log:     h.Log.With().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Logger(),
		state:   stateIdle,
		frames:  make(chan []byte),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

// run drives the connection until it closes. Only run writes data frames, so
// the connection never has two concurrent writers.
func (s *session) run() {
	defer s.close()

	cfg := s.h.Config
	s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	go s.readLoop()

	initTimer := time.NewTimer(cfg.InitTimeout)
	defer initTimer.Stop()
	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	for {
		var events <-chan model.Message
		if s.sub != nil {
			events = s.sub.C()
		}

		select {
		case data := <-s.frames:
			s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
			if err := s.handle(data); err != nil {
				s.fail(err)
				return
			}

		case err := <-s.readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Warn().Err(err).Str("state", s.state.String()).Msg("[WebSocket] Read error")
			}
			return

		case msg, ok := <-events:
			if !ok {
				s.dropped()
				if err := s.write(model.Frame{Type: model.FrameComplete, ID: s.subID}); err != nil {
					return
				}
				s.subID = ""
				continue
			}
			if err := s.sendNext(msg); err != nil {
				s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("[WebSocket] ❌ Failed to deliver message")
				return
			}

		case <-initTimer.C:
			if s.state == stateIdle {
				s.fail(&TransportError{Code: model.CloseInitTimeout, Reason: "Connection initialisation timeout"})
				return
			}

		case <-ping.C:
			deadline := time.Now().Add(cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.log.Debug().Err(err).Msg("[WebSocket] Keepalive ping failed")
				return
			}

		case <-s.h.done:
			s.closeWith(websocket.CloseGoingAway, "Server shutting down")
			return
		}
	}
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr <- err
			return
		}
		select {
		case s.frames <- data:
		case <-s.closed:
			return
		}
	}
}

// handle applies one client frame to the state machine. A returned
// *TransportError closes the connection.
func (s *session) handle(data []byte) error {
	f, err := model.DecodeFrame(data)
	if err != nil {
		return &TransportError{Code: model.CloseBadRequest, Reason: "Invalid message received"}
	}

	switch f.Type {
	case model.FramePing:
		return s.write(model.Frame{Type: model.FramePong})
	case model.FramePong:
		return nil
	case model.FrameConnectionInit:
		if s.state != stateIdle {
			return &TransportError{Code: model.CloseTooManyInitRequest, Reason: "Too many initialisation requests"}
		}
		s.state = stateConnected
		s.log.Debug().Msg("[WebSocket] Connection acknowledged")
		return s.write(model.Frame{Type: model.FrameConnectionAck})
	}

	if s.state == stateIdle {
		return &TransportError{Code: model.CloseUnauthorized, Reason: "Unauthorized"}
	}

	switch f.Type {
	case model.FrameSubscribe:
		return s.subscribe(f)
	case model.FrameComplete:
		if s.state == stateSubscribed && f.ID == s.subID {
			s.release()
			s.log.Debug().Str("id", f.ID).Msg("[WebSocket] Subscription completed by client")
		}
		return nil
	default:
		return &TransportError{Code: model.CloseBadRequest, Reason: fmt.Sprintf("Unexpected message type %q", f.Type)}
	}
}

func (s *session) subscribe(f model.Frame) error {
	if f.ID == "" {
		return &TransportError{Code: model.CloseBadRequest, Reason: "Subscribe message requires an id"}
	}
	if s.state == stateSubscribed {
		if f.ID == s.subID {
			return &TransportError{Code: model.CloseSubscriberExists, Reason: fmt.Sprintf("Subscriber for %s already exists", f.ID)}
		}
		return s.writeError(f.ID, "only one active subscription per connection")
	}

	payload, err := f.DecodeSubscribe()
	if err != nil {
		return &TransportError{Code: model.CloseBadRequest, Reason: "Invalid subscribe payload"}
	}
	if payload.Stream != model.StreamMessageCreated {
		return s.writeError(f.ID, fmt.Sprintf("unknown stream %q", payload.Stream))
	}

	sub, err := s.h.Gateway.Subscribe()
	if err != nil {
		if errors.Is(err, broker.ErrClosed) {
			return s.writeError(f.ID, "server shutting down")
		}
		return err
	}
	s.sub = sub
	s.subID = f.ID
	s.subReq = payload
	s.state = stateSubscribed
	s.log.Info().Str("id", f.ID).Str("subscription", sub.ID()).Msg("[WebSocket] Subscribed")
	return nil
}

func (s *session) sendNext(msg model.Message) error {
	f, err := model.NewFrame(model.FrameNext, s.subID, s.subReq.Result(msg))
	if err != nil {
		return err
	}
	return s.write(f)
}

func (s *session) writeError(id, message string) error {
	f, err := model.NewFrame(model.FrameError, id, []model.ErrorEntry{{Message: message}})
	if err != nil {
		return err
	}
	return s.write(f)
}

func (s *session) write(f model.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.h.Config.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// release gives the broker subscription back and returns to connected.
func (s *session) release() {
	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	s.subID = ""
	if s.state == stateSubscribed {
		s.state = stateConnected
	}
}

// dropped handles the broker ending the subscription on its own.
func (s *session) dropped() {
	s.log.Warn().Str("id", s.subID).Msg("[WebSocket] Subscription dropped by broker")
	s.sub = nil
	s.state = stateConnected
}

func (s *session) fail(err error) {
	var tErr *TransportError
	if errors.As(err, &tErr) {
		s.log.Warn().Int("code", tErr.Code).Str("reason", tErr.Reason).Str("state", s.state.String()).Msg("[WebSocket] ❌ Protocol error")
		s.closeWith(tErr.Code, tErr.Reason)
		return
	}
	s.log.Warn().Err(err).Str("state", s.state.String()).Msg("[WebSocket] ❌ Connection error")
}

func (s *session) closeWith(code int, reason string) {
	deadline := time.Now().Add(s.h.Config.WriteTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// close is the single exit path of every session; it always releases the
// broker subscription.
func (s *session) close() {
	s.release()
	s.state = stateClosed
	close(s.closed)
	s.conn.Close()

	remaining := s.h.removeSession(s)
	s.log.Info().Int("clients", remaining).Msg("[WebSocket] Client disconnected")
}
