package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-chat/internal/config"
	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/internal/hub"
	"github.com/weiawesome/wes-chat/internal/identity"
	"github.com/weiawesome/wes-chat/internal/service"
	"github.com/weiawesome/wes-chat/pkg/log"
	"github.com/weiawesome/wes-chat/pkg/response"
)

const replyTimeout = 10 * time.Second

// WSHandler upgrades clients to websocket subscribers of the hub.
type WSHandler struct {
	hub      *hub.Hub
	messages service.MessageService
	gate     *identity.Gate
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(h *hub.Hub, messages service.MessageService, gate *identity.Gate, cfg config.WebSocketConfig) *WSHandler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WSHandler{
		hub:      h,
		messages: messages,
		gate:     gate,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// wsSession is the per-connection state owned by the read loop. token is
// kept so every post re-checks expiry and revocation.
type wsSession struct {
	subscriptionID string
	transport      *wsTransport
	identity       *domain.UserIdentity
	token          string
}

func (s *wsSession) authenticate(id domain.UserIdentity, token string) {
	s.identity = &id
	s.token = token
}

func (s *wsSession) forget() {
	s.identity = nil
	s.token = ""
}

// HandleWebSocket upgrades the request. An optional ?token= authenticates
// the subscriber up front; an invalid token is rejected before upgrade.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	session := &wsSession{}
	if token := c.Query("token"); token != "" {
		id, err := h.gate.ValidateToken(ctx, token)
		if err != nil {
			response.Unauthorized(c, domain.PublicMessage(err))
			return
		}
		session.authenticate(id, token)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session.transport = newWSTransport(conn, h.writeWait())
	userID := ""
	if session.identity != nil {
		userID = session.identity.ID
	}

	subID, err := h.hub.Subscribe(session.transport, userID)
	if err != nil {
		l.Warn().Err(err).Msg("hub rejected subscriber")
		_ = session.transport.Close()
		return
	}
	session.subscriptionID = subID

	ctx = log.WithStr(ctx, log.FieldSubscriptionID, subID)
	l = log.Ctx(ctx)
	l.Info().Str(log.FieldUserID, userID).Msg("websocket connected")

	stop := make(chan struct{})
	go h.pingLoop(session, stop)

	h.readLoop(ctx, session)

	close(stop)
	h.hub.Unsubscribe(subID)
	l.Info().Msg("websocket disconnected")
}

func (h *WSHandler) writeWait() time.Duration {
	if h.cfg.PongWait > 0 {
		return h.cfg.PongWait / 6
	}
	return 10 * time.Second
}

func (h *WSHandler) readLoop(ctx context.Context, s *wsSession) {
	l := log.Ctx(ctx)
	conn := s.transport.conn

	if h.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageSize)
	}
	if h.cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		if h.cfg.PongWait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		}

		h.handleMessage(ctx, s, message)
	}
}

func (h *WSHandler) pingLoop(s *wsSession, stop <-chan struct{}) {
	if h.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.transport.ping(); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) handleMessage(ctx context.Context, s *wsSession, message []byte) {
	l := log.Ctx(ctx)

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		h.reply(ctx, s, domain.NewErrorMessage(domain.Invalidf("invalid message format")))
		return
	}

	switch base.Type {
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(ctx, s, domain.NewErrorMessage(domain.Invalidf("invalid auth message")))
			return
		}
		id, err := h.gate.ValidateToken(ctx, msg.Token)
		if err != nil {
			h.reply(ctx, s, &domain.AuthResultMessage{Type: domain.MsgTypeAuthResult, Success: false, Message: domain.PublicMessage(err)})
			return
		}
		s.authenticate(id, msg.Token)
		l.Debug().Str(log.FieldUserID, id.ID).Msg("websocket authenticated")
		h.reply(ctx, s, &domain.AuthResultMessage{
			Type:        domain.MsgTypeAuthResult,
			Success:     true,
			UserID:      id.ID,
			DisplayName: id.DisplayName,
		})

	case domain.MsgTypeChatMessage:
		var msg domain.ChatMessageWS
		if err := json.Unmarshal(message, &msg); err != nil {
			h.reply(ctx, s, domain.NewErrorMessage(domain.Invalidf("invalid chat_message")))
			return
		}
		if s.identity == nil {
			h.reply(ctx, s, domain.NewErrorMessage(domain.ErrAuthRequired))
			return
		}
		id, err := h.gate.ValidateToken(ctx, s.token)
		if err != nil {
			l.Debug().Str(log.FieldUserID, s.identity.ID).Msg("websocket session token no longer valid")
			s.forget()
			h.reply(ctx, s, domain.NewErrorMessage(err))
			return
		}
		created, err := h.messages.Create(ctx, id, msg.Content)
		if err != nil {
			h.reply(ctx, s, domain.NewErrorMessage(err))
			return
		}
		h.reply(ctx, s, &domain.MessageAck{Type: domain.MsgTypeMessageAck, MessageID: created.ID})

	case domain.MsgTypePing:
		h.reply(ctx, s, &domain.PongMessage{Type: domain.MsgTypePong})

	default:
		h.reply(ctx, s, domain.NewErrorMessage(domain.Invalidf("unknown message type: %s", base.Type)))
	}
}

func (h *WSHandler) reply(ctx context.Context, s *wsSession, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to marshal websocket reply")
		return
	}

	sendCtx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	if err := s.transport.Send(sendCtx, data); err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Msg("websocket reply failed")
	}
}
