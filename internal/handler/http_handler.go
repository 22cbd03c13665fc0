package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/internal/identity"
	"github.com/weiawesome/wes-chat/internal/service"
	"github.com/weiawesome/wes-chat/pkg/log"
	"github.com/weiawesome/wes-chat/pkg/middleware"
	"github.com/weiawesome/wes-chat/pkg/response"
)

// SubscriberCounter reports live subscribers for the health endpoint.
type SubscriberCounter interface {
	Len() int
}

// Handler handles HTTP requests for the chat server.
type Handler struct {
	messages       service.MessageService
	gate           *identity.Gate
	authMiddleware *middleware.AuthMiddleware
	subscribers    SubscriberCounter
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	messages service.MessageService,
	gate *identity.Gate,
	authMiddleware *middleware.AuthMiddleware,
	subscribers SubscriberCounter,
) *Handler {
	return &Handler{
		messages:       messages,
		gate:           gate,
		authMiddleware: authMiddleware,
		subscribers:    subscribers,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
			auth.POST("/logout", h.authMiddleware.RequireAuth(), h.Logout)
			auth.GET("/me", h.authMiddleware.RequireAuth(), h.Me)
		}

		messages := api.Group("/messages")
		{
			messages.GET("", h.ListMessages)
			messages.GET("/:id", h.GetMessage)
			messages.POST("", h.authMiddleware.RequireAuth(), h.CreateMessage)
			messages.PUT("/:id", h.authMiddleware.RequireAuth(), h.EditMessage)
			messages.DELETE("/:id", h.authMiddleware.RequireAuth(), h.DeleteMessage)
		}

		api.GET("/users/:userId/messages", h.ListUserMessages)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.subscribers != nil {
		body["subscribers"] = h.subscribers.Len()
	}
	response.Success(c, body, "healthy")
}

// Register handles user registration and signs the new user in.
func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid register request")
		response.BadRequest(c, "invalid request body")
		return
	}

	user, err := h.gate.Register(ctx, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := h.gate.IssueSessionToken(user)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to issue token after register")
		response.InternalError(c, "failed to issue token")
		return
	}

	response.Created(c, &domain.AuthResponse{
		User:        user,
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
	}, "user registered")
}

// Login handles user login.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid login request")
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.gate.Login(ctx, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result, "login successful")
}

// Logout revokes the caller's token.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.gate.Revoke(c.Request.Context(), middleware.GetToken(c)); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil, "logged out")
}

// Me returns the caller's identity.
func (h *Handler) Me(c *gin.Context) {
	response.Success(c, callerIdentity(c), "")
}

// CreateMessage posts a message as the caller.
func (h *Handler) CreateMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create message request")
		response.BadRequest(c, "invalid request body")
		return
	}

	msg, err := h.messages.Create(ctx, callerIdentity(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Created(c, msg, "message created")
}

// ListMessages returns every message in creation order.
func (h *Handler) ListMessages(c *gin.Context) {
	messages, err := h.messages.GetAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, messages, "")
}

// GetMessage returns one message.
func (h *Handler) GetMessage(c *gin.Context) {
	msg, err := h.messages.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, msg, "")
}

// ListUserMessages returns one author's messages in creation order.
func (h *Handler) ListUserMessages(c *gin.Context) {
	messages, err := h.messages.GetByAuthor(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, messages, "")
}

// EditMessage replaces the content of the caller's message.
func (h *Handler) EditMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid edit message request")
		response.BadRequest(c, "invalid request body")
		return
	}

	msg, err := h.messages.Edit(ctx, callerIdentity(c), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, msg, "message updated")
}

// DeleteMessage removes the caller's message.
func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.messages.Delete(c.Request.Context(), callerIdentity(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil, "message deleted")
}

func callerIdentity(c *gin.Context) domain.UserIdentity {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		return domain.UserIdentity{}
	}
	return domain.UserIdentity{
		ID:          p.UserID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Email:       p.Email,
	}
}

// writeError maps an error kind onto the response envelope. Ownership
// failures answer 403; other authorization failures 401.
func writeError(c *gin.Context, err error) {
	msg := domain.PublicMessage(err)

	switch domain.KindOf(err) {
	case domain.KindInvalid:
		response.BadRequest(c, msg)
	case domain.KindUnauthorized:
		if errors.Is(err, domain.ErrNotOwner) {
			response.Forbidden(c, msg)
			return
		}
		response.Unauthorized(c, msg)
	case domain.KindNotFound:
		response.NotFound(c, msg)
	case domain.KindConflict:
		response.Conflict(c, msg)
	default:
		response.Error(c, http.StatusInternalServerError, msg)
	}
}
