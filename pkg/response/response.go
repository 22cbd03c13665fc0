package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform body of every API response.
type Envelope struct {
	Success    bool        `json:"success"`
	Response   interface{} `json:"response"`
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
}

// New builds an envelope for the given status. Any 2xx status is a success.
func New(statusCode int, data interface{}, message string) Envelope {
	return Envelope{
		Success:    statusCode >= 200 && statusCode < 300,
		Response:   data,
		Message:    message,
		StatusCode: statusCode,
	}
}

// JSON writes an envelope with the given status.
func JSON(c *gin.Context, statusCode int, data interface{}, message string) {
	c.JSON(statusCode, New(statusCode, data, message))
}

// Success sends a 200 response.
func Success(c *gin.Context, data interface{}, message string) {
	JSON(c, http.StatusOK, data, message)
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}, message string) {
	JSON(c, http.StatusCreated, data, message)
}

// Error sends an error response with a null payload.
func Error(c *gin.Context, statusCode int, message string) {
	JSON(c, statusCode, nil, message)
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, New(statusCode, nil, message))
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
