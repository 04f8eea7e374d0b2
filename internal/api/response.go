package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "Internal Server Error"

// envelope is the uniform body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(c *gin.Context, data any)                  { c.JSON(http.StatusOK, envelope{Success: true, Data: data}) }
func Accepted(c *gin.Context, data any)            { c.JSON(http.StatusAccepted, envelope{Success: true, Data: data}) }
func Error(c *gin.Context, status int, msg string) { c.JSON(status, envelope{Success: false, Error: msg}) }

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
}

func AbortInternal(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{Success: false, Error: internalErrorMessage})
}

func Unauthorized(c *gin.Context)                { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string)      { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)       { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)        { Error(c, http.StatusNotFound, msg) }
func Gone(c *gin.Context, msg string)            { Error(c, http.StatusGone, msg) }
func TooManyRequests(c *gin.Context, msg string) { Error(c, http.StatusTooManyRequests, msg) }
func Internal(c *gin.Context)                    { Error(c, http.StatusInternalServerError, internalErrorMessage) }
