package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, drive.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	event := log.Error()
	if status < http.StatusInternalServerError {
		event = log.Warn()
	}
	event.Err(err).Str("path", c.Request.URL.Path).Msg(message)

	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}

// abortStream ends a streaming response that failed. Before any byte went
// out the prepared headers are dropped and a JSON error is sent; afterwards
// the connection is cut so the client cannot take the body as complete.
func abortStream(c *gin.Context, err error, message string) {
	if !c.Writer.Written() {
		h := c.Writer.Header()
		h.Del("Content-Disposition")
		h.Del("Content-Type")
		respondError(c, err, message)
		return
	}

	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(message + ", aborting connection")
	panic(http.ErrAbortHandler)
}
