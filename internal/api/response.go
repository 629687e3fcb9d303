package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "nse-agent/internal/errors"
)

type envelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Status: "success", Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{Status: "error", Error: &errorBody{Code: code, Message: message}})
}

// classify maps an agent error onto an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, apperrors.ErrBusy):
		return http.StatusConflict, "BUSY"
	case errors.Is(err, apperrors.ErrPrecondition):
		return http.StatusConflict, "PRECONDITION_FAILED"
	case errors.Is(err, apperrors.ErrInsufficientCapital):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_CAPITAL"
	case errors.Is(err, apperrors.ErrDataUnavailable):
		return http.StatusServiceUnavailable, "DATA_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func failErr(c *gin.Context, logger zerolog.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", c.GetString("request_id")).
			Msg("Request failed")
		msg = "internal error"
	} else if status == http.StatusUnprocessableEntity {
		logger.Info().Err(err).Str("path", c.Request.URL.Path).Msg("Execution declined")
	}
	fail(c, status, code, msg)
}
