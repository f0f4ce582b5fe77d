package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cellflow/cellflow/internal/engine"
	"github.com/cellflow/cellflow/internal/external"
	"github.com/cellflow/cellflow/internal/formula"
	"github.com/cellflow/cellflow/internal/store"
)

// writeError maps engine and formula errors onto HTTP statuses.
//
//	400  malformed input: parse errors, unknown functions, undefined
//	     variables
//	404  unknown sheet, cell, or subscription
//	422  writes rejected during evaluation: cycles, type errors,
//	     division by zero, failed external fetches
//	500  everything else
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case engine.RecalcCode(err) == engine.ErrCodeUnknownSubscription:
		status = http.StatusNotFound
	case formula.IsParseError(err):
		status = http.StatusBadRequest
	case formula.EvalCode(err) == formula.ErrCodeUnknownFunction:
		status = http.StatusBadRequest
		body["code"] = string(formula.ErrCodeUnknownFunction)
	case engine.IsUnresolvedVariable(err):
		status = http.StatusBadRequest
		body["code"] = string(engine.ErrCodeUnresolvedVariable)
	case engine.IsCircularReference(err):
		status = http.StatusUnprocessableEntity
		body["code"] = string(engine.ErrCodeCircularReference)
	case formula.EvalCode(err) != "":
		status = http.StatusUnprocessableEntity
		body["code"] = string(formula.EvalCode(err))
	case external.FetchCode(err) != "":
		status = http.StatusUnprocessableEntity
		body["code"] = string(external.FetchCode(err))
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err)
		body = gin.H{"error": "internal error"}
	}
	c.JSON(status, body)
}
