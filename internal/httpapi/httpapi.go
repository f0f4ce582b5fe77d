// Package httpapi exposes the cell engine over HTTP.
//
// Routes:
//
//	GET  /:sheet_id                          read a whole sheet
//	GET  /:sheet_id/:cell_id                 read one cell
//	POST /:sheet_id/:cell_id                 write a literal or formula
//	POST /:sheet_id/:cell_id/subscribe       register a change webhook
//	POST /webhook/subscriptions/:id          push from an external service
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cellflow/cellflow/internal/engine"
	"github.com/cellflow/cellflow/internal/store"
)

// Server wires the engine into a gin router.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Option allows configuration of server parameters.
type Option func(*Server)

// WithLogger sets the logger for request diagnostics.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server over the engine.
func NewServer(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine: e,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route tree. The webhook push route is static so it
// never collides with sheet names.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/webhook/subscriptions/:id", s.handleExternalPush)
	r.GET("/:sheet_id", s.handleGetSheet)
	r.GET("/:sheet_id/:cell_id", s.handleGetCell)
	r.POST("/:sheet_id/:cell_id", s.handleSetCell)
	r.POST("/:sheet_id/:cell_id/subscribe", s.handleSubscribe)
	return r
}

// cellResponse is the wire shape for one cell.
type cellResponse struct {
	SheetID string `json:"sheet_id"`
	CellID  string `json:"cell_id"`
	Value   string `json:"value"`
	Result  string `json:"result"`
}

func toCellResponse(cell store.Cell) cellResponse {
	return cellResponse{
		SheetID: cell.SheetID,
		CellID:  cell.CellID,
		Value:   cell.Value,
		Result:  cell.Result,
	}
}

func (s *Server) handleGetSheet(c *gin.Context) {
	sheetID := c.Param("sheet_id")
	cells, err := s.engine.GetSheet(c.Request.Context(), sheetID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make(map[string]gin.H, len(cells))
	for _, cell := range cells {
		out[cell.CellID] = gin.H{"value": cell.Value, "result": cell.Result}
	}
	c.JSON(http.StatusOK, gin.H{"sheet_id": cells[0].SheetID, "cells": out})
}

func (s *Server) handleGetCell(c *gin.Context) {
	cell, err := s.engine.GetCell(c.Request.Context(), c.Param("sheet_id"), c.Param("cell_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCellResponse(cell))
}

type setCellRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetCell(c *gin.Context) {
	var req setCellRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object with a value field"})
		return
	}
	cell, err := s.engine.SetCell(c.Request.Context(), c.Param("sheet_id"), c.Param("cell_id"), req.Value)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCellResponse(cell))
}

type subscribeRequest struct {
	WebhookURL string `json:"webhook_url"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.BindJSON(&req); err != nil || req.WebhookURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object with a webhook_url field"})
		return
	}
	id, err := s.engine.Subscribe(c.Request.Context(), c.Param("sheet_id"), c.Param("cell_id"), req.WebhookURL)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subscription_id": id})
}

type externalPushRequest struct {
	Result *string `json:"result"`
}

func (s *Server) handleExternalPush(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription id must be numeric"})
		return
	}
	var req externalPushRequest
	if err := c.BindJSON(&req); err != nil || req.Result == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object with a result field"})
		return
	}
	if err := s.engine.HandleExternalUpdate(c.Request.Context(), id, *req.Result); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
