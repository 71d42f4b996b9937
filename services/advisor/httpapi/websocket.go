// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/Somnus/services/advisor/agent"
	"github.com/AleutianAI/Somnus/services/advisor/observability"
	"github.com/AleutianAI/Somnus/services/advisor/session"
)

// WSRequest is one inbound chat message.
type WSRequest struct {
	Query string `json:"query"`
}

// WSResponse is one chat reply.
type WSResponse struct {
	Answer           string           `json:"answer"`
	Rounds           int              `json:"rounds"`
	AvgSimilarity    float64          `json:"avg_similarity"`
	EnhancementsUsed []string         `json:"enhancements_used"`
	Redirected       bool             `json:"redirected"`
	Products         []ProductSummary `json:"products,omitempty"`
	Error            string           `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleChatWebSocket runs a turn loop over one connection. Each
// connection owns a session, so budget and health constraints from
// earlier turns carry forward.
func HandleChatWebSocket(loop *agent.Loop, metrics *observability.AdvisorMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		sessionID := uuid.New().String()
		hist := session.New()
		logger := observability.LoggerWithSession(c.Request.Context(), slog.Default(), sessionID)
		logger.Info("Websocket chat session started")

		if metrics != nil {
			metrics.ChatStarted(observability.TransportWebsocket)
			defer metrics.ChatEnded(observability.TransportWebsocket)
		}

		if err := sendJSON(ws, map[string]interface{}{
			"action":    "session_created",
			"sessionId": sessionID,
		}); err != nil {
			return
		}

		for {
			var req WSRequest
			if err := ws.ReadJSON(&req); err != nil {
				logger.Info("Websocket chat session ended", "error", err.Error())
				break
			}

			query := strings.TrimSpace(req.Query)
			if query == "" {
				if err := sendJSON(ws, WSResponse{Error: "empty query"}); err != nil {
					return
				}
				continue
			}

			start := time.Now()
			result, err := loop.Run(c.Request.Context(), query, hist)
			elapsed := time.Since(start).Seconds()
			if err != nil {
				logger.Error("Turn failed", "error", err)
				recordTurn(metrics, observability.TransportWebsocket, observability.OutcomeError, elapsed, 0, 0)
				if err := sendJSON(ws, WSResponse{Error: err.Error()}); err != nil {
					return
				}
				continue
			}

			hist.Append(session.Turn{
				UserQuery:        query,
				AIResponse:       result.Answer,
				ProcessingTime:   elapsed,
				AvgSimilarity:    result.AvgSimilarity,
				EnhancementsUsed: result.Enhancements,
			})
			recordResult(metrics, observability.TransportWebsocket, result, elapsed)

			resp := WSResponse{
				Answer:           result.Answer,
				Rounds:           result.Rounds(),
				AvgSimilarity:    result.AvgSimilarity,
				EnhancementsUsed: result.Enhancements,
				Redirected:       result.Redirected,
				Products:         productSummaries(result.Candidates),
			}
			if err := sendJSON(ws, resp); err != nil {
				return
			}
		}
	}
}
