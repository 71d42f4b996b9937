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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Somnus/services/advisor/agent"
	"github.com/AleutianAI/Somnus/services/advisor/datatypes"
	"github.com/AleutianAI/Somnus/services/advisor/observability"
	"github.com/AleutianAI/Somnus/services/advisor/retrieval"
)

// dialChat starts a test server around the chat handler and dials it.
func dialChat(t *testing.T, loop *agent.Loop, metrics *observability.AdvisorMetrics) *websocket.Conn {
	t.Helper()

	router := gin.New()
	router.GET("/v1/chat", HandleChatWebSocket(loop, metrics))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readGreeting consumes the session_created message sent on connect.
func readGreeting(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()

	var greeting map[string]interface{}
	require.NoError(t, ws.ReadJSON(&greeting))
	return greeting
}

func TestChatWebSocket_SessionCreated(t *testing.T) {
	loop := newTestLoop(t, passGate{}, stubRetriever{}, confidentGenerate)

	ws := dialChat(t, loop, newTestMetrics())
	greeting := readGreeting(t, ws)

	assert.Equal(t, "session_created", greeting["action"])
	sessionID, _ := greeting["sessionId"].(string)
	assert.NotEmpty(t, sessionID)
}

func TestChatWebSocket_Turn(t *testing.T) {
	retr := stubRetriever{candidates: []retrieval.RankedCandidate{
		testCandidate("somnus-value", 550000, 0.92),
		testCandidate("somnus-grand", 780000, 0.81),
	}}
	loop := newTestLoop(t, passGate{}, retr, confidentGenerate)
	metrics := newTestMetrics()

	ws := dialChat(t, loop, metrics)
	readGreeting(t, ws)

	require.NoError(t, ws.WriteJSON(WSRequest{Query: "매트리스 추천해주세요"}))

	var resp WSResponse
	require.NoError(t, ws.ReadJSON(&resp))

	assert.Empty(t, resp.Error)
	assert.Equal(t, "조건에 맞는 제품을 추천드립니다.", resp.Answer)
	assert.Equal(t, 1, resp.Rounds)
	require.Len(t, resp.Products, 2)
	assert.Equal(t, "somnus-value", resp.Products[0].ID)

	answered := testutil.ToFloat64(metrics.TurnsTotal.WithLabelValues("websocket", "answered"))
	assert.Equal(t, float64(1), answered)
	active := testutil.ToFloat64(metrics.ActiveChatSessions.WithLabelValues("websocket"))
	assert.Equal(t, float64(1), active)
}

func TestChatWebSocket_HistoryCarriesBudget(t *testing.T) {
	affordable := testCandidate("somnus-value", 450000, 0.80)
	affordable.Product.HealthSuitability = []string{datatypes.TagBackPain}
	expensive := testCandidate("somnus-grand", 900000, 0.95)

	retr := stubRetriever{candidates: []retrieval.RankedCandidate{affordable, expensive}}
	loop := newTestLoop(t, passGate{}, retr, confidentGenerate)

	ws := dialChat(t, loop, newTestMetrics())
	readGreeting(t, ws)

	// Turn 1 states the budget.
	require.NoError(t, ws.WriteJSON(WSRequest{Query: "예산은 50만원 이하로 부탁해요"}))
	var first WSResponse
	require.NoError(t, ws.ReadJSON(&first))
	require.Empty(t, first.Error)
	require.Len(t, first.Products, 1)
	assert.Equal(t, "somnus-value", first.Products[0].ID)

	// Turn 2 never repeats the budget, the session carries it.
	require.NoError(t, ws.WriteJSON(WSRequest{Query: "허리에 좋은 매트리스 추천해주세요"}))
	var second WSResponse
	require.NoError(t, ws.ReadJSON(&second))
	require.Empty(t, second.Error)
	require.Len(t, second.Products, 1)
	assert.Equal(t, "somnus-value", second.Products[0].ID)
}

func TestChatWebSocket_EmptyQuery(t *testing.T) {
	loop := newTestLoop(t, passGate{}, stubRetriever{}, confidentGenerate)

	ws := dialChat(t, loop, newTestMetrics())
	readGreeting(t, ws)

	require.NoError(t, ws.WriteJSON(WSRequest{Query: "   "}))

	var resp WSResponse
	require.NoError(t, ws.ReadJSON(&resp))
	assert.Equal(t, "empty query", resp.Error)
}

func TestChatWebSocket_GaugeDropsOnDisconnect(t *testing.T) {
	loop := newTestLoop(t, passGate{}, stubRetriever{}, confidentGenerate)
	metrics := newTestMetrics()

	ws := dialChat(t, loop, metrics)
	readGreeting(t, ws)

	active := testutil.ToFloat64(metrics.ActiveChatSessions.WithLabelValues("websocket"))
	require.Equal(t, float64(1), active)

	ws.Close()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.ActiveChatSessions.WithLabelValues("websocket")) == 0
	}, time.Second, 10*time.Millisecond)
}
