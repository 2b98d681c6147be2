package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/config"
	"github.com/flitsinc/agentboard/internal/eventlog"
	"github.com/flitsinc/agentboard/internal/messages"
	"github.com/flitsinc/agentboard/internal/missions"
	"github.com/flitsinc/agentboard/internal/policies"
	"github.com/flitsinc/agentboard/internal/status"
	"github.com/flitsinc/agentboard/internal/testutil"
)

const testKey = "secret"

func newTestServer(t *testing.T, apiKey string, limit config.RateLimitConfig) *http.Client {
	t.Helper()
	store, _ := testutil.OpenTestStore(t)
	registry := agents.NewRegistry(store, nil, nil)
	require.NoError(t, registry.Seed(context.Background()))
	log := eventlog.NewLog(store, nil)

	server := &Server{
		Store:     store,
		Registry:  registry,
		Log:       log,
		Missions:  missions.NewTracker(store, nil),
		Messages:  messages.NewBus(store, nil),
		Policies:  policies.NewStore(store),
		Status:    status.NewAggregator(store, registry, log),
		APIKey:    apiKey,
		RateLimit: limit,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return testutil.NewInProcessClient(server.Handler(ctx))
}

func TestWriteAuth(t *testing.T) {
	client := newTestServer(t, "", config.RateLimitConfig{})
	resp := testutil.DoJSON(t, client, http.MethodPost, "/api/events", testKey, map[string]any{"agentId": "main", "type": "note", "message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "API key not configured", body["error"])

	client = newTestServer(t, testKey, config.RateLimitConfig{})
	resp = testutil.DoJSON(t, client, http.MethodPost, "/api/events", "wrong", map[string]any{"agentId": "main", "type": "note", "message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	resp.Body.Close()
}

func TestStatusReportFlowsIntoSnapshot(t *testing.T) {
	client := newTestServer(t, testKey, config.RateLimitConfig{})

	resp := testutil.DoJSON(t, client, http.MethodPost, "/api/agents/engineering/status", testKey, map[string]any{"status": "working", "currentTask": "ship it"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var agent agents.Agent
	testutil.DecodeJSON(t, resp, &agent)
	assert.Equal(t, agents.StatusWorking, agent.Status)

	resp = testutil.DoJSON(t, client, http.MethodGet, "/status.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap status.Snapshot
	testutil.DecodeJSON(t, resp, &snap)
	assert.Equal(t, agents.StatusWorking, snap.Agents["engineering"].Status)
	require.Len(t, snap.Activity, 1)
	assert.Equal(t, eventlog.TypeStatusChange, snap.Activity[0].Type)
	assert.Equal(t, "Status: working — ship it", snap.Activity[0].Message)

	resp = testutil.DoJSON(t, client, http.MethodPost, "/api/agents/engineering/status", testKey, map[string]any{"status": "napping"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEventsEndpoint(t *testing.T) {
	client := newTestServer(t, testKey, config.RateLimitConfig{})

	resp := testutil.DoJSON(t, client, http.MethodPost, "/api/events", testKey, map[string]any{"agentId": "main", "type": "note"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 3; i++ {
		resp = testutil.DoJSON(t, client, http.MethodPost, "/api/events", testKey, map[string]any{"agentId": "main", "type": "note", "message": fmt.Sprintf("n%d", i)})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp = testutil.DoJSON(t, client, http.MethodGet, "/api/events?limit=2&agent=main", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []eventlog.Event
	testutil.DecodeJSON(t, resp, &events)
	require.Len(t, events, 2)
	assert.Equal(t, "n2", events[0].Message)
}

func TestMissionEndpoints(t *testing.T) {
	client := newTestServer(t, testKey, config.RateLimitConfig{})

	resp := testutil.DoJSON(t, client, http.MethodPost, "/api/missions", testKey, map[string]any{"title": "Launch", "agentId": "nobody"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodPost, "/api/missions", testKey, map[string]any{"title": "Launch", "agentId": "marketing"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var m missions.Mission
	testutil.DecodeJSON(t, resp, &m)
	assert.Equal(t, missions.StatusProposed, m.Status)

	path := fmt.Sprintf("/api/missions/%d", m.ID)
	resp = testutil.DoJSON(t, client, http.MethodPost, path+"/steps", testKey, map[string]any{"kind": "draft", "description": "write copy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var step missions.Step
	testutil.DecodeJSON(t, resp, &step)

	resp = testutil.DoJSON(t, client, http.MethodPatch, fmt.Sprintf("%s/steps/%d", path, step.ID), testKey, map[string]any{"status": "succeeded", "result": "done"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodPatch, path, testKey, map[string]any{"status": "succeeded", "description": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &m)
	assert.NotNil(t, m.CompletedAt)
	require.NotNil(t, m.ProgressPct)
	assert.Equal(t, 100, *m.ProgressPct)

	resp = testutil.DoJSON(t, client, http.MethodGet, "/api/missions?status=running,succeeded", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []missions.Mission
	testutil.DecodeJSON(t, resp, &list)
	assert.Len(t, list, 1)

	resp = testutil.DoJSON(t, client, http.MethodGet, "/api/missions/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodPatch, fmt.Sprintf("/api/missions/999/steps/%d", step.ID), testKey, map[string]any{"status": "failed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestMessageAndPolicyEndpoints(t *testing.T) {
	client := newTestServer(t, testKey, config.RateLimitConfig{})

	resp := testutil.DoJSON(t, client, http.MethodPost, "/api/messages", testKey, map[string]any{"from": "main", "to": "legal", "body": "review?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg messages.Message
	testutil.DecodeJSON(t, resp, &msg)
	assert.Equal(t, messages.StatusPending, msg.Status)

	resp = testutil.DoJSON(t, client, http.MethodPatch, fmt.Sprintf("/api/messages/%d", msg.ID), testKey, map[string]any{"status": "read"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &msg)
	assert.NotNil(t, msg.ReadAt)

	resp = testutil.DoJSON(t, client, http.MethodGet, "/api/messages/counts?agent=legal", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var counts messages.Counts
	testutil.DecodeJSON(t, resp, &counts)
	assert.Equal(t, messages.Counts{Pending: 0, Read: 1, Total: 1}, counts)

	resp = testutil.DoJSON(t, client, http.MethodPut, "/api/policies/spend.cap", testKey, map[string]any{"value": map[string]any{"usd": 50}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodGet, "/api/policies/spend.cap", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p policies.Policy
	testutil.DecodeJSON(t, resp, &p)
	assert.Equal(t, map[string]any{"usd": 50.0}, p.Value)
}

func TestRateLimitOnWrites(t *testing.T) {
	client := newTestServer(t, testKey, config.RateLimitConfig{RequestsPerMin: 1, Burst: 1})

	payload := map[string]any{"agentId": "main", "type": "note", "message": "hi"}
	resp := testutil.DoJSON(t, client, http.MethodPost, "/api/events", testKey, payload)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodPost, "/api/events", testKey, payload)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestStatusJSONUsesDashboardKeys(t *testing.T) {
	client := newTestServer(t, testKey, config.RateLimitConfig{})

	resp := testutil.DoJSON(t, client, http.MethodPost, "/api/agents/writer/status", testKey, map[string]any{"status": "active", "currentTask": "draft"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = testutil.DoJSON(t, client, http.MethodGet, "/status.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	testutil.DecodeJSON(t, resp, &body)

	agentsByID, ok := body["agents"].(map[string]any)
	require.True(t, ok)
	writer, ok := agentsByID["writer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "draft", writer["currentTask"])
	assert.Contains(t, writer, "updatedAt")
	assert.Contains(t, writer, "pendingMessages")
	assert.NotContains(t, writer, "current_task")

	activity, ok := body["activity"].([]any)
	require.True(t, ok)
	require.Len(t, activity, 1)
	entry, ok := activity[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Lee", entry["agentName"])
	assert.Contains(t, entry, "timestamp")
}
