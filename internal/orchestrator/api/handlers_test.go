//go:build !windows

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpilot/taskpilot/internal/agents"
	"github.com/taskpilot/taskpilot/internal/common/logger"
	"github.com/taskpilot/taskpilot/internal/fallback"
	"github.com/taskpilot/taskpilot/internal/orchestrator"
	"github.com/taskpilot/taskpilot/internal/orchestrator/streaming"
	"github.com/taskpilot/taskpilot/internal/process"
	"github.com/taskpilot/taskpilot/internal/session"
)

func newTestRouter(t *testing.T, script string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)

	dir := t.TempDir()
	exe := filepath.Join(dir, "fake-claude")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	overrides := filepath.Join(dir, "agents.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte("claude:\n  executable: fake-claude\n"), 0o644))
	catalog := agents.DefaultCatalog()
	require.NoError(t, catalog.LoadOverrides(overrides))

	svc := orchestrator.NewService(
		catalog,
		process.NewSupervisor(log),
		session.NewTracker(),
		fallback.NewScript(fallback.Config{}, log),
		log,
	)
	runner := orchestrator.NewRunner(svc, nil, nil, log)
	hub := streaming.NewHub(log)

	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), runner, hub, log)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListAgents(t *testing.T) {
	router := newTestRouter(t, "exit 0")

	w := doJSON(t, router, http.MethodGet, "/api/v1/agents", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Agents []agents.Availability `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Agents)

	var claude *agents.Availability
	for i := range resp.Agents {
		if resp.Agents[i].ID == "claude" {
			claude = &resp.Agents[i]
		}
	}
	require.NotNil(t, claude)
	assert.True(t, claude.Available)
}

func TestCreateExecutionValidation(t *testing.T) {
	router := newTestRouter(t, "exit 0")

	tests := []struct {
		name string
		body string
	}{
		{"missing prompt", `{"tool":"claude"}`},
		{"missing tool", `{"prompt":"fix bug"}`},
		{"unknown tool", `{"tool":"no-such-tool","prompt":"fix bug"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/executions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreateAndPollExecution(t *testing.T) {
	router := newTestRouter(t, `echo '{"type":"result","result":"done"}'`)

	w := doJSON(t, router, http.MethodPost, "/api/v1/executions",
		`{"tool":"claude","prompt":"fix bug"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var created CreateExecutionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	var exec orchestrator.Execution
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/executions/%s", created.ID), "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exec))
		if exec.Status != orchestrator.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution stuck in status %q", exec.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, orchestrator.StatusCompleted, exec.Status)
	require.NotNil(t, exec.Result)
	assert.True(t, exec.Result.Success)

	// The record also shows up in the listing.
	w = doJSON(t, router, http.MethodGet, "/api/v1/executions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID)
}

func TestGetExecutionNotFound(t *testing.T) {
	router := newTestRouter(t, "exit 0")

	w := doJSON(t, router, http.MethodGet, "/api/v1/executions/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
