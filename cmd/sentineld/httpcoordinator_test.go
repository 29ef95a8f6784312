package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"sentinel/internal/hook"
)

func TestHealthzReturnsOK(t *testing.T) {
	c := newHTTPCoordinator()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	c.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestRegisterHookWiresRouteOnFirstRegistration(t *testing.T) {
	c := newHTTPCoordinator()
	called := false
	err := c.RegisterHook("orchestrator:complete", 5, func(ctx context.Context, eventName string, event hook.Event) (hook.Result, error) {
		called = true
		return hook.ResultContinue, nil
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hooks/orchestrator:complete", bytes.NewReader([]byte(`{}`)))
	c.ServeHTTP(rec, req)

	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)

	var result hook.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "continue", result.Action)
}

func TestTriggerHandlerRejectsNonPost(t *testing.T) {
	c := newHTTPCoordinator()
	require.NoError(t, c.RegisterHook("orchestrator:complete", 5, func(ctx context.Context, eventName string, event hook.Event) (hook.Result, error) {
		return hook.ResultContinue, nil
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/hooks/orchestrator:complete", nil)
	c.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTriggerHandlerToleratesEmptyBody(t *testing.T) {
	c := newHTTPCoordinator()
	require.NoError(t, c.RegisterHook("orchestrator:complete", 5, func(ctx context.Context, eventName string, event hook.Event) (hook.Result, error) {
		return hook.ResultContinue, nil
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hooks/orchestrator:complete", nil)
	c.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTriggerHandlerRunsHandlersInPriorityOrderAndKeepsLastNonContinue(t *testing.T) {
	c := newHTTPCoordinator()
	var order []int

	require.NoError(t, c.RegisterHook("orchestrator:complete", 10, func(ctx context.Context, eventName string, event hook.Event) (hook.Result, error) {
		order = append(order, 10)
		return hook.Result{Action: "inject_context", ContextInjection: "from-low-priority"}, nil
	}))
	require.NoError(t, c.RegisterHook("orchestrator:complete", 1, func(ctx context.Context, eventName string, event hook.Event) (hook.Result, error) {
		order = append(order, 1)
		return hook.ResultContinue, nil
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hooks/orchestrator:complete", bytes.NewReader([]byte(`{}`)))
	c.ServeHTTP(rec, req)

	require.Equal(t, []int{1, 10}, order)

	var result hook.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "inject_context", result.Action)
	require.Equal(t, "from-low-priority", result.ContextInjection)
}

func TestTriggerHandlerInvalidJSONReturnsBadRequest(t *testing.T) {
	c := newHTTPCoordinator()
	require.NoError(t, c.RegisterHook("orchestrator:complete", 5, func(ctx context.Context, eventName string, event hook.Event) (hook.Result, error) {
		return hook.ResultContinue, nil
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/hooks/orchestrator:complete", bytes.NewReader([]byte(`not json`)))
	c.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
