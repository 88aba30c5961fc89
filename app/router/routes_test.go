package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/wa-pool/app/handlers"
	"github.com/amirphl/wa-pool/app/middleware"
	"github.com/amirphl/wa-pool/app/services"
	businessflow "github.com/amirphl/wa-pool/business_flow"
	"github.com/amirphl/wa-pool/config"
	testingutil "github.com/amirphl/wa-pool/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

type routerFixture struct {
	router  Router
	repo    *testingutil.MemoryChannelRepository
	audit   *testingutil.MemoryAuditLogRepository
	gateway *testingutil.ScriptedGateway
	tokens  services.TokenService
	healthy error
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	cfg := &config.ProductionConfig{
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Pool:    config.PoolConfig{TargetSize: 2, RefillThreshold: 1, AssignAttempts: 3},
	}
	repo := testingutil.NewMemoryChannelRepository()
	audit := testingutil.NewMemoryAuditLogRepository()
	gw := testingutil.NewScriptedGateway()
	logger := zerolog.Nop()

	tokens, err := services.NewTokenService(time.Hour, "wa-pool", "wa-pool-api", "test-secret")
	require.NoError(t, err)

	pool := businessflow.NewChannelPool(repo, audit, gw, logger)
	connect := businessflow.NewConnectFlow(pool, gw, &testingutil.RefillRecorder{}, nil, cfg.Pool.AssignAttempts, logger)
	admin := businessflow.NewAdminChannelFlow(pool, audit, cfg.Pool.TargetSize, cfg.Pool.RefillThreshold)

	f := &routerFixture{repo: repo, audit: audit, gateway: gw, tokens: tokens}
	f.router = NewFiberRouter(
		cfg,
		handlers.NewChannelHandler(connect, logger),
		handlers.NewChannelAdminHandler(admin, logger),
		middleware.NewAuthMiddleware(tokens),
		map[string]HealthCheck{"database": func(context.Context) error { return f.healthy }},
		logger,
	)
	f.router.SetupRoutes()
	return f
}

func (f *routerFixture) tenantToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := f.tokens.GenerateTenantToken(tenantID)
	require.NoError(t, err)
	return token
}

func (f *routerFixture) adminToken(t *testing.T) string {
	t.Helper()
	token, err := f.tokens.GenerateAdminToken("admin-1")
	require.NoError(t, err)
	return token
}

func (f *routerFixture) do(t *testing.T, method, path, token, body string) (*http.Response, apiEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.router.GetApp().Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env apiEnvelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func TestRoutes_Health(t *testing.T) {
	f := newRouterFixture(t)

	resp, env := f.do(t, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	f.healthy = errors.New("connection refused")
	resp, env = f.do(t, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestRoutes_Metrics(t *testing.T) {
	f := newRouterFixture(t)
	f.do(t, http.MethodGet, "/api/v1/health", "", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := f.router.GetApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRoutes_TenantAuth(t *testing.T) {
	f := newRouterFixture(t)

	resp, env := f.do(t, http.MethodPost, "/api/v1/channel/connect", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_AUTHORIZATION_HEADER", env.Error.Code)

	resp, env = f.do(t, http.MethodPost, "/api/v1/channel/connect", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)

	resp, env = f.do(t, http.MethodPost, "/api/v1/channel/connect", f.adminToken(t), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_INVALID", env.Error.Code)
}

func TestRoutes_ConnectLifecycle(t *testing.T) {
	f := newRouterFixture(t)
	ch := f.repo.Seed(1)[0]
	token := f.tenantToken(t, "tenant-a")

	resp, env := f.do(t, http.MethodPost, "/api/v1/channel/connect", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var connected struct {
		Method      string `json:"method"`
		Code        string `json:"code"`
		ChannelName string `json:"channel_name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &connected))
	assert.Equal(t, "qr", connected.Method)
	assert.Equal(t, f.gateway.QRCode, connected.Code)
	assert.Equal(t, ch.Name, connected.ChannelName)

	f.gateway.SetState(ch.Name, "WORKING", nil)
	resp, env = f.do(t, http.MethodGet, "/api/v1/channel/status", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Connected bool   `json:"connected"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Connected)
	assert.Equal(t, "connected", status.Status)

	resp, env = f.do(t, http.MethodPost, "/api/v1/channel/disconnect", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"released":true}`, string(env.Data))
}

func TestRoutes_ConnectErrors(t *testing.T) {
	f := newRouterFixture(t)
	token := f.tenantToken(t, "tenant-a")

	resp, env := f.do(t, http.MethodPost, "/api/v1/channel/connect", token, `{"method":"sms"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	resp, env = f.do(t, http.MethodPost, "/api/v1/channel/connect", token, `{"method":"code"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PHONE_NUMBER_REQUIRED", env.Error.Code)

	resp, env = f.do(t, http.MethodPost, "/api/v1/channel/connect", token, `{"method":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)

	resp, env = f.do(t, http.MethodPost, "/api/v1/channel/connect", token, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "CAPACITY_EXHAUSTED", env.Error.Code)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))
	assert.Contains(t, env.Message, "retry shortly")
}

func TestRoutes_Admin(t *testing.T) {
	f := newRouterFixture(t)
	chs := f.repo.Seed(2)
	admin := f.adminToken(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/admin/channels/stats", f.tenantToken(t, "tenant-a"), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, env := f.do(t, http.MethodGet, "/api/v1/admin/channels/stats", admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"total":2,"available":2,"assigned":0,"target_size":2,"refill_threshold":1}`, string(env.Data))

	resp, env = f.do(t, http.MethodGet, "/api/v1/admin/channels?page_size=1&page=2", admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Items []struct {
			ID uint `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, chs[1].ID, page.Items[0].ID)

	resp, env = f.do(t, http.MethodGet, "/api/v1/admin/channels?status=bogus", admin, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	resp, env = f.do(t, http.MethodPost, "/api/v1/admin/channels/ensure", admin, `{"target":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ensured struct {
		Created int `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ensured))
	assert.Equal(t, 1, ensured.Created)

	resp, env = f.do(t, http.MethodPost, "/api/v1/admin/channels/abc/refresh", admin, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_CHANNEL_ID", env.Error.Code)

	f.gateway.StatusErr = services.ErrGatewayUnreachable
	resp, env = f.do(t, http.MethodPost, "/api/v1/admin/channels/1/refresh", admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
		Stale  bool   `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.Equal(t, uint(1), refreshed.ID)
	assert.Equal(t, "disconnected", refreshed.Status)
	assert.True(t, refreshed.Stale)

	resp, env = f.do(t, http.MethodDelete, "/api/v1/admin/channels/999", admin, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CHANNEL_NOT_FOUND", env.Error.Code)

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/admin/channels/1", admin, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/admin/channels/export", admin, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "channels_")
}

func TestRoutes_TenantIDTooLong(t *testing.T) {
	f := newRouterFixture(t)
	f.repo.Seed(1)
	token := f.tenantToken(t, strings.Repeat("t", 65))

	resp, env := f.do(t, http.MethodPost, "/api/v1/channel/connect", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_TENANT_ID", env.Error.Code)

	resp, env = f.do(t, http.MethodPost, "/api/v1/channel/disconnect", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_TENANT_ID", env.Error.Code)
	started, _, _ := f.gateway.Calls()
	assert.Empty(t, started)
}

func TestRoutes_AdminAuditLog(t *testing.T) {
	f := newRouterFixture(t)
	ch := f.repo.Seed(1)[0]
	tenant := f.tenantToken(t, "tenant-a")
	admin := f.adminToken(t)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/channel/connect", tenant, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/v1/channel/disconnect", tenant, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/admin/tenants/tenant-a/audit", tenant, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	type auditPage struct {
		Items []struct {
			Action    string `json:"action"`
			ChannelID *uint  `json:"channel_id"`
			TenantID  string `json:"tenant_id"`
		} `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}

	resp, env := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/channels/%d/audit", ch.ID), admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var byChannel auditPage
	require.NoError(t, json.Unmarshal(env.Data, &byChannel))
	require.NotEmpty(t, byChannel.Items)
	assert.Equal(t, "channel_released", byChannel.Items[0].Action)
	require.NotNil(t, byChannel.Items[0].ChannelID)
	assert.Equal(t, ch.ID, *byChannel.Items[0].ChannelID)

	resp, env = f.do(t, http.MethodGet, "/api/v1/admin/tenants/tenant-a/audit?page_size=1", admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var byTenant auditPage
	require.NoError(t, json.Unmarshal(env.Data, &byTenant))
	require.Len(t, byTenant.Items, 1)
	assert.Equal(t, "tenant-a", byTenant.Items[0].TenantID)
	assert.GreaterOrEqual(t, byTenant.Pagination.Total, int64(2))

	resp, env = f.do(t, http.MethodGet, "/api/v1/admin/channels/abc/audit", admin, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_CHANNEL_ID", env.Error.Code)

	resp, env = f.do(t, http.MethodGet, "/api/v1/admin/tenants/tenant-a/audit?page_size=1000", admin, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestRoutes_NotFound(t *testing.T) {
	f := newRouterFixture(t)
	resp, env := f.do(t, http.MethodGet, "/api/v1/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
