package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/morezero/remote-connectors/internal/config"
)

const serverTestPrefix = "server:server_test"

func testConfig() *config.Config {
	return &config.Config{
		RequestTimeoutMs:   2000,
		RequestTryCount:    3,
		ConnectorPassword:  "pw",
		ServicePath:        "/connectors",
		HTTPAddr:           "127.0.0.1:0",
		HealthCheckTimeout: 2 * time.Second,
		LogLevel:           "error",
	}
}

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("%s - New failed: %v", serverTestPrefix, err)
	}
	t.Cleanup(s.Close)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestNew_RegistersConnectors(t *testing.T) {
	s, _ := testServer(t)
	list, err := ListMethods(s.Runtime())
	if err != nil {
		t.Fatalf("%s - ListMethods failed: %v", serverTestPrefix, err)
	}
	names := map[string]bool{}
	for _, m := range list {
		names[m.Connector+"."+m.Name] = true
	}
	for _, want := range []string{"Avatar.Get", "Avatar.Store", "Avatar.Delete", "AgentInfo.GetUserInfo", "AgentInfo.GetUserInfos", "AgentInfo.GetAgentsLocations"} {
		if !names[want] {
			t.Errorf("%s - missing method %s in %v", serverTestPrefix, want, names)
		}
	}
}

func TestNew_InvalidConstraint(t *testing.T) {
	cfg := testConfig()
	cfg.ProtocolConstraint = "not a version"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Errorf("%s - expected error for invalid constraint", serverTestPrefix)
	}
}

func TestHandler_Health(t *testing.T) {
	_, ts := testServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("%s - GET /health: %v", serverTestPrefix, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s - /health status = %d", serverTestPrefix, resp.StatusCode)
	}
	var h HealthOutput
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("%s - decode health: %v", serverTestPrefix, err)
	}
	if h.Status != "healthy" || !h.Checks["methods"] {
		t.Errorf("%s - unexpected health %+v", serverTestPrefix, h)
	}
	if _, ok := h.Checks["database"]; ok {
		t.Errorf("%s - database check present without a database", serverTestPrefix)
	}
}

func TestHandler_ReadyAndMetrics(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("%s - GET /ready: %v", serverTestPrefix, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("%s - /ready status = %d", serverTestPrefix, resp.StatusCode)
	}

	// One inbound call so the connector collectors have a sample.
	call, err := http.Post(ts.URL+"/connectors", "application/json",
		bytes.NewBufferString(`{"Method":"GetUserInfo","userID":"nobody"}`))
	if err != nil {
		t.Fatalf("%s - POST /connectors: %v", serverTestPrefix, err)
	}
	body, _ := io.ReadAll(call.Body)
	call.Body.Close()
	if string(body) != `{"Success":true,"Value":"null"}` {
		t.Errorf("%s - GetUserInfo body = %s", serverTestPrefix, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("%s - GET /metrics: %v", serverTestPrefix, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "connectors_inbound_requests_total") {
		t.Errorf("%s - metrics output lacks inbound counter", serverTestPrefix)
	}
}

func TestHandler_Home(t *testing.T) {
	_, ts := testServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("%s - GET /: %v", serverTestPrefix, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	page := string(data)
	if !strings.Contains(page, "GetAgentsLocations") || !strings.Contains(page, "POST /connectors") {
		t.Errorf("%s - home page lacks the method listing", serverTestPrefix)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("%s - GET /nope: %v", serverTestPrefix, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("%s - /nope status = %d, want 404", serverTestPrefix, resp.StatusCode)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	s, err := New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("%s - New failed: %v", serverTestPrefix, err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("%s - Serve returned %v", serverTestPrefix, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - Serve did not stop", serverTestPrefix)
	}
}

func TestSetupLogging(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		SetupLogging(level)
	}
}
