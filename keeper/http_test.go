package keeper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/feedcanon/registry"
)

func apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := newTestService(t, scenarioWeb())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestHTTP_Canonical(t *testing.T) {
	srv := apiServer(t)

	code, out := post(t, srv, "/v1/canonical", `{"url":"`+dirty+`"}`)
	if code != http.StatusOK || out["canonical_url"] != "https://example.com/feed" {
		t.Fatalf("code=%d out=%v", code, out)
	}

	code, out = post(t, srv, "/v1/canonical", `{"url":"https://gone.example.com/feed"}`)
	if code != http.StatusUnprocessableEntity {
		t.Errorf("unresolved: code=%d out=%v", code, out)
	}

	for _, body := range []string{`{"url":""}`, `not json`} {
		code, _ = post(t, srv, "/v1/canonical", body)
		if code != http.StatusBadRequest {
			t.Errorf("body %q: code=%d, want 400", body, code)
		}
	}
}

func TestHTTP_Equivalent(t *testing.T) {
	srv := apiServer(t)
	code, out := post(t, srv, "/v1/equivalent", `{"a":"http://example.com/feed","b":"https://www.example.com/feed/"}`)
	if code != http.StatusOK || out["equivalent"] != true || out["method"] != "normalize" {
		t.Fatalf("code=%d out=%v", code, out)
	}
}

func TestHTTP_ResolutionsAndFeeds(t *testing.T) {
	srv := apiServer(t)
	post(t, srv, "/v1/canonical", `{"url":"`+dirty+`"}`)

	code, body := get(t, srv, "/v1/resolutions?limit=5")
	if code != http.StatusOK {
		t.Fatalf("resolutions: %d", code)
	}
	var list struct {
		Resolutions []registry.Resolution `json:"resolutions"`
	}
	if err := json.Unmarshal([]byte(body), &list); err != nil || len(list.Resolutions) != 1 {
		t.Fatalf("resolutions body %s (%v)", body, err)
	}

	code, body = get(t, srv, "/v1/feeds?url="+url.QueryEscape(dirty))
	if code != http.StatusOK || !strings.Contains(body, `"canonical_url":"https://example.com/feed"`) {
		t.Errorf("feeds: %d %s", code, body)
	}
	code, _ = get(t, srv, "/v1/feeds?url="+url.QueryEscape("https://unknown.example.com/"))
	if code != http.StatusNotFound {
		t.Errorf("unknown feed: %d", code)
	}
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	srv := apiServer(t)
	if code, _ := get(t, srv, "/healthz"); code != http.StatusOK {
		t.Errorf("healthz: %d", code)
	}
	post(t, srv, "/v1/canonical", `{"url":"`+dirty+`"}`)
	code, body := get(t, srv, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics: %d", code)
	}
	for _, want := range []string{
		`feedcanon_resolutions_total{status="resolved"} 1`,
		`feedcanon_fetches_total{outcome="ok",phase="initial"} 1`,
		`feedcanon_matches_total{method="bytes",phase="candidate"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// --- MCP ---

var testMCPImpl = &mcp.Implementation{Name: "feedcanon-test", Version: "0.1.0"}

func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	s := newTestService(t, scenarioWeb())
	srv := mcp.NewServer(testMCPImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_Resolve(t *testing.T) {
	session := mcpSession(t)

	text, isErr := mcpCallTool(t, session, "feedcanon_resolve", map[string]any{"url": dirty})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var res Resolution
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.CanonicalURL != "https://example.com/feed" {
		t.Errorf("canonical = %q", res.CanonicalURL)
	}

	text, isErr = mcpCallTool(t, session, "feedcanon_feed", map[string]any{"url": dirty})
	if isErr || !strings.Contains(text, "https://example.com/feed") {
		t.Errorf("feed: %s (err=%v)", text, isErr)
	}
}

func TestMCP_Equivalent(t *testing.T) {
	session := mcpSession(t)
	text, isErr := mcpCallTool(t, session, "feedcanon_equivalent", map[string]any{
		"a": "http://example.com/feed",
		"b": "https://example.com/feed",
	})
	if isErr || !strings.Contains(text, `"equivalent":true`) {
		t.Errorf("got %s (err=%v)", text, isErr)
	}
}

func TestMCP_ResolveError(t *testing.T) {
	// WHAT: An unresolvable URL is a tool error, not a protocol failure.
	// WHY: The calling model must see the reason and carry on.
	session := mcpSession(t)
	text, isErr := mcpCallTool(t, session, "feedcanon_resolve", map[string]any{"url": "https://gone.example.com/feed"})
	if !isErr || !strings.Contains(text, "unresolved") {
		t.Errorf("got %s (err=%v)", text, isErr)
	}
}

func TestHTTP_RateLimitAndHeaders(t *testing.T) {
	// WHAT: The API sets hardening headers and throttles a client past its burst.
	// WHY: Every resolution costs outbound fetches; one caller must not exhaust them.
	s := newTestService(t, scenarioWeb(), func(c *Config) {
		c.API.Rate = 0.001
		c.API.Burst = 1
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/resolutions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("first: %d %v", resp.StatusCode, resp.Header)
	}
	if code, _ := get(t, srv, "/v1/resolutions"); code != http.StatusTooManyRequests {
		t.Errorf("second: %d, want 429", code)
	}
	if code, _ := get(t, srv, "/healthz"); code != http.StatusOK {
		t.Errorf("healthz throttled: %d", code)
	}
}
