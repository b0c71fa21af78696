package gqlmcp_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gqlmcp "github.com/rickchristie/pggraphql-mcp"
	"github.com/rickchristie/pggraphql-mcp/internal/metrics"
)

// mcpTestServer bundles an MCP HTTP endpoint backed by a fake pg_graphql.
type mcpTestServer struct {
	*httptest.Server
	backend *fakePgGraphQL
}

// startMCPTestServer registers the MCP tools on a stateless streamable HTTP
// server that shares its mux with a health check and a metrics endpoint.
func startMCPTestServer(t *testing.T, mutate func(*gqlmcp.Config)) *mcpTestServer {
	t.Helper()

	backend := newFakePgGraphQL(t, newsRows(5), nil)
	reg := prometheus.NewRegistry()

	config := gqlmcp.Config{Endpoint: backend.URL}
	if mutate != nil {
		mutate(&config)
	}
	g, err := gqlmcp.New(t.Context(), config, testLogger(), gqlmcp.WithMetrics(metrics.New(reg)))
	if err != nil {
		t.Fatalf("failed to create GraphQLMcp: %v", err)
	}
	t.Cleanup(g.Close)

	mcpServer := server.NewMCPServer("gogqlmcp-test", "1.0.0",
		server.WithToolCapabilities(true),
	)
	gqlmcp.RegisterMCPTools(mcpServer, g)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &mcpTestServer{Server: srv, backend: backend}
}

// jsonRPC sends a JSON-RPC request to the MCP endpoint and returns the parsed response.
func (s *mcpTestServer) jsonRPC(t *testing.T, method string, params any) map[string]any {
	t.Helper()

	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = params
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	resp, err := http.Post(s.URL+"/mcp", "application/json", bytes.NewReader(bodyBytes))
	if err != nil {
		t.Fatalf("JSON-RPC request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d; body: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("failed to parse response JSON: %v; body: %s", err, string(respBody))
	}
	return result
}

// callTool invokes a tool and returns its text content and isError flag.
func (s *mcpTestServer) callTool(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	result := s.jsonRPC(t, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	resultObj, ok := result["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %v", result)
	}
	content, ok := resultObj["content"].([]any)
	if !ok || len(content) == 0 {
		t.Fatalf("expected content array, got %v", resultObj["content"])
	}
	first := content[0].(map[string]any)
	if first["type"] != "text" {
		t.Fatalf("expected content type 'text', got %q", first["type"])
	}
	isError, _ := resultObj["isError"].(bool)
	return first["text"].(string), isError
}

func parseToolText(t *testing.T, text string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("tool text is not JSON: %v; text: %s", err, text)
	}
	return out
}

func TestMCPServer_ToolsList(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	result := s.jsonRPC(t, "tools/list", map[string]any{})
	resultObj := result["result"].(map[string]any)
	tools, ok := resultObj["tools"].([]any)
	if !ok {
		t.Fatalf("expected tools array, got %T: %v", resultObj["tools"], resultObj["tools"])
	}
	if len(tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(tools))
	}

	toolNames := map[string]bool{}
	for _, tool := range tools {
		toolNames[tool.(map[string]any)["name"].(string)] = true
	}
	for _, expected := range []string{"graphql_query", "introspection_query", "list_tables", "get_table_info", "execute_collection_query"} {
		if !toolNames[expected] {
			t.Fatalf("expected tool %q in list, got %v", expected, toolNames)
		}
	}
}

func TestMCPServer_GraphQLQueryTool(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "graphql_query", map[string]any{
		"query":     "query Top($n: Int) { newsCollection(first: $n) { edges { node { id title } } } }",
		"variables": `{"n": 2}`,
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	if !strings.Contains(text, "\n  \"data\": {") {
		t.Fatalf("expected pretty-printed output, got %s", text)
	}
	out := parseToolText(t, text)
	edges := dig(t, out, "data", "newsCollection")
	if got := len(edges.(map[string]any)["edges"].([]any)); got != 2 {
		t.Fatalf("expected 2 edges, got %d", got)
	}
}

func TestMCPServer_GraphQLQueryTool_ErrorResult(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "graphql_query", map[string]any{
		"query": "mutation { deleteFromNewsCollection }",
	})
	if !isError {
		t.Fatalf("expected isError for a blocked mutation, got %s", text)
	}
	msg, _ := parseToolText(t, text)["error"].(string)
	if !strings.Contains(msg, "mutation operations are not allowed") {
		t.Fatalf("expected mutation error, got %q", msg)
	}
	if n := len(s.backend.Requests()); n != 0 {
		t.Fatalf("expected no backend requests, got %d", n)
	}
}

func TestMCPServer_GraphQLQueryTool_MissingQuery(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "graphql_query", map[string]any{})
	if !isError {
		t.Fatalf("expected isError, got %s", text)
	}
	if msg := parseToolText(t, text)["error"]; msg != "query parameter is required" {
		t.Fatalf("unexpected error %v", msg)
	}
}

func TestMCPServer_IntrospectionTool(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "introspection_query", map[string]any{})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	out := parseToolText(t, text)
	if name := dig(t, out, "data", "__schema", "queryType", "name"); name != "Query" {
		t.Fatalf("expected queryType Query, got %v", name)
	}
}

func TestMCPServer_ListTablesTool(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "list_tables", map[string]any{})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var out gqlmcp.ListTablesOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("failed to parse list tables output: %v", err)
	}
	names := map[string]bool{}
	for _, tbl := range out.Tables {
		names[tbl.Name] = true
	}
	if !names["news"] || !names["account"] || out.Total != 2 {
		t.Fatalf("expected news and account, got %+v", out)
	}
}

func TestMCPServer_GetTableInfoTool(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "get_table_info", map[string]any{"table_name": "News"})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	out := parseToolText(t, text)
	if name := dig(t, out, "data", "__type", "name"); name != "News" {
		t.Fatalf("expected type News, got %v", name)
	}

	text, isError = s.callTool(t, "get_table_info", map[string]any{"table_name": "News { id }"})
	if !isError {
		t.Fatalf("expected invalid table name to fail, got %s", text)
	}
}

func TestMCPServer_CollectionTool_Pagination(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "execute_collection_query", map[string]any{
		"collection_name": "news",
		"first":           3,
		"fields":          []any{"id", "title"},
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	page := dig(t, parseToolText(t, text), "data", "newsCollection").(map[string]any)
	if got := len(page["edges"].([]any)); got != 3 {
		t.Fatalf("expected 3 edges, got %d", got)
	}
	pageInfo := page["pageInfo"].(map[string]any)
	if pageInfo["hasNextPage"] != true {
		t.Fatalf("expected hasNextPage, got %v", pageInfo)
	}

	// Numeric strings and comma-separated fields are accepted too.
	text, isError = s.callTool(t, "execute_collection_query", map[string]any{
		"collection_name": "news",
		"first":           "3",
		"after":           pageInfo["endCursor"],
		"fields":          "id,title",
	})
	if isError {
		t.Fatalf("unexpected tool error: %s", text)
	}
	page = dig(t, parseToolText(t, text), "data", "newsCollection").(map[string]any)
	edges := page["edges"].([]any)
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges on the last page, got %d", len(edges))
	}
	if id := dig(t, edges[0], "node", "id"); id != float64(4) {
		t.Fatalf("expected second page to start at id 4, got %v", id)
	}
	if page["pageInfo"].(map[string]any)["hasNextPage"] != false {
		t.Fatalf("expected last page, got %v", page["pageInfo"])
	}
}

func TestMCPServer_CollectionTool_InvalidFirst(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	text, isError := s.callTool(t, "execute_collection_query", map[string]any{
		"collection_name": "news",
		"first":           2.5,
	})
	if !isError {
		t.Fatalf("expected isError, got %s", text)
	}
	msg, _ := parseToolText(t, text)["error"].(string)
	if !strings.HasPrefix(msg, "first must be a positive integer") {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestMCPServer_HealthCheckAndMetricsCoexist(t *testing.T) {
	t.Parallel()
	s := startMCPTestServer(t, nil)

	resp, err := http.Get(s.URL + "/health")
	if err != nil {
		t.Fatalf("health check request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %q", resp.StatusCode, string(body))
	}

	if _, isError := s.callTool(t, "list_tables", map[string]any{}); isError {
		t.Fatal("list_tables failed")
	}
	if _, isError := s.callTool(t, "graphql_query", map[string]any{"query": "{ serverVersion }"}); isError {
		t.Fatal("graphql_query failed")
	}

	resp, err = http.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", resp.StatusCode)
	}
	want := `gogqlmcp_graphql_requests_total{operation="graphql_query",outcome="ok"} 1`
	if !strings.Contains(string(body), want) {
		t.Fatalf("expected %q in metrics output:\n%s", want, string(body))
	}
}
