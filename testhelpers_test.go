package gqlmcp_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	gqlmcp "github.com/rickchristie/pggraphql-mcp"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// recordedRequest is one request body received by a fake server.
type recordedRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// fakePgGraphQL is an in-process stand-in for a pg_graphql HTTP endpoint. It
// serves newsCollection and accountCollection with Relay-style pagination
// and opaque base64 cursors, and answers real introspection.
type fakePgGraphQL struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	news     []map[string]any
	accounts []map[string]any
}

func newFakePgGraphQL(t *testing.T, news, accounts []map[string]any) *fakePgGraphQL {
	t.Helper()
	f := &fakePgGraphQL{news: news, accounts: accounts}
	schema, err := f.schema()
	if err != nil {
		t.Fatalf("failed to build fake schema: %v", err)
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        r.Context(),
		})
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}))
	t.Cleanup(f.Close)
	return f
}

// Requests returns a copy of every request received so far.
func (f *fakePgGraphQL) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func encodeCursor(i int) string {
	return base64.StdEncoding.EncodeToString([]byte("cursor:" + strconv.Itoa(i)))
}

func decodeCursor(c string) (int, error) {
	b, err := base64.StdEncoding.DecodeString(c)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor")
	}
	i, err := strconv.Atoi(strings.TrimPrefix(string(b), "cursor:"))
	if err != nil {
		return 0, fmt.Errorf("invalid cursor")
	}
	return i, nil
}

// paginate resolves a collection field the way pg_graphql does for forward
// pagination.
func paginate(rows []map[string]any, args map[string]any) (any, error) {
	first := 30
	if v, ok := args["first"].(int); ok {
		first = v
	}
	if first < 0 {
		return nil, fmt.Errorf("first must be non-negative")
	}
	start := 0
	if after, ok := args["after"].(string); ok {
		i, err := decodeCursor(after)
		if err != nil {
			return nil, err
		}
		start = i + 1
	}
	if start > len(rows) {
		start = len(rows)
	}
	end := start + first
	if end > len(rows) {
		end = len(rows)
	}

	edges := make([]any, 0, end-start)
	for i := start; i < end; i++ {
		edges = append(edges, map[string]any{"node": rows[i], "cursor": encodeCursor(i)})
	}
	pageInfo := map[string]any{
		"hasNextPage":     end < len(rows),
		"hasPreviousPage": start > 0,
		"startCursor":     nil,
		"endCursor":       nil,
	}
	if end > start {
		pageInfo["startCursor"] = encodeCursor(start)
		pageInfo["endCursor"] = encodeCursor(end - 1)
	}
	return map[string]any{"edges": edges, "pageInfo": pageInfo}, nil
}

func (f *fakePgGraphQL) schema() (graphql.Schema, error) {
	pageInfoType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"startCursor":     &graphql.Field{Type: graphql.String},
			"endCursor":       &graphql.Field{Type: graphql.String},
		},
	})

	collection := func(typeName string, nodeFields graphql.Fields, rows func() []map[string]any) *graphql.Field {
		nodeType := graphql.NewObject(graphql.ObjectConfig{
			Name:        typeName,
			Description: "Row of table " + strings.ToLower(typeName),
			Fields:      nodeFields,
		})
		edgeType := graphql.NewObject(graphql.ObjectConfig{
			Name: typeName + "Edge",
			Fields: graphql.Fields{
				"node":   &graphql.Field{Type: graphql.NewNonNull(nodeType)},
				"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			},
		})
		connectionType := graphql.NewObject(graphql.ObjectConfig{
			Name: typeName + "Connection",
			Fields: graphql.Fields{
				"edges":    &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edgeType)))},
				"pageInfo": &graphql.Field{Type: graphql.NewNonNull(pageInfoType)},
			},
		})
		return &graphql.Field{
			Type:        connectionType,
			Description: "A pagable collection of type `" + typeName + "`",
			Args: graphql.FieldConfigArgument{
				"first": &graphql.ArgumentConfig{Type: graphql.Int},
				"after": &graphql.ArgumentConfig{Type: graphql.String},
			},
			Resolve: func(p graphql.ResolveParams) (any, error) {
				return paginate(rows(), p.Args)
			},
		}
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"newsCollection": collection("News", graphql.Fields{
				"id":    &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
				"title": &graphql.Field{Type: graphql.String},
				"body":  &graphql.Field{Type: graphql.String},
			}, func() []map[string]any { return f.news }),
			"accountCollection": collection("Account", graphql.Fields{
				"id":    &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
				"email": &graphql.Field{Type: graphql.String},
			}, func() []map[string]any { return f.accounts }),
			"serverVersion": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return "fake-1.0", nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"deleteFromNewsCollection": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return len(f.news), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType, Mutation: mutationType})
}

// newsRows returns n news rows with ids 1..n.
func newsRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"id":    i + 1,
			"title": fmt.Sprintf("Headline %d", i+1),
			"body":  fmt.Sprintf("Contact reporter%d@example.com", i+1),
		}
	}
	return rows
}

// staticServer answers every request with the same status and body.
func staticServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestEngine(t *testing.T, endpoint string, mutate func(*gqlmcp.Config)) *gqlmcp.GraphQLMcp {
	t.Helper()
	config := gqlmcp.Config{Endpoint: endpoint}
	if mutate != nil {
		mutate(&config)
	}
	g, err := gqlmcp.New(context.Background(), config, testLogger())
	if err != nil {
		t.Fatalf("failed to create GraphQLMcp: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

// decodeResult re-decodes a Result's JSON into generic values.
func decodeResult(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	var out map[string]any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		t.Fatalf("failed to decode result %s: %v", b, err)
	}
	return out
}

// dig walks nested maps by key.
func dig(t *testing.T, v any, keys ...string) any {
	t.Helper()
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			t.Fatalf("expected object at %q, got %T: %v", k, v, v)
		}
		v = m[k]
	}
	return v
}
