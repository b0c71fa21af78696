package gqlmcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	gqlmcp "github.com/rickchristie/pggraphql-mcp"
)

func TestGraphQLQuery_Success(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, newsRows(3), nil)
	g := newTestEngine(t, fake.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query:     `query Top($n: Int) { newsCollection(first: $n) { edges { node { id title } } } }`,
		Variables: `{"n": 2}`,
	})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}

	result := decodeResult(t, output)
	edges := dig(t, result, "data", "newsCollection", "edges").([]any)
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	if title := dig(t, edges[1], "node", "title"); title != "Headline 2" {
		t.Fatalf("expected Headline 2, got %v", title)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Variables["n"] != float64(2) {
		t.Fatalf("expected variable n=2 forwarded, got %v", reqs[0].Variables)
	}
}

func TestGraphQLQuery_OperationName(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, newsRows(1), nil)
	g := newTestEngine(t, fake.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query:         `query A { serverVersion } query B { newsCollection { edges { cursor } } }`,
		OperationName: "A",
	})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if v := dig(t, decodeResult(t, output), "data", "serverVersion"); v != "fake-1.0" {
		t.Fatalf("expected operation A to run, got %v", v)
	}
	if got := fake.Requests()[0].OperationName; got != "A" {
		t.Fatalf("expected operationName A on the wire, got %q", got)
	}
}

func TestGraphQLQuery_InvalidVariables(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, nil, nil)
	g := newTestEngine(t, fake.URL, nil)

	for _, vars := range []string{`{not json`, `[1, 2]`, `"str"`, `{"a":1} {"b":2}`} {
		output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
			Query:     `{ serverVersion }`,
			Variables: vars,
		})
		if output.Error != "Variables JSON format error" {
			t.Fatalf("variables %q: expected variables format error, got %q", vars, output.Error)
		}
	}
	if n := len(fake.Requests()); n != 0 {
		t.Fatalf("expected no requests for invalid variables, got %d", n)
	}
}

func TestGraphQLQuery_BlankVariables(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, nil, nil)
	g := newTestEngine(t, fake.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query:     `{ serverVersion }`,
		Variables: "   ",
	})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if vars := fake.Requests()[0].Variables; vars == nil || len(vars) != 0 {
		t.Fatalf("expected empty variables object on the wire, got %v", vars)
	}
}

func TestGraphQLQuery_GraphQLError(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, nil, nil)
	g := newTestEngine(t, fake.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query: `{ newsCollection { edges { node { headline } } } }`,
	})
	if !strings.HasPrefix(output.Error, "GraphQL Error: ") {
		t.Fatalf("expected GraphQL Error prefix, got %q", output.Error)
	}
	if !strings.Contains(output.Error, "headline") {
		t.Fatalf("expected server message about the unknown field, got %q", output.Error)
	}
	if output.Fields != nil {
		t.Fatalf("expected no fields on error, got %v", output.Fields)
	}
}

func TestGraphQLQuery_ErrorsWithDataIsFailure(t *testing.T) {
	t.Parallel()
	srv := staticServer(t, http.StatusOK, `{"data": {"x": 1}, "errors": [{"message": "partial"}, {"path": ["y"]}]}`)
	g := newTestEngine(t, srv.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{Query: `{ x y }`})
	if output.Error != "GraphQL Error: partial; Unknown Error" {
		t.Fatalf("unexpected error: %q", output.Error)
	}
}

func TestGraphQLQuery_HTTPError(t *testing.T) {
	t.Parallel()
	srv := staticServer(t, http.StatusInternalServerError, `upstream exploded`)
	g := newTestEngine(t, srv.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{Query: `{ x }`})
	if output.Error != "HTTP Error: 500 - upstream exploded" {
		t.Fatalf("unexpected error: %q", output.Error)
	}
}

func TestGraphQLQuery_MutationBlocked(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, newsRows(2), nil)
	g := newTestEngine(t, fake.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query: `mutation { deleteFromNewsCollection }`,
	})
	if !strings.Contains(output.Error, "mutation operations are not allowed") {
		t.Fatalf("expected mutation rejection, got %q", output.Error)
	}
	if n := len(fake.Requests()); n != 0 {
		t.Fatalf("expected blocked mutation to never reach the server, got %d requests", n)
	}
}

func TestGraphQLQuery_MutationAllowed(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, newsRows(2), nil)
	g := newTestEngine(t, fake.URL, func(c *gqlmcp.Config) {
		c.Protection.AllowMutations = true
	})

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query: `mutation { deleteFromNewsCollection }`,
	})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if v := dig(t, decodeResult(t, output), "data", "deleteFromNewsCollection"); v != json.Number("2") {
		t.Fatalf("expected 2, got %v", v)
	}
}

func TestGraphQLQuery_SyntaxError(t *testing.T) {
	t.Parallel()
	srv := staticServer(t, http.StatusOK, `{"errors":[{"message":"Syntax Error: Unexpected <EOF>"}]}`)

	t.Run("guarded documents are parsed locally", func(t *testing.T) {
		t.Parallel()
		g := newTestEngine(t, srv.URL, nil)
		output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{Query: `{ newsCollection { edges `})
		if !strings.Contains(output.Error, "GraphQL parse error") {
			t.Fatalf("expected local parse error, got %q", output.Error)
		}
	})

	t.Run("unguarded documents go to the server", func(t *testing.T) {
		t.Parallel()
		g := newTestEngine(t, srv.URL, func(c *gqlmcp.Config) {
			c.Protection.AllowMutations = true
		})
		output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{Query: `{ newsCollection { edges `})
		if output.Error != "GraphQL Error: Syntax Error: Unexpected <EOF>" {
			t.Fatalf("expected server GraphQL error, got %q", output.Error)
		}
	})
}

func TestGraphQLQuery_TooLong(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, nil, nil)
	g := newTestEngine(t, fake.URL, func(c *gqlmcp.Config) {
		c.Query.MaxQueryLength = 20
	})

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query: `{ newsCollection { edges { cursor } } }`,
	})
	if !strings.Contains(output.Error, "GraphQL query too long") {
		t.Fatalf("expected length rejection, got %q", output.Error)
	}
}

func TestGraphQLQuery_EmptyQuery(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, nil, nil)
	g := newTestEngine(t, fake.URL, nil)

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{Query: "  "})
	if output.Error != "query must be non-empty" {
		t.Fatalf("unexpected error: %q", output.Error)
	}
}

func TestGraphQLQuery_Sanitization(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, newsRows(2), nil)
	g := newTestEngine(t, fake.URL, func(c *gqlmcp.Config) {
		c.Sanitization = []gqlmcp.SanitizationRule{
			{Pattern: `[a-z0-9]+@example\.com`, Replacement: "<redacted>"},
			// Would corrupt every cursor if cursors were not protected.
			{Pattern: `[A-Za-z0-9+/]{10,}={0,2}`, Replacement: "X"},
		}
	})

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query: `{ newsCollection(first: 1) { edges { node { body } cursor } pageInfo { endCursor } } }`,
	})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	result := decodeResult(t, output)
	edge := dig(t, result, "data", "newsCollection", "edges").([]any)[0]
	if body := dig(t, edge, "node", "body"); body != "Contact <redacted>" {
		t.Fatalf("expected sanitized body, got %v", body)
	}
	if cursor := dig(t, edge, "cursor"); cursor != encodeCursor(0) {
		t.Fatalf("expected untouched cursor %q, got %v", encodeCursor(0), cursor)
	}
	if end := dig(t, result, "data", "newsCollection", "pageInfo", "endCursor"); end != encodeCursor(0) {
		t.Fatalf("expected untouched endCursor, got %v", end)
	}
}

func TestGraphQLQuery_Truncation(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, newsRows(20), nil)
	g := newTestEngine(t, fake.URL, func(c *gqlmcp.Config) {
		c.Query.MaxResultLength = 50
	})

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query: `{ newsCollection { edges { node { id title body } } } }`,
	})
	if !strings.Contains(output.Error, "...[truncated]") {
		t.Fatalf("expected truncation, got %q", output.Error)
	}
	if !strings.HasPrefix(output.Error, `{"data":{"newsCollection"`) {
		t.Fatalf("expected truncated preview of the result, got %q", output.Error)
	}
}

func TestGraphQLQuery_ErrorPrompts(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, nil, nil)
	g := newTestEngine(t, fake.URL, func(c *gqlmcp.Config) {
		c.ErrorPrompts = []gqlmcp.ErrorPromptRule{
			{Pattern: `Cannot query field`, Kind: "graphql", Message: "Call get_table_info to see the available fields."},
			{Pattern: `Cannot query field`, Kind: "network", Message: "never shown"},
		}
	})

	output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
		Query: `{ nope }`,
	})
	if !strings.HasSuffix(output.Error, "\n\nCall get_table_info to see the available fields.") {
		t.Fatalf("expected error prompt appended, got %q", output.Error)
	}
	if strings.Contains(output.Error, "never shown") {
		t.Fatalf("prompt for another kind must not match, got %q", output.Error)
	}
}

func TestGraphQLQuery_ContextCancelled(t *testing.T) {
	t.Parallel()
	fake := newFakePgGraphQL(t, nil, nil)
	g := newTestEngine(t, fake.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	output := g.GraphQLQuery(ctx, gqlmcp.GraphQLQueryInput{Query: `{ serverVersion }`})
	if !strings.HasPrefix(output.Error, "Network request error: ") {
		t.Fatalf("expected network error, got %q", output.Error)
	}
}

func TestResult_JSONShape(t *testing.T) {
	t.Parallel()
	ok := &gqlmcp.Result{Fields: map[string]json.RawMessage{
		"data":       json.RawMessage(`{"a":"<b>&"}`),
		"extensions": json.RawMessage(`{"cost":1}`),
	}}
	b, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// json.Marshal re-escapes HTML; the tool output path does not.
	if !strings.Contains(string(b), `"extensions":{"cost":1}`) {
		t.Fatalf("expected sibling keys preserved, got %s", b)
	}

	failed := &gqlmcp.Result{Error: "boom"}
	b, err = json.Marshal(failed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"error":"boom"}` {
		t.Fatalf("unexpected error shape %s", b)
	}
}

func TestGraphQLQuery_KeepsServerKeyOrder(t *testing.T) {
	t.Parallel()
	srv := staticServer(t, http.StatusOK, `{"extensions":{"cost":1},"data":{"newsCollection":{"edges":[{"node":{"title":"Headline 1","id":1},"cursor":"c1"}]}}}`)

	tests := []struct {
		name  string
		rules []gqlmcp.SanitizationRule
		title string
	}{
		{"unsanitized", nil, "Headline 1"},
		{"sanitized", []gqlmcp.SanitizationRule{{Pattern: `Headline`, Replacement: "H"}}, "H 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newTestEngine(t, srv.URL, func(c *gqlmcp.Config) {
				c.Sanitization = tt.rules
			})
			output := g.GraphQLQuery(context.Background(), gqlmcp.GraphQLQueryInput{
				Query: `{ newsCollection { edges { node { title id } cursor } } }`,
			})
			if output.Error != "" {
				t.Fatalf("unexpected error: %s", output.Error)
			}
			got, err := json.Marshal(output)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			want := `{"extensions":{"cost":1},"data":{"newsCollection":{"edges":[{"node":{"title":"` + tt.title + `","id":1},"cursor":"c1"}]}}}`
			if string(got) != want {
				t.Fatalf("got  %s\nwant %s", got, want)
			}
		})
	}
}
