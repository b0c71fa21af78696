package gqlmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

// RegisterMCPTools registers graphql_query, introspection_query, list_tables,
// get_table_info and execute_collection_query as MCP tools on the given MCP
// server. Every tool returns pretty-printed JSON text; failures are tool
// errors whose text is {"error": ...}.
func RegisterMCPTools(mcpServer *server.MCPServer, g *GraphQLMcp) {
	// graphql_query tool
	queryTool := mcp.NewTool(opGraphQLQuery,
		mcp.WithDescription("Execute a GraphQL query against the pg_graphql endpoint. Returns the GraphQL response as JSON."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The GraphQL query document"),
		),
		mcp.WithString("variables",
			mcp.Description("Query variables as a JSON object string (optional)"),
		),
		mcp.WithString("operation_name",
			mcp.Description("Operation to run when the document defines several (optional)"),
		),
	)

	mcpServer.AddTool(queryTool, g.loggedToolHandler(opGraphQLQuery, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return errorResult("query parameter is required"), nil
		}
		output := g.GraphQLQuery(ctx, GraphQLQueryInput{
			Query:         query,
			Variables:     req.GetString("variables", ""),
			OperationName: req.GetString("operation_name", ""),
		})
		if output.Error != "" {
			return errorResult(output.Error), nil
		}
		return textResult(output), nil
	}))

	// introspection_query tool
	introspectionTool := mcp.NewTool(opIntrospection,
		mcp.WithDescription("Run a GraphQL introspection query and return the schema: root operation types and every type with its fields."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(introspectionTool, g.loggedToolHandler(opIntrospection, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := g.Introspect(ctx)
		if err != nil {
			return errorResult(g.errorMessage(opIntrospection, err)), nil
		}
		return textResult(output), nil
	}))

	// list_tables tool
	listTablesTool := mcp.NewTool(opListTables,
		mcp.WithDescription("List the tables exposed as <table>Collection root query fields, with their descriptions."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, g.loggedToolHandler(opListTables, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := g.ListTables(ctx, ListTablesInput{})
		if err != nil {
			return errorResult(g.errorMessage(opListTables, err)), nil
		}
		return textResult(output), nil
	}))

	// get_table_info tool
	tableInfoTool := mcp.NewTool(opDescribeTable,
		mcp.WithDescription("Describe a GraphQL type (e.g. the node type of a collection): its kind, description and fields with their types."),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("The GraphQL type name to describe, e.g. News"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(tableInfoTool, g.loggedToolHandler(opDescribeTable, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table_name")
		if err != nil {
			return errorResult("table_name parameter is required"), nil
		}
		output, err := g.DescribeTable(ctx, DescribeTableInput{Table: table})
		if err != nil {
			return errorResult(g.errorMessage(opDescribeTable, err)), nil
		}
		return textResult(output), nil
	}))

	// execute_collection_query tool
	collectionTool := mcp.NewTool(opCollectionQuery,
		mcp.WithDescription("Fetch one page of a collection with cursor pagination. To continue, call again with after set to pageInfo.endCursor while pageInfo.hasNextPage is true."),
		mcp.WithString("collection_name",
			mcp.Required(),
			mcp.Description("The table name, without the Collection suffix"),
		),
		mcp.WithNumber("first",
			mcp.Description("Number of records to return (default 10)"),
		),
		mcp.WithString("after",
			mcp.Description("The endCursor of the previous page, passed back unchanged (optional)"),
		),
		mcp.WithArray("fields",
			mcp.Description("Node fields to select (default [\"id\"])"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(collectionTool, g.loggedToolHandler(opCollectionQuery, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		collection, err := req.RequireString("collection_name")
		if err != nil {
			return errorResult("collection_name parameter is required"), nil
		}
		args := req.GetArguments()
		first, err := parseFirst(args["first"])
		if err != nil {
			return errorResult(g.errorMessage(opCollectionQuery, err)), nil
		}
		fields, err := parseFields(args["fields"])
		if err != nil {
			return errorResult(g.errorMessage(opCollectionQuery, err)), nil
		}
		output := g.CollectionQuery(ctx, CollectionQueryInput{
			Collection: collection,
			First:      first,
			After:      req.GetString("after", ""),
			Fields:     fields,
		})
		if output.Error != "" {
			return errorResult(output.Error), nil
		}
		return textResult(output), nil
	}))
}

// parseFirst accepts a JSON number or a numeric string. Absent means default.
func parseFirst(v any) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if val != math.Trunc(val) || val < 1 || val > maxFirst {
			return 0, gqlclient.Validationf("first must be a positive integer, got %v", val)
		}
		return int(val), nil
	case int:
		if val < 1 || val > maxFirst {
			return 0, gqlclient.Validationf("first must be a positive integer, got %d", val)
		}
		return val, nil
	case json.Number:
		return parseFirst(val.String())
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxFirst {
			return 0, gqlclient.Validationf("first must be a positive integer, got %q", val)
		}
		return n, nil
	default:
		return 0, gqlclient.Validationf("first must be a positive integer, got %v", val)
	}
}

// parseFields accepts a list of strings or a comma-separated string.
func parseFields(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		var fields []string
		for _, f := range strings.Split(val, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		return fields, nil
	case []any:
		fields := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, gqlclient.Validationf("fields must be a list of strings, got %v", item)
			}
			fields = append(fields, s)
		}
		return fields, nil
	case []string:
		return val, nil
	default:
		return nil, gqlclient.Validationf("fields must be a list of strings, got %T", v)
	}
}

func textResult(v any) *mcp.CallToolResult {
	text, err := prettyJSON(v)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcp.NewToolResultText(text)
}

func errorResult(msg string) *mcp.CallToolResult {
	text, err := prettyJSON(errorBody{Error: msg})
	if err != nil {
		text = msg
	}
	return mcp.NewToolResultError(text)
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (g *GraphQLMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		g.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
