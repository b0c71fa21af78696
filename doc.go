// Package gqlmcp gives AI agents controlled, read-only access to a
// PostgreSQL database through its pg_graphql endpoint, using the Model
// Context Protocol (MCP).
//
// It exposes five tools: graphql_query, introspection_query, list_tables,
// get_table_info and execute_collection_query. Ad hoc queries run through a
// pipeline of length limits, operation protection (mutations and
// subscriptions are blocked by default), pattern-based timeouts, value
// sanitization, result truncation and error prompts that steer the agent.
//
// Tables are discovered from the root query type: every field named
// <table>Collection is a table, and collection pages are fetched with a
// generated, parameterized query whose identifiers are validated before they
// are placed in the document. Cursors are opaque and passed back verbatim.
//
// graphql_query also runs optional hooks: Go functions in library mode or
// external commands configured under server_hooks. A before_query hook may
// reject or rewrite the document before protection checks it, and an
// after_query hook may reject or rewrite the data payload.
//
// The endpoint is either an HTTP GraphQL URL or a postgres:// connection
// string, in which case graphql.resolve is called directly over pgx.
//
// # Library Usage
//
//	g, err := gqlmcp.New(ctx, gqlmcp.Config{
//		Endpoint: "http://127.0.0.1:3001/rpc/graphql",
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer g.Close()
//
//	// Use directly
//	page := g.CollectionQuery(ctx, gqlmcp.CollectionQueryInput{Collection: "news", First: 5})
//
//	// Or walk every page
//	pager := g.NewCollectionPager("news", 50, []string{"id", "title"})
//	for !pager.Done() {
//		page, err := pager.Next(ctx)
//		...
//	}
//
//	// Or register as MCP tools
//	gqlmcp.RegisterMCPTools(mcpServer, g)
package gqlmcp
