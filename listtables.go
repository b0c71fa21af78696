package gqlmcp

import (
	"context"
	"time"

	"github.com/rickchristie/pggraphql-mcp/internal/catalog"
	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

const opListTables = "list_tables"

// ListTables returns every collection exposed by the schema's root query
// type, in server order. Does NOT go through the
// protection/sanitization/truncation pipeline.
func (g *GraphQLMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	cat, err := catalog.Build(ctx, executorFunc(func(ctx context.Context, req gqlclient.Request) (*gqlclient.Response, error) {
		return g.execute(ctx, req, g.introspectionTimeout())
	}))
	g.metrics.Observe(opListTables, err, time.Since(startTime))
	if err != nil {
		return nil, err
	}

	tables := make([]TableEntry, len(cat.Tables))
	for i, t := range cat.Tables {
		tables[i] = TableEntry{Name: t.Name, Kind: t.Kind, Description: t.Description}
	}

	g.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables, Total: cat.Total}, nil
}

// executorFunc adapts a function to catalog.Executor.
type executorFunc func(ctx context.Context, req gqlclient.Request) (*gqlclient.Response, error)

func (f executorFunc) Execute(ctx context.Context, req gqlclient.Request) (*gqlclient.Response, error) {
	return f(ctx, req)
}
