package gqlmcp

import (
	"context"
	"time"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
	"github.com/rickchristie/pggraphql-mcp/internal/querybuilder"
)

const (
	opIntrospection = "introspection_query"
	opDescribeTable = "get_table_info"

	introspectionOperation = "IntrospectionQuery"
)

// introspectionQuery fetches every type of the schema with its fields and
// two levels of type references.
const introspectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    subscriptionType { name }
    types {
      kind
      name
      description
      fields {
        name
        type {
          kind
          name
          ofType {
            kind
            name
          }
        }
      }
    }
  }
}`

// Introspect runs the schema introspection query and returns the raw
// response. Does NOT go through the protection/sanitization/truncation
// pipeline.
func (g *GraphQLMcp) Introspect(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	resp, err := g.execute(ctx, gqlclient.Request{
		Query:         introspectionQuery,
		OperationName: introspectionOperation,
	}, g.introspectionTimeout())
	g.metrics.Observe(opIntrospection, err, time.Since(startTime))
	if err != nil {
		return nil, err
	}

	g.logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("Introspect executed")

	return newResult(resp), nil
}

// DescribeTable looks up one GraphQL type by name through __type. The name
// is validated as an identifier and bound as a variable. An unknown type
// yields {"data": {"__type": null}}, not an error.
func (g *GraphQLMcp) DescribeTable(ctx context.Context, input DescribeTableInput) (*Result, error) {
	startTime := time.Now()

	if err := querybuilder.ValidateIdentifier("table name", input.Table); err != nil {
		g.metrics.Observe(opDescribeTable, err, time.Since(startTime))
		return nil, err
	}
	q, err := querybuilder.TypeInfo()
	if err != nil {
		g.metrics.Observe(opDescribeTable, err, time.Since(startTime))
		return nil, err
	}

	resp, err := g.execute(ctx, gqlclient.Request{
		Query:         q.Text,
		Variables:     querybuilder.TypeInfoVariables(input.Table),
		OperationName: q.OperationName,
	}, g.introspectionTimeout())
	g.metrics.Observe(opDescribeTable, err, time.Since(startTime))
	if err != nil {
		return nil, err
	}

	g.logger.Info().
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Msg("DescribeTable executed")

	return newResult(resp), nil
}

func (g *GraphQLMcp) introspectionTimeout() time.Duration {
	return time.Duration(g.config.Query.IntrospectionTimeoutSeconds) * time.Second
}
