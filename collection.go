package gqlmcp

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
	"github.com/rickchristie/pggraphql-mcp/internal/querybuilder"
)

const (
	opCollectionQuery = "execute_collection_query"
	opCollectionPager = "collection_pager"

	// maxFirst is the largest value a GraphQL Int can carry.
	maxFirst = math.MaxInt32
)

// CollectionQuery fetches one page of a collection. It is stateless: to
// continue, call again with After set to the previous page's endCursor while
// hasNextPage is true. All errors are converted to output.Error.
func (g *GraphQLMcp) CollectionQuery(ctx context.Context, input CollectionQueryInput) *CollectionQueryOutput {
	startTime := time.Now()

	page, rootField, err := g.collectionPage(ctx, opCollectionQuery, input)
	if err != nil {
		g.metrics.Observe(opCollectionQuery, err, time.Since(startTime))
		return &CollectionQueryOutput{Error: g.errorMessage(opCollectionQuery, err)}
	}

	output := &CollectionQueryOutput{RootField: rootField, Page: page}
	jsonBytes, err := encodeJSON(output)
	if err != nil {
		g.metrics.Observe(opCollectionQuery, err, time.Since(startTime))
		return &CollectionQueryOutput{Error: g.errorMessage(opCollectionQuery, err)}
	}
	g.metrics.ObserveResultBytes(opCollectionQuery, len(jsonBytes))
	if utf8.RuneCount(jsonBytes) > g.config.Query.MaxResultLength {
		output = &CollectionQueryOutput{Error: truncateRunes(jsonBytes, g.config.Query.MaxResultLength) + truncatedSuffix}
	}
	g.metrics.Observe(opCollectionQuery, nil, time.Since(startTime))

	logEvent := g.logger.Info().
		Str("collection", input.Collection).
		Dur("duration", time.Since(startTime)).
		Int("edge_count", len(page.Edges)).
		Bool("has_next_page", page.PageInfo.HasNextPage)
	if input.After != "" {
		logEvent = logEvent.Bool("after", true)
	}
	logEvent.Msg("collection query executed")

	return output
}

// collectionPage builds, executes and decodes one collection page. Returns
// the page and the root field it was read from.
func (g *GraphQLMcp) collectionPage(ctx context.Context, op string, input CollectionQueryInput) (*Page, string, error) {
	first := input.First
	if first < 0 || first > maxFirst {
		return nil, "", gqlclient.Validationf("first must be a positive integer no greater than %d, got %d", maxFirst, first)
	}
	if first == 0 {
		first = g.config.Query.DefaultPageSize
	}

	q, err := querybuilder.Collection(input.Collection, input.Fields)
	if err != nil {
		return nil, "", err
	}

	timeout, timeoutRule := g.timeoutMgr.Match(q.Text)
	resp, err := g.execute(ctx, gqlclient.Request{
		Query:         q.Text,
		Variables:     querybuilder.PageVariables(first, input.After),
		OperationName: q.OperationName,
	}, timeout)
	if err != nil {
		return nil, "", err
	}

	var data map[string]*Page
	if err := resp.DecodeData(&data); err != nil {
		return nil, "", err
	}
	page := data[q.RootField]
	if page == nil {
		return nil, "", &gqlclient.Error{Kind: gqlclient.KindDecode, Err: fmt.Errorf("response has no %s", q.RootField)}
	}
	if page.Edges == nil {
		page.Edges = []Edge{}
	}

	if g.sanitizer.HasRules() {
		for i := range page.Edges {
			node, err := g.sanitizer.JSON(page.Edges[i].Node)
			if err != nil {
				return nil, "", err
			}
			page.Edges[i].Node = node
		}
	}

	if timeoutRule != "" {
		g.logger.Debug().
			Str("operation", op).
			Str("timeout_rule", timeoutRule).
			Msg("collection timeout rule matched")
	}
	return page, q.RootField, nil
}
