package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	gqlmcp "github.com/rickchristie/pggraphql-mcp"
)

// walkOptions are the walk command's flags.
type walkOptions struct {
	collection string
	first      int
	fields     []string
	maxPages   int
}

func runWalk() error {
	fs := flag.NewFlagSet("walk", flag.ExitOnError)
	collection := fs.String("collection", "", "Table name, without the Collection suffix (required)")
	first := fs.Int("first", 10, "Page size")
	fields := fs.String("fields", "id", "Comma-separated node fields to select")
	maxPages := fs.Int("max-pages", 0, "Stop after this many pages, 0 = walk to the end")
	fs.Parse(os.Args[2:])

	if *collection == "" {
		fs.Usage()
		return errors.New("-collection is required")
	}

	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	serverConfig.Endpoint = resolveEndpoint(serverConfig.Endpoint)
	logger := setupLogger(serverConfig.Logging)

	ctx := context.Background()
	g, err := gqlmcp.New(ctx, serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create GraphQL client: %w", err)
	}
	defer g.Close()

	return walk(ctx, os.Stdout, g, walkOptions{
		collection: *collection,
		first:      *first,
		fields:     splitFields(*fields),
		maxPages:   *maxPages,
	})
}

// walk pages through a collection with a CollectionPager, printing each
// node's fields and cursor.
func walk(ctx context.Context, w io.Writer, g *gqlmcp.GraphQLMcp, opts walkOptions) error {
	pager := g.NewCollectionPager(opts.collection, opts.first, opts.fields)
	fields := opts.fields
	if len(fields) == 0 {
		fields = []string{"id"}
	}

	rows := 0
	for !pager.Done() {
		if opts.maxPages > 0 && pager.Pages() >= opts.maxPages {
			fmt.Fprintf(w, "stopped after %d pages (%d rows), next cursor %s\n", pager.Pages(), rows, pager.Cursor())
			return nil
		}
		page, err := pager.Next(ctx)
		if err != nil {
			return fmt.Errorf("page %d: %w", pager.Pages()+1, err)
		}
		fmt.Fprintf(w, "page %d: %d rows\n", pager.Pages(), len(page.Edges))
		for _, edge := range page.Edges {
			parts := make([]string, 0, len(fields))
			for _, f := range fields {
				parts = append(parts, fmt.Sprintf("%s=%v", f, edge.Field(f)))
			}
			fmt.Fprintf(w, "  %s  cursor=%s\n", strings.Join(parts, " "), edge.Cursor)
		}
		rows += len(page.Edges)
	}
	fmt.Fprintf(w, "done: %d rows in %d pages\n", rows, pager.Pages())
	return nil
}

func splitFields(s string) []string {
	var fields []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
