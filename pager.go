package gqlmcp

import (
	"context"
	"errors"
	"time"
)

// PagerState is the state of a CollectionPager.
type PagerState int

const (
	// PagerNotStarted: no page fetched yet.
	PagerNotStarted PagerState = iota
	// PagerHasNext: the last page reported hasNextPage with an endCursor.
	PagerHasNext
	// PagerExhausted: the last page was final. Terminal.
	PagerExhausted
	// PagerFailed: a fetch failed. Terminal, nothing is retried.
	PagerFailed
)

func (s PagerState) String() string {
	switch s {
	case PagerNotStarted:
		return "not_started"
	case PagerHasNext:
		return "has_next"
	case PagerExhausted:
		return "exhausted"
	case PagerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrPagerDone is returned by Next once the pager is exhausted.
var ErrPagerDone = errors.New("gqlmcp: collection pager is exhausted")

// CollectionPager walks a collection forward, threading each page's
// endCursor into the next request verbatim. The cursor is its only
// continuation state. A CollectionPager is not safe for concurrent use;
// pages of one walk are inherently sequential.
type CollectionPager struct {
	g     *GraphQLMcp
	input CollectionQueryInput
	state PagerState
	err   error
	pages int
}

// NewCollectionPager creates a pager over collection. first 0 selects the
// configured default page size; fields defaults to id. Validation happens on
// the first Next call.
func (g *GraphQLMcp) NewCollectionPager(collection string, first int, fields []string) *CollectionPager {
	return &CollectionPager{
		g:     g,
		input: CollectionQueryInput{Collection: collection, First: first, Fields: fields},
	}
}

// Next fetches the next page. It returns ErrPagerDone after the last page and
// the original error forever after a failure.
func (p *CollectionPager) Next(ctx context.Context) (*Page, error) {
	switch p.state {
	case PagerExhausted:
		return nil, ErrPagerDone
	case PagerFailed:
		return nil, p.err
	}

	startTime := time.Now()
	page, _, err := p.g.collectionPage(ctx, opCollectionPager, p.input)
	p.g.metrics.Observe(opCollectionPager, err, time.Since(startTime))
	if err != nil {
		p.state = PagerFailed
		p.err = err
		p.g.logger.Error().
			Err(err).
			Str("collection", p.input.Collection).
			Int("pages", p.pages).
			Msg("collection pager failed")
		return nil, err
	}

	p.pages++
	p.g.metrics.PageFetched()
	if next := page.NextCursor(); next != "" {
		p.state = PagerHasNext
		p.input.After = next
	} else {
		p.state = PagerExhausted
		p.input.After = ""
	}

	p.g.logger.Debug().
		Str("collection", p.input.Collection).
		Int("page", p.pages).
		Int("edge_count", len(page.Edges)).
		Str("state", p.state.String()).
		Msg("collection page fetched")
	return page, nil
}

// State returns the current state.
func (p *CollectionPager) State() PagerState {
	return p.state
}

// Done reports whether the pager reached a terminal state.
func (p *CollectionPager) Done() bool {
	return p.state == PagerExhausted || p.state == PagerFailed
}

// Err returns the error that moved the pager to PagerFailed.
func (p *CollectionPager) Err() error {
	return p.err
}

// Cursor returns the cursor the next fetch will send, "" before the first
// fetch and after the last.
func (p *CollectionPager) Cursor() string {
	return p.input.After
}

// Pages returns the number of pages fetched so far.
func (p *CollectionPager) Pages() int {
	return p.pages
}
