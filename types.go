package gqlmcp

import (
	"bytes"
	"encoding/json"
	"slices"
	"sort"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

// GraphQLQueryInput is the input for the GraphQLQuery tool.
type GraphQLQueryInput struct {
	Query string `json:"query"`
	// Variables is a JSON object encoded as a string. Empty means no variables.
	Variables     string `json:"variables,omitempty"`
	OperationName string `json:"operation_name,omitempty"`
}

// Result is the output of GraphQLQuery, Introspect and DescribeTable. On
// success Fields holds the top-level keys of the GraphQL response (data and
// any siblings such as extensions). All errors are placed in Error, with
// matching error prompt messages appended.
type Result struct {
	Fields map[string]json.RawMessage
	Error  string

	// keys is the server's top-level key order.
	keys []string
}

func newResult(resp *gqlclient.Response) *Result {
	return &Result{Fields: resp.Fields(), keys: resp.Keys()}
}

// MarshalJSON emits the response object on success and {"error": ...}
// otherwise. Keys keep the server's order; keys it did not send follow in
// sorted order.
func (r *Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return encodeJSON(errorBody{Error: r.Error})
	}
	keys := make([]string, 0, len(r.Fields))
	for _, k := range r.keys {
		if _, ok := r.Fields[k]; ok && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}
	rest := make([]string, 0, len(r.Fields)-len(keys))
	for k := range r.Fields {
		if !slices.Contains(keys, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := encodeJSON(k)
		if err != nil {
			return nil, err
		}
		value, err := encodeJSON(r.Fields[k])
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Data returns the raw data payload.
func (r *Result) Data() json.RawMessage {
	return r.Fields["data"]
}

type errorBody struct {
	Error string `json:"error"`
}

// ListTablesInput is the input for the ListTables tool.
type ListTablesInput struct{}

// TableEntry represents a single collection in the ListTables output.
type TableEntry struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"` // always "collection"
	Description string `json:"description"`
}

// ListTablesOutput is the output of the ListTables tool.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
	Total  int          `json:"total"`
}

// DescribeTableInput is the input for the DescribeTable tool. Table is the
// GraphQL type name to look up, e.g. "News".
type DescribeTableInput struct {
	Table string `json:"table_name"`
}

// CollectionQueryInput is the input for the CollectionQuery tool.
type CollectionQueryInput struct {
	Collection string `json:"collection_name"`
	// First is the page size. 0 selects the configured default.
	First int `json:"first,omitempty"`
	// After is the endCursor of the previous page, passed back verbatim.
	After string `json:"after,omitempty"`
	// Fields selects node columns. Defaults to id.
	Fields []string `json:"fields,omitempty"`
}

// Edge wraps one record together with its opaque cursor. Node is kept as
// the server sent it, so its fields stay in selection order.
type Edge struct {
	Node   json.RawMessage `json:"node"`
	Cursor string          `json:"cursor"`
}

// Field returns one node field. Numbers decode as json.Number. A missing
// field or a node that is not an object yields nil.
func (e Edge) Field(name string) any {
	dec := json.NewDecoder(bytes.NewReader(e.Node))
	dec.UseNumber()
	var node map[string]any
	if err := dec.Decode(&node); err != nil {
		return nil
	}
	return node[name]
}

// PageInfo describes a page's position in the collection. Field order
// follows the generated selection.
type PageInfo struct {
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
	EndCursor       *string `json:"endCursor"`
	StartCursor     *string `json:"startCursor"`
}

// Page is one forward-pagination page of a collection.
type Page struct {
	Edges    []Edge   `json:"edges"`
	PageInfo PageInfo `json:"pageInfo"`
}

// NextCursor returns the cursor to continue from, or "" when the collection
// is exhausted.
func (p *Page) NextCursor() string {
	if !p.PageInfo.HasNextPage || p.PageInfo.EndCursor == nil {
		return ""
	}
	return *p.PageInfo.EndCursor
}

// CollectionQueryOutput is the output of the CollectionQuery tool. It
// encodes as {"data": {"<name>Collection": <page>}} on success and
// {"error": ...} otherwise.
type CollectionQueryOutput struct {
	RootField string
	Page      *Page
	Error     string
}

func (o *CollectionQueryOutput) MarshalJSON() ([]byte, error) {
	if o.Error != "" {
		return encodeJSON(errorBody{Error: o.Error})
	}
	return encodeJSON(map[string]map[string]*Page{
		"data": {o.RootField: o.Page},
	})
}

// encodeJSON marshals v without HTML escaping so payloads round-trip
// byte-for-byte.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// prettyJSON is the text form every tool returns: two-space indentation,
// non-ASCII and HTML characters left as is.
func prettyJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
