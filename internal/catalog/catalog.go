// Package catalog discovers queryable pg_graphql collections through schema
// introspection.
//
// Discovery is split in two: ParseRootFields decodes the introspection
// payload into a typed intermediate representation, and Collections applies
// the suffix heuristic to it as a pure function. The catalog is a heuristic
// projection of the schema; a root field that merely ends in "Collection" is
// listed even if it is not a paginated connection.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
	"github.com/rickchristie/pggraphql-mcp/internal/naming"
)

// KindCollection is the only table kind the catalog produces.
const KindCollection = "collection"

// ListTablesOperation is the operation name of ListTablesQuery.
const ListTablesOperation = "ListTables"

// ListTablesQuery requests the root query type's fields.
const ListTablesQuery = `query ListTables {
  __schema {
    queryType {
      fields {
        name
        description
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

// TypeRef is an introspection type reference. Wrapping kinds (NON_NULL,
// LIST) carry the wrapped type in OfType.
type TypeRef struct {
	Kind   string   `json:"kind"`
	Name   *string  `json:"name"`
	OfType *TypeRef `json:"ofType"`
}

// String renders the reference in SDL notation, e.g. "[News!]!".
func (t *TypeRef) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case "NON_NULL":
		return t.OfType.String() + "!"
	case "LIST":
		return "[" + t.OfType.String() + "]"
	}
	if t.Name != nil {
		return *t.Name
	}
	return ""
}

// Field is one root query field.
type Field struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Type        TypeRef `json:"type"`
}

// Table describes one collection.
type Table struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// Catalog is the result of one Build call.
type Catalog struct {
	Tables []Table `json:"tables"`
	Total  int     `json:"total"`
}

// Executor runs a GraphQL request. gqlclient.Transport satisfies it.
type Executor interface {
	Execute(ctx context.Context, req gqlclient.Request) (*gqlclient.Response, error)
}

type introspectionData struct {
	Schema *struct {
		QueryType *struct {
			Fields []Field `json:"fields"`
		} `json:"queryType"`
	} `json:"__schema"`
}

// ParseRootFields extracts the root query fields from an introspection
// response.
func ParseRootFields(resp *gqlclient.Response) ([]Field, error) {
	var data introspectionData
	if err := resp.DecodeData(&data); err != nil {
		return nil, err
	}
	if data.Schema == nil {
		return nil, &gqlclient.Error{Kind: gqlclient.KindDecode, Err: errors.New("introspection response has no __schema")}
	}
	if data.Schema.QueryType == nil {
		return nil, &gqlclient.Error{Kind: gqlclient.KindDecode, Err: errors.New("introspection response has no queryType")}
	}
	return data.Schema.QueryType.Fields, nil
}

// Collections keeps collection fields in server order and maps each to its
// table name.
func Collections(fields []Field) []Table {
	tables := make([]Table, 0, len(fields))
	for _, f := range fields {
		name, ok := naming.TableName(f.Name)
		if !ok {
			continue
		}
		desc := ""
		if f.Description != nil {
			desc = *f.Description
		}
		tables = append(tables, Table{Name: name, Kind: KindCollection, Description: desc})
	}
	return tables
}

// Build runs ListTablesQuery and returns the catalog. Any failure aborts the
// build; no partial catalog is returned.
func Build(ctx context.Context, exec Executor) (*Catalog, error) {
	resp, err := exec.Execute(ctx, gqlclient.Request{Query: ListTablesQuery, OperationName: ListTablesOperation})
	if err != nil {
		return nil, fmt.Errorf("catalog: introspection failed: %w", err)
	}
	fields, err := ParseRootFields(resp)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	tables := Collections(fields)
	return &Catalog{Tables: tables, Total: len(tables)}, nil
}
