// Package naming holds the mapping between table names and the GraphQL root
// fields pg_graphql exposes for them. A table T is queried through the root
// field T + "Collection".
package naming

import "strings"

// CollectionSuffix is appended to a table name to form its root field.
const CollectionSuffix = "Collection"

// ReservedPrefix marks GraphQL introspection names.
const ReservedPrefix = "__"

// RootField returns the root query field for a table.
func RootField(table string) string {
	return table + CollectionSuffix
}

// TableName reverses RootField. Returns false when the field is not a
// collection field: missing suffix, reserved prefix, or nothing left after
// stripping the suffix.
func TableName(field string) (string, bool) {
	if strings.HasPrefix(field, ReservedPrefix) {
		return "", false
	}
	table, ok := strings.CutSuffix(field, CollectionSuffix)
	if !ok || table == "" {
		return "", false
	}
	return table, true
}
