// Package querybuilder builds parameterized GraphQL operations for pg_graphql
// collections.
//
// Operations are assembled as data (operation, variables, arguments,
// selections) and printed through the gqlparser AST formatter. Every name that
// reaches the printed document is checked against identifierPattern first, so
// caller-supplied table and field names cannot inject syntax. Values such as
// page sizes and cursors are always bound as variables.
package querybuilder

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
	"github.com/rickchristie/pggraphql-mcp/internal/naming"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DefaultNodeFields is the node selection used when the caller names none.
var DefaultNodeFields = []string{"id"}

// DefaultPageSize is used when the caller does not set a page size.
const DefaultPageSize = 10

var pageInfoFields = []string{"hasNextPage", "hasPreviousPage", "endCursor", "startCursor"}

// ValidIdentifier reports whether s is safe to splice into a document.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidateIdentifier returns a validation error naming what was rejected.
func ValidateIdentifier(what, s string) error {
	if !ValidIdentifier(s) {
		return gqlclient.Validationf("invalid %s %q: must match %s", what, s, identifierPattern.String())
	}
	return nil
}

// Capitalize upper-cases the first character and lower-cases the rest:
// "news" -> "News", "userProfile" -> "Userprofile".
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// VariableDef declares an operation variable.
type VariableDef struct {
	Name    string
	Type    string
	NonNull bool
}

// Argument binds a field argument to an operation variable.
type Argument struct {
	Name     string
	Variable string
}

// Selection is a field with optional arguments and sub-selections.
type Selection struct {
	Field     string
	Arguments []Argument
	Children  []Selection
}

// Fields is shorthand for a list of leaf selections.
func Fields(names ...string) []Selection {
	sels := make([]Selection, len(names))
	for i, n := range names {
		sels[i] = Selection{Field: n}
	}
	return sels
}

// Operation is a named query operation.
type Operation struct {
	Name       string
	Variables  []VariableDef
	Selections []Selection
}

// Query is a rendered operation.
type Query struct {
	Text          string
	OperationName string
	RootField     string
}

// Render validates every name in the operation and prints it.
func (o Operation) Render() (string, error) {
	if err := o.validate(); err != nil {
		return "", err
	}
	def := &ast.OperationDefinition{
		Operation:    ast.Query,
		Name:         o.Name,
		SelectionSet: selectionSet(o.Selections),
	}
	for _, v := range o.Variables {
		typ := ast.NamedType(v.Type, nil)
		if v.NonNull {
			typ = ast.NonNullNamedType(v.Type, nil)
		}
		def.VariableDefinitions = append(def.VariableDefinitions, &ast.VariableDefinition{
			Variable: v.Name,
			Type:     typ,
		})
	}

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{def},
	})
	return buf.String(), nil
}

func (o Operation) validate() error {
	if err := ValidateIdentifier("operation name", o.Name); err != nil {
		return err
	}
	for _, v := range o.Variables {
		if err := ValidateIdentifier("variable name", v.Name); err != nil {
			return err
		}
		if err := ValidateIdentifier("variable type", v.Type); err != nil {
			return err
		}
	}
	return validateSelections(o.Selections)
}

func validateSelections(sels []Selection) error {
	for _, s := range sels {
		if err := ValidateIdentifier("field name", s.Field); err != nil {
			return err
		}
		for _, a := range s.Arguments {
			if err := ValidateIdentifier("argument name", a.Name); err != nil {
				return err
			}
			if err := ValidateIdentifier("variable name", a.Variable); err != nil {
				return err
			}
		}
		if err := validateSelections(s.Children); err != nil {
			return err
		}
	}
	return nil
}

func selectionSet(sels []Selection) ast.SelectionSet {
	set := make(ast.SelectionSet, 0, len(sels))
	for _, s := range sels {
		field := &ast.Field{
			Alias:        s.Field,
			Name:         s.Field,
			SelectionSet: selectionSet(s.Children),
		}
		for _, a := range s.Arguments {
			field.Arguments = append(field.Arguments, &ast.Argument{
				Name:  a.Name,
				Value: &ast.Value{Kind: ast.Variable, Raw: a.Variable},
			})
		}
		set = append(set, field)
	}
	return set
}

// CollectionOperationName returns "Get<Name>Collection" for a table.
func CollectionOperationName(collection string) string {
	return "Get" + Capitalize(collection) + naming.CollectionSuffix
}

// Collection builds the forward-pagination query for a table. fields selects
// node columns and defaults to DefaultNodeFields.
func Collection(collection string, fields []string) (*Query, error) {
	if err := ValidateIdentifier("collection name", collection); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = DefaultNodeFields
	}
	for _, f := range fields {
		if err := ValidateIdentifier("field name", f); err != nil {
			return nil, err
		}
	}

	rootField := naming.RootField(collection)
	op := Operation{
		Name: CollectionOperationName(collection),
		Variables: []VariableDef{
			{Name: "first", Type: "Int"},
			{Name: "after", Type: "String"},
		},
		Selections: []Selection{{
			Field: rootField,
			Arguments: []Argument{
				{Name: "first", Variable: "first"},
				{Name: "after", Variable: "after"},
			},
			Children: []Selection{
				{Field: "edges", Children: []Selection{
					{Field: "node", Children: Fields(fields...)},
					{Field: "cursor"},
				}},
				{Field: "pageInfo", Children: Fields(pageInfoFields...)},
			},
		}},
	}
	text, err := op.Render()
	if err != nil {
		return nil, err
	}
	return &Query{Text: text, OperationName: op.Name, RootField: rootField}, nil
}

// PageVariables binds first and, only when non-empty, the after cursor.
// The cursor is passed through untouched.
func PageVariables(first int, after string) map[string]any {
	vars := map[string]any{"first": first}
	if after != "" {
		vars["after"] = after
	}
	return vars
}

// TypeInfoOperation is the operation name of TypeInfo.
const TypeInfoOperation = "GetTableInfo"

// TypeInfo builds the type lookup query. The type name is bound through the
// $name variable; see TypeInfoVariables.
func TypeInfo() (*Query, error) {
	typeRef := func(children ...Selection) Selection {
		return Selection{Field: "ofType", Children: append(Fields("kind", "name"), children...)}
	}
	op := Operation{
		Name:      TypeInfoOperation,
		Variables: []VariableDef{{Name: "name", Type: "String", NonNull: true}},
		Selections: []Selection{{
			Field:     "__type",
			Arguments: []Argument{{Name: "name", Variable: "name"}},
			Children: append(Fields("kind", "name", "description"), Selection{
				Field: "fields",
				Children: []Selection{
					{Field: "name"},
					{Field: "type", Children: append(Fields("kind", "name"), typeRef(typeRef()))},
				},
			}),
		}},
	}
	text, err := op.Render()
	if err != nil {
		return nil, err
	}
	return &Query{Text: text, OperationName: op.Name, RootField: "__type"}, nil
}

// TypeInfoVariables binds the type name for TypeInfo.
func TypeInfoVariables(name string) map[string]any {
	return map[string]any{"name": name}
}
