// Package protection rejects GraphQL documents that would write through a
// read-only MCP server.
package protection

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

// Config is the protection checker's own config type.
type Config struct {
	AllowMutations bool
	// MaxDepth caps selection nesting. 0 disables the check.
	MaxDepth int
}

// Checker validates GraphQL documents against protection rules.
type Checker struct {
	config Config
}

// NewChecker creates a new Checker with the given config.
func NewChecker(config Config) *Checker {
	return &Checker{config: config}
}

// Enabled reports whether any rule needs to inspect the document.
func (c *Checker) Enabled() bool {
	return !c.config.AllowMutations || c.config.MaxDepth > 0
}

// Check parses the document with gqlparser and inspects every operation in
// it, not just the one operationName selects. Returns nil if allowed, a
// KindValidation *gqlclient.Error if blocked. With no rule enabled the
// document is not parsed, and syntax errors are left to the server.
func (c *Checker) Check(query string) error {
	if !c.Enabled() {
		return nil
	}
	doc, err := parser.ParseQuery(&ast.Source{Name: "query", Input: query})
	if err != nil {
		return gqlclient.Validationf("GraphQL parse error: %v", err)
	}
	if len(doc.Operations) == 0 {
		return gqlclient.Validationf("GraphQL parse error: document contains no operation")
	}

	for _, op := range doc.Operations {
		if err := c.checkOperation(op, doc.Fragments); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) checkOperation(op *ast.OperationDefinition, fragments ast.FragmentDefinitionList) error {
	if !c.config.AllowMutations {
		switch op.Operation {
		case ast.Mutation:
			return gqlclient.Validationf("mutation operations are not allowed%s: the server is read-only", describe(op))
		case ast.Subscription:
			return gqlclient.Validationf("subscription operations are not allowed%s", describe(op))
		}
	}
	if c.config.MaxDepth > 0 {
		if d := depth(op.SelectionSet, fragments, map[string]bool{}); d > c.config.MaxDepth {
			return gqlclient.Validationf("query depth %d exceeds the maximum of %d%s", d, c.config.MaxDepth, describe(op))
		}
	}
	return nil
}

func describe(op *ast.OperationDefinition) string {
	if op.Name == "" {
		return ""
	}
	return " (operation " + op.Name + ")"
}

// depth returns the deepest field nesting in set. Fragment spreads are
// resolved by name; a fragment already on the current path counts as zero to
// stop cycles.
func depth(set ast.SelectionSet, fragments ast.FragmentDefinitionList, visiting map[string]bool) int {
	deepest := 0
	for _, sel := range set {
		var d int
		switch s := sel.(type) {
		case *ast.Field:
			d = 1 + depth(s.SelectionSet, fragments, visiting)
		case *ast.InlineFragment:
			d = depth(s.SelectionSet, fragments, visiting)
		case *ast.FragmentSpread:
			def := fragments.ForName(s.Name)
			if def == nil || visiting[s.Name] {
				continue
			}
			visiting[s.Name] = true
			d = depth(def.SelectionSet, fragments, visiting)
			delete(visiting, s.Name)
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}
