package detector

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// expressionKinds lists the node kinds an access is widened through.
// arguments and template_substitution are not expressions themselves but only
// ever appear inside one, so they are traversed. Assignments, sequences, array
// and object literals, pairs and declarators end the widening.
var expressionKinds = map[string]bool{
	"binary_expression":        true,
	"ternary_expression":       true,
	"unary_expression":         true,
	"call_expression":          true,
	"arguments":                true,
	"new_expression":           true,
	"await_expression":         true,
	"parenthesized_expression": true,
	"member_expression":        true,
	"subscript_expression":     true,
	"template_string":          true,
	"template_substitution":    true,
	"as_expression":            true,
	"satisfies_expression":     true,
	"non_null_expression":      true,
	"type_assertion":           true,
}

func isExpressionNode(node *sitter.Node) bool {
	return node != nil && expressionKinds[node.Kind()]
}

// widen walks up from node while the parent is still an expression and
// returns the outermost expression reached.
func widen(node *sitter.Node) *sitter.Node {
	for {
		parent := node.Parent()
		if !isExpressionNode(parent) {
			return node
		}
		node = parent
	}
}

// walk visits node and all of its descendants depth-first
func walk(node *sitter.Node, visit func(*sitter.Node)) {
	visit(node)
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil {
			walk(child, visit)
		}
	}
}

// isObjectOf reports whether child is the object operand of an access expression
func isObjectOf(access *sitter.Node, child *sitter.Node) bool {
	object := access.ChildByFieldName("object")
	return object != nil && sameSpan(object, child)
}

func sameSpan(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func hasChildOfKind(node *sitter.Node, kind string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child != nil && child.Kind() == kind {
			return true
		}
	}
	return false
}

// staticKey returns the key of an element access when it is a string literal
// or a template literal without substitutions
func staticKey(index *sitter.Node, content []byte) (string, bool) {
	if index == nil {
		return "", false
	}
	switch index.Kind() {
	case "string":
	case "template_string":
		if hasChildOfKind(index, "template_substitution") {
			return "", false
		}
	default:
		return "", false
	}
	key := trimQuotes(index.Utf8Text(content))
	return key, key != ""
}

func trimQuotes(s string) string {
	return strings.Trim(s, "'\"`")
}

// location formats the 1-indexed line and column of a node
func location(node *sitter.Node) string {
	pos := node.StartPosition()
	return fmt.Sprintf("%d:%d", pos.Row+1, pos.Column+1)
}

// firstError finds the first error or missing node below root
func firstError(root *sitter.Node) *sitter.Node {
	var found *sitter.Node
	walk(root, func(n *sitter.Node) {
		if found == nil && (n.IsError() || n.IsMissing()) {
			found = n
		}
	})
	return found
}
