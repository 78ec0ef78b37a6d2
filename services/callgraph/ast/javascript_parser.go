// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("jscg.ast")

// JavaScriptParser lowers JavaScript source into the analysis AST.
//
// Description:
//
//	JavaScriptParser uses tree-sitter to parse a file and lowers the
//	concrete syntax tree into a flat FileTree: named nodes only, comments
//	dropped, grammar fields preserved for the node types the analysis reads.
//	Node IDs in a FileTree are local (0-based); Build rebases them into the
//	Program arena.
//
// Thread Safety:
//
//	JavaScriptParser is safe for concurrent use. Each Parse call creates its
//	own tree-sitter parser instance.
type JavaScriptParser struct {
	options JavaScriptParserOptions
}

// JavaScriptParserOptions configures JavaScriptParser behavior.
type JavaScriptParserOptions struct {
	// MaxFileSize is the maximum file size in bytes to parse.
	// Files larger than this fail with ErrFileTooLarge.
	// Default: 10MB
	MaxFileSize int

	// Concurrency is the number of files Build parses in parallel.
	// Default: 4
	Concurrency int
}

// DefaultJavaScriptParserOptions returns the default options.
func DefaultJavaScriptParserOptions() JavaScriptParserOptions {
	return JavaScriptParserOptions{
		MaxFileSize: 10 * 1024 * 1024, // 10MB
		Concurrency: 4,
	}
}

// JavaScriptParserOption is a functional option for configuring JavaScriptParser.
type JavaScriptParserOption func(*JavaScriptParserOptions)

// WithMaxFileSize sets the maximum file size for parsing.
func WithMaxFileSize(size int) JavaScriptParserOption {
	return func(o *JavaScriptParserOptions) {
		o.MaxFileSize = size
	}
}

// WithConcurrency sets how many files are parsed in parallel.
func WithConcurrency(n int) JavaScriptParserOption {
	return func(o *JavaScriptParserOptions) {
		o.Concurrency = n
	}
}

// NewJavaScriptParser creates a new JavaScriptParser with the given options.
func NewJavaScriptParser(opts ...JavaScriptParserOption) *JavaScriptParser {
	options := DefaultJavaScriptParserOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Concurrency <= 0 {
		options.Concurrency = 1
	}
	return &JavaScriptParser{options: options}
}

// Extensions returns the file extensions this parser handles.
func (p *JavaScriptParser) Extensions() []string {
	return []string{".js", ".mjs", ".cjs", ".jsx"}
}

// FileTree is the lowered AST of a single file with file-local node IDs.
type FileTree struct {
	Path  string
	Hash  string
	Nodes []Node
}

// Parse lowers one JavaScript file.
//
// Description:
//
//	Validates size and encoding, parses with tree-sitter and rejects any tree
//	that contains ERROR or MISSING nodes. The result uses local IDs starting
//	at 0 for the file's program node.
//
// Inputs:
//
//	ctx      - Context for cancellation. Checked before and after parsing.
//	content  - Raw JavaScript source bytes.
//	filePath - Path used in errors and node attribution.
//
// Outputs:
//
//	*FileTree - The lowered tree. Never nil on success.
//	error     - *ParseError for invalid input, or the context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *JavaScriptParser) Parse(ctx context.Context, content []byte, filePath string) (*FileTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("javascript parse canceled before start: %w", err)
	}

	ctx, span := tracer.Start(ctx, "JavaScriptParser.Parse")
	defer span.End()
	span.SetAttributes(attribute.String("file", filePath), attribute.Int("bytes", len(content)))

	if len(content) > p.options.MaxFileSize {
		return nil, &ParseError{File: filePath, Msg: ErrFileTooLarge.Error(), Err: ErrFileTooLarge}
	}
	if !utf8.Valid(content) {
		return nil, &ParseError{File: filePath, Msg: ErrInvalidContent.Error(), Err: ErrInvalidContent}
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed for %s: %w", filePath, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("javascript parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root, filePath)
	}

	ft := &FileTree{
		Path: filePath,
		Hash: hex.EncodeToString(hash[:]),
	}
	p.lower(root, content, ft)

	span.SetAttributes(attribute.Int("nodes", len(ft.Nodes)))
	return ft, nil
}

// syntaxError locates the first ERROR or MISSING node in pre-order.
func syntaxError(root *sitter.Node, filePath string) *ParseError {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsMissing() {
			return &ParseError{
				File:   filePath,
				Line:   int(n.StartPoint().Row) + 1,
				Column: int(n.StartPoint().Column),
				Msg:    fmt.Sprintf("missing %q", n.Type()),
			}
		}
		if n.Type() == "ERROR" {
			return &ParseError{
				File:   filePath,
				Line:   int(n.StartPoint().Row) + 1,
				Column: int(n.StartPoint().Column),
				Msg:    "unexpected token",
			}
		}
		if !n.HasError() {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if c := n.Child(i); c != nil {
				stack = append(stack, c)
			}
		}
	}
	return &ParseError{File: filePath, Line: 1, Msg: "syntax error"}
}

// fieldNames lists the grammar fields preserved per node type.
var fieldNames = map[string][]string{
	"call_expression":                 {"function", "arguments"},
	"new_expression":                  {"constructor", "arguments"},
	"member_expression":               {"object", "property"},
	"subscript_expression":            {"object", "index"},
	"assignment_expression":           {"left", "right"},
	"augmented_assignment_expression": {"left", "right"},
	"variable_declarator":             {"name", "value"},
	"function_declaration":            {"name", "parameters", "body"},
	"generator_function_declaration":  {"name", "parameters", "body"},
	"function":                        {"name", "parameters", "body"},
	"function_expression":             {"name", "parameters", "body"},
	"generator_function":              {"name", "parameters", "body"},
	"arrow_function":                  {"parameter", "parameters", "body"},
	"method_definition":               {"name", "parameters", "body"},
	"class_declaration":               {"name", "body"},
	"class":                           {"name", "body"},
	"field_definition":                {"property", "value"},
	"public_field_definition":         {"property", "value"},
	"pair":                            {"key", "value"},
	"pair_pattern":                    {"key", "value"},
	"assignment_pattern":              {"left", "right"},
	"object_assignment_pattern":       {"left", "right"},
	"catch_clause":                    {"parameter", "body"},
	"ternary_expression":              {"condition", "consequence", "alternative"},
	"binary_expression":               {"left", "right"},
	"import_statement":                {"source"},
	"import_specifier":                {"name", "alias"},
}

// textTypes are grammar types whose source text is kept on the node.
var textTypes = map[string]bool{
	"identifier":                            true,
	"property_identifier":                   true,
	"private_property_identifier":           true,
	"shorthand_property_identifier":         true,
	"shorthand_property_identifier_pattern": true,
	"statement_identifier":                  true,
	"number":                                true,
	"true":                                  true,
	"false":                                 true,
	"null":                                  true,
	"undefined":                             true,
	"regex":                                 true,
	"this":                                  true,
}

// kindOf maps a grammar type to its NodeKind.
func kindOf(nodeType string) NodeKind {
	switch nodeType {
	case "program":
		return KindProgram
	case "function_declaration", "generator_function_declaration", "function", "function_expression",
		"generator_function", "arrow_function", "method_definition":
		return KindFunction
	case "class_declaration", "class":
		return KindClass
	case "call_expression":
		return KindCall
	case "new_expression":
		return KindNew
	case "identifier", "shorthand_property_identifier", "shorthand_property_identifier_pattern":
		return KindIdentifier
	case "property_identifier", "private_property_identifier":
		return KindPropertyIdentifier
	case "member_expression":
		return KindMember
	case "subscript_expression":
		return KindSubscript
	case "assignment_expression", "augmented_assignment_expression":
		return KindAssignment
	case "variable_declaration", "lexical_declaration":
		return KindVarDeclaration
	case "variable_declarator":
		return KindVarDeclarator
	case "return_statement":
		return KindReturn
	case "object":
		return KindObject
	case "pair":
		return KindPair
	case "arguments":
		return KindArguments
	case "formal_parameters":
		return KindParameters
	case "catch_clause":
		return KindCatch
	case "string", "template_string":
		return KindString
	case "number", "true", "false", "null", "undefined", "regex":
		return KindLiteral
	case "this":
		return KindThis
	case "parenthesized_expression":
		return KindParenthesized
	case "ternary_expression":
		return KindTernary
	case "binary_expression":
		return KindBinary
	case "sequence_expression":
		return KindSequence
	case "spread_element":
		return KindSpread
	case "array":
		return KindArray
	case "import_statement":
		return KindImport
	case "field_definition", "public_field_definition":
		return KindFieldDefinition
	default:
		return KindOther
	}
}

type fieldKey struct {
	start, end uint32
	typ        string
}

type lowerEntry struct {
	node   *sitter.Node
	parent NodeID
	field  string
}

// lower flattens the tree-sitter tree into ft.Nodes in pre-order.
func (p *JavaScriptParser) lower(root *sitter.Node, content []byte, ft *FileTree) {
	stack := make([]lowerEntry, 0, 64)
	stack = append(stack, lowerEntry{node: root, parent: NoNode})

	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := entry.node

		nodeType := n.Type()
		id := NodeID(len(ft.Nodes))
		node := Node{
			ID:     id,
			Kind:   kindOf(nodeType),
			Type:   nodeType,
			Parent: entry.parent,
			Loc: Location{
				StartLine: int(n.StartPoint().Row) + 1,
				StartCol:  int(n.StartPoint().Column),
				EndLine:   int(n.EndPoint().Row) + 1,
				EndCol:    int(n.EndPoint().Column),
			},
			EnclosingFunction: NoNode,
		}

		switch {
		case textTypes[nodeType]:
			node.Text = n.Content(content)
		case nodeType == "string":
			node.Text = stringContent(n, content)
		case nodeType == "binary_expression":
			if op := n.ChildByFieldName("operator"); op != nil {
				node.Text = op.Type()
			}
		}

		ft.Nodes = append(ft.Nodes, node)
		if entry.parent.Valid() {
			parent := &ft.Nodes[entry.parent]
			parent.Children = append(parent.Children, id)
			if entry.field != "" {
				if parent.Fields == nil {
					parent.Fields = make(map[string]NodeID, 2)
				}
				parent.Fields[entry.field] = id
			}
		}

		var fieldOf map[fieldKey]string
		if names, ok := fieldNames[nodeType]; ok {
			fieldOf = make(map[fieldKey]string, len(names))
			for _, name := range names {
				if fc := n.ChildByFieldName(name); fc != nil {
					fieldOf[fieldKey{fc.StartByte(), fc.EndByte(), fc.Type()}] = name
				}
			}
		}

		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			child := n.Child(i)
			if child == nil || !child.IsNamed() || child.Type() == "comment" {
				continue
			}
			field := ""
			if fieldOf != nil {
				field = fieldOf[fieldKey{child.StartByte(), child.EndByte(), child.Type()}]
			}
			stack = append(stack, lowerEntry{
				node:   child,
				parent: id,
				field:  field,
			})
		}
	}
}

// stringContent extracts the string content without quotes.
func stringContent(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string_fragment" {
			return child.Content(content)
		}
	}
	// Fallback: remove quotes manually
	text := node.Content(content)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}
