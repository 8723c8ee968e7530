// Package gqlparse parses GraphQL source into a normalized selection tree.
// Normalization inlines every fragment spread (rejecting cycles), classifies
// the operation, and computes the content hash used as the query's cache
// identity. The stored tree is immutable after normalization.
package gqlparse

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/arena"
	"github.com/simple-platform/grasql-sub001/internal/intern"
)

// OperationKind classifies the parsed operation.
type OperationKind int

const (
	OperationQuery OperationKind = iota
	OperationMutation
	OperationSubscription
)

func (k OperationKind) String() string {
	switch k {
	case OperationMutation:
		return "mutation"
	case OperationSubscription:
		return "subscription"
	}
	return "query"
}

// SelectionNode is one field of the normalized selection tree. Fragment
// spreads have already been inlined, so children are fields only.
type SelectionNode struct {
	Field     intern.Symbol
	Name      string
	Alias     string
	Arguments []Argument
	Children  []arena.Ref
}

// ResponseKey is the alias when present, otherwise the field name.
func (n *SelectionNode) ResponseKey() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// VariableDef is one declared operation variable.
type VariableDef struct {
	Name     string
	TypeName string
	Required bool
	IsList   bool
}

// ParsedQuery is the cache-owned result of parsing and normalizing one
// query document. It is never mutated after creation.
type ParsedQuery struct {
	Hash          uint64
	Handle        string
	OperationKind OperationKind
	OperationName string
	Named         bool
	Variables     []VariableDef
	Roots         []arena.Ref
	Nodes         *arena.Arena[SelectionNode]
	Depth         int
}

// Options tunes parsing.
type Options struct {
	// Interner receives every field name seen. Required.
	Interner *intern.Interner
	// MaxDepth bounds selection nesting. Zero means unbounded.
	MaxDepth int
}

type converter struct {
	opts      Options
	fragments map[string]*ast.FragmentDefinition
	// active tracks fragments on the current inlining path for cycle detection.
	active map[string]bool
	nodes  *arena.Arena[SelectionNode]
	depth  int
}

// Parse parses and normalizes text. On any error no partial result is
// returned.
func Parse(text string, opts Options) (*ParsedQuery, error) {
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(text),
			Name: "graphql",
		}),
	})
	if err != nil {
		return nil, syntaxError(err)
	}

	var op *ast.OperationDefinition
	fragments := make(map[string]*ast.FragmentDefinition)
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			if op == nil {
				op = d
			}
		case *ast.FragmentDefinition:
			if d.Name != nil {
				fragments[d.Name.Value] = d
			}
		}
	}
	if op == nil {
		return nil, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: "document contains no operation"}
	}

	c := &converter{
		opts:      opts,
		fragments: fragments,
		active:    make(map[string]bool),
		nodes:     arena.New[SelectionNode](16),
	}

	roots, err := c.convertSelectionSet(op.SelectionSet, 1)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: "operation has an empty selection set"}
	}

	hash := HashQuery(text)
	pq := &ParsedQuery{
		Hash:          hash,
		Handle:        FormatHandle(hash),
		OperationKind: operationKind(op),
		Variables:     variableDefs(op),
		Roots:         roots,
		Nodes:         c.nodes,
		Depth:         c.depth,
	}
	if op.Name != nil && op.Name.Value != "" {
		pq.OperationName = op.Name.Value
		pq.Named = true
	}
	return pq, nil
}

func operationKind(op *ast.OperationDefinition) OperationKind {
	switch op.Operation {
	case ast.OperationTypeMutation:
		return OperationMutation
	case ast.OperationTypeSubscription:
		return OperationSubscription
	}
	// A bare selection set parses with an empty operation type and defaults
	// to a query.
	return OperationQuery
}

func variableDefs(op *ast.OperationDefinition) []VariableDef {
	if len(op.VariableDefinitions) == 0 {
		return nil
	}
	defs := make([]VariableDef, 0, len(op.VariableDefinitions))
	for _, vd := range op.VariableDefinitions {
		if vd == nil || vd.Variable == nil || vd.Variable.Name == nil {
			continue
		}
		def := VariableDef{Name: vd.Variable.Name.Value}
		def.TypeName, def.Required, def.IsList = unwrapType(vd.Type)
		defs = append(defs, def)
	}
	return defs
}

func unwrapType(t ast.Type) (name string, required, isList bool) {
	switch tt := t.(type) {
	case *ast.NonNull:
		name, _, isList = unwrapType(tt.Type)
		return name, true, isList
	case *ast.List:
		name, required, _ = unwrapType(tt.Type)
		return name, required, true
	case *ast.Named:
		if tt.Name != nil {
			return tt.Name.Value, false, false
		}
	}
	return "", false, false
}

func (c *converter) convertSelectionSet(set *ast.SelectionSet, depth int) ([]arena.Ref, error) {
	if set == nil {
		return nil, nil
	}
	if c.opts.MaxDepth > 0 && depth > c.opts.MaxDepth {
		return nil, &graerr.ParseError{
			Kind:    graerr.ParseDepthExceeded,
			Message: fmt.Sprintf("selection nesting exceeds maximum depth %d", c.opts.MaxDepth),
		}
	}
	if depth > c.depth {
		c.depth = depth
	}

	var refs []arena.Ref
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			ref, err := c.convertField(s, depth)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		case *ast.InlineFragment:
			// Type conditions carry no meaning against a duck-typed schema;
			// the selections are inlined directly.
			children, err := c.convertSelectionSet(s.SelectionSet, depth)
			if err != nil {
				return nil, err
			}
			refs = append(refs, children...)
		case *ast.FragmentSpread:
			children, err := c.inlineSpread(s, depth)
			if err != nil {
				return nil, err
			}
			refs = append(refs, children...)
		}
	}
	return refs, nil
}

func (c *converter) inlineSpread(spread *ast.FragmentSpread, depth int) ([]arena.Ref, error) {
	if spread.Name == nil || spread.Name.Value == "" {
		return nil, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: "fragment spread without a name"}
	}
	name := spread.Name.Value
	if c.active[name] {
		return nil, &graerr.ParseError{
			Kind:    graerr.ParseCyclicFragment,
			Message: fmt.Sprintf("fragment %q references itself", name),
		}
	}
	frag, ok := c.fragments[name]
	if !ok {
		return nil, &graerr.ParseError{
			Kind:    graerr.ParseSyntax,
			Message: fmt.Sprintf("unknown fragment %q", name),
		}
	}

	c.active[name] = true
	children, err := c.convertSelectionSet(frag.SelectionSet, depth)
	delete(c.active, name)
	return children, err
}

func (c *converter) convertField(f *ast.Field, depth int) (arena.Ref, error) {
	if f.Name == nil || f.Name.Value == "" {
		return arena.Nil, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: "field without a name"}
	}

	node := SelectionNode{
		Field: c.opts.Interner.Intern(f.Name.Value),
		Name:  f.Name.Value,
	}
	if f.Alias != nil {
		node.Alias = f.Alias.Value
	}

	for _, arg := range f.Arguments {
		if arg == nil || arg.Name == nil {
			continue
		}
		val, err := convertValue(arg.Value)
		if err != nil {
			return arena.Nil, err
		}
		node.Arguments = append(node.Arguments, Argument{Name: arg.Name.Value, Value: val})
	}

	children, err := c.convertSelectionSet(f.SelectionSet, depth+1)
	if err != nil {
		return arena.Nil, err
	}
	node.Children = children

	return c.nodes.Alloc(node), nil
}

func convertValue(v ast.Value) (Value, error) {
	switch vv := v.(type) {
	case *ast.Variable:
		if vv.Name == nil {
			return Value{}, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: "variable without a name"}
		}
		return Value{Kind: ValueVar, Str: vv.Name.Value}, nil
	case *ast.IntValue:
		n, err := strconv.ParseInt(vv.Value, 10, 64)
		if err != nil {
			return Value{}, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: fmt.Sprintf("invalid int literal %q", vv.Value)}
		}
		return Value{Kind: ValueInt, Int: n}, nil
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(vv.Value, 64)
		if err != nil {
			return Value{}, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: fmt.Sprintf("invalid float literal %q", vv.Value)}
		}
		return Value{Kind: ValueFloat, Float: f}, nil
	case *ast.StringValue:
		return Value{Kind: ValueString, Str: vv.Value}, nil
	case *ast.BooleanValue:
		return Value{Kind: ValueBool, Bool: vv.Value}, nil
	case *ast.EnumValue:
		return Value{Kind: ValueEnum, Str: vv.Value}, nil
	case *ast.ListValue:
		out := Value{Kind: ValueList}
		for _, item := range vv.Values {
			converted, err := convertValue(item)
			if err != nil {
				return Value{}, err
			}
			out.List = append(out.List, converted)
		}
		return out, nil
	case *ast.ObjectValue:
		out := Value{Kind: ValueObject}
		for _, field := range vv.Fields {
			if field == nil || field.Name == nil {
				continue
			}
			converted, err := convertValue(field.Value)
			if err != nil {
				return Value{}, err
			}
			out.Fields = append(out.Fields, ObjectField{Name: field.Name.Value, Value: converted})
		}
		return out, nil
	case nil:
		return Value{Kind: ValueNull}, nil
	}
	if v.GetKind() == "NullValue" {
		return Value{Kind: ValueNull}, nil
	}
	return Value{}, &graerr.ParseError{Kind: graerr.ParseSyntax, Message: fmt.Sprintf("unsupported value kind %s", v.GetKind())}
}

func syntaxError(err error) *graerr.ParseError {
	pe := &graerr.ParseError{Kind: graerr.ParseSyntax, Message: err.Error()}
	if ge, ok := err.(*gqlerrors.Error); ok {
		pe.Message = ge.Message
		if len(ge.Locations) > 0 {
			pe.Line = ge.Locations[0].Line
			pe.Column = ge.Locations[0].Column
		}
	}
	return pe
}
