// Package gqlerrors defines the error taxonomy shared by the compile
// pipeline. Every error carries a stable kind tag plus a human-readable
// message so hosts can branch on kind without parsing text.
package gqlerrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a query handle is no longer cached.
var ErrNotFound = errors.New("query not found")

// ErrNotInitialized is returned by package-level calls before Initialize.
var ErrNotInitialized = errors.New("grasql not initialized")

// ConfigKind tags configuration errors.
type ConfigKind int

const (
	// ConfigInvalidValue indicates a configuration value failed validation.
	ConfigInvalidValue ConfigKind = iota
	// ConfigIncompleteResolver indicates the resolver capability set is
	// missing one or more operations.
	ConfigIncompleteResolver
)

// ConfigError is fatal to initialization and never partially applied.
type ConfigError struct {
	Kind    ConfigKind
	Field   string
	Message string
	// Missing holds the names of absent resolver operations when
	// Kind is ConfigIncompleteResolver.
	Missing []string
}

func (e *ConfigError) Error() string {
	if e.Kind == ConfigIncompleteResolver {
		return fmt.Sprintf("incomplete resolver: missing %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// ParseKind tags parse errors.
type ParseKind int

const (
	// ParseSyntax indicates malformed GraphQL source.
	ParseSyntax ParseKind = iota
	// ParseCyclicFragment indicates fragment spreads form a reference cycle.
	ParseCyclicFragment
	// ParseDepthExceeded indicates selection nesting beyond the configured maximum.
	ParseDepthExceeded
)

// ParseError is local to one request and never pollutes the parse cache.
type ParseError struct {
	Kind    ParseKind
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ParseCyclicFragment:
		return fmt.Sprintf("cyclic fragment: %s", e.Message)
	case ParseDepthExceeded:
		return fmt.Sprintf("query depth exceeded: %s", e.Message)
	default:
		if e.Line > 0 {
			return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Column, e.Message)
		}
		return fmt.Sprintf("syntax error: %s", e.Message)
	}
}

// SchemaKind tags schema resolution errors.
type SchemaKind int

const (
	// SchemaUnresolvedField indicates a field matched no table, relationship or column.
	SchemaUnresolvedField SchemaKind = iota
	// SchemaResolverFailed indicates the host resolver returned an error or panicked.
	SchemaResolverFailed
)

// SchemaError is local to one request. A resolver failure preserves the
// underlying cause message verbatim for diagnostics.
type SchemaError struct {
	Kind  SchemaKind
	Field string
	Cause error
}

func (e *SchemaError) Error() string {
	if e.Kind == SchemaResolverFailed {
		return fmt.Sprintf("resolver failed for field %q: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("unresolved field %q", e.Field)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// GenKind tags SQL generation errors.
type GenKind int

const (
	// GenUnknownOperator indicates an unrecognized filter operator name.
	GenUnknownOperator GenKind = iota
	// GenConflictingPagination indicates limit/offset mixed with relay-style arguments.
	GenConflictingPagination
	// GenMissingVariable indicates a referenced variable absent from the variables map.
	GenMissingVariable
	// GenVariableTypeMismatch indicates a variable value incompatible with the
	// target column's SQL type.
	GenVariableTypeMismatch
	// GenInvalidArgument indicates a structurally malformed argument value.
	GenInvalidArgument
)

// GenError is local to one request.
type GenError struct {
	Kind    GenKind
	Name    string
	Message string
}

func (e *GenError) Error() string {
	switch e.Kind {
	case GenUnknownOperator:
		return fmt.Sprintf("unknown operator %q", e.Name)
	case GenConflictingPagination:
		return fmt.Sprintf("conflicting pagination arguments: %s", e.Message)
	case GenMissingVariable:
		return fmt.Sprintf("missing variable $%s", e.Name)
	case GenVariableTypeMismatch:
		return fmt.Sprintf("variable $%s: %s", e.Name, e.Message)
	default:
		return e.Message
	}
}
