package grasql

import (
	"fmt"
	"log/slog"
	"time"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/schema"
)

// Config configures an Engine. Validation is fail-fast and never clamps: an
// invalid value is a ConfigError, not a silent correction.
type Config struct {
	// AggregateFieldSuffix marks fields that take the aggregate compile path.
	AggregateFieldSuffix string
	// AggregateNodesFieldName is the row-list sub-selection name under an
	// aggregate field.
	AggregateNodesFieldName string
	// PrimaryKeyArgumentName is the argument compiled as an equality filter
	// on the column of the same name.
	PrimaryKeyArgumentName string

	// InsertPrefix, UpdatePrefix and DeletePrefix classify mutation root
	// fields. A mutation root matching none of them is an insert.
	InsertPrefix string
	UpdatePrefix string
	DeletePrefix string

	// PaginationAliases maps relay-style argument names onto "limit" or
	// "offset". Mixing aliased and canonical pagination in one selection is
	// a generation error.
	PaginationAliases map[string]string

	// MaxCacheSize bounds the parse cache and each resolution cache. Must be
	// positive.
	MaxCacheSize int
	// CacheTTL expires cache entries. Must be positive.
	CacheTTL time.Duration
	// MaxQueryDepth bounds selection nesting. Zero means unbounded.
	MaxQueryDepth int

	// Resolver is the host-supplied schema capability set. All four
	// operations are required.
	Resolver schema.ResolverFuncs

	// Logger receives compile diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns the conventional configuration. The resolver must
// still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		AggregateFieldSuffix:    "_aggregate",
		AggregateNodesFieldName: "nodes",
		PrimaryKeyArgumentName:  "id",
		InsertPrefix:            "insert_",
		UpdatePrefix:            "update_",
		DeletePrefix:            "delete_",
		PaginationAliases:       map[string]string{"first": "limit"},
		MaxCacheSize:            1000,
		CacheTTL:                time.Hour,
		MaxQueryDepth:           30,
	}
}

func invalid(field, msg string) error {
	return &graerr.ConfigError{Kind: graerr.ConfigInvalidValue, Field: field, Message: msg}
}

// Validate checks the configuration without applying any of it.
func (c Config) Validate() error {
	if c.MaxCacheSize <= 0 {
		return invalid("MaxCacheSize", fmt.Sprintf("must be positive, got %d", c.MaxCacheSize))
	}
	if c.CacheTTL <= 0 {
		return invalid("CacheTTL", fmt.Sprintf("must be positive, got %s", c.CacheTTL))
	}
	if c.MaxQueryDepth < 0 {
		return invalid("MaxQueryDepth", fmt.Sprintf("must not be negative, got %d", c.MaxQueryDepth))
	}
	if c.AggregateFieldSuffix == "" {
		return invalid("AggregateFieldSuffix", "must not be empty")
	}
	if c.AggregateNodesFieldName == "" {
		return invalid("AggregateNodesFieldName", "must not be empty")
	}
	for alias, target := range c.PaginationAliases {
		if target != "limit" && target != "offset" {
			return invalid("PaginationAliases",
				fmt.Sprintf("alias %q must map to limit or offset, got %q", alias, target))
		}
	}
	if missing := c.Resolver.MissingOperations(); len(missing) > 0 {
		return &graerr.ConfigError{Kind: graerr.ConfigIncompleteResolver, Missing: missing}
	}
	return nil
}
