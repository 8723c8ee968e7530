// Package grasql is an embeddable GraphQL to SQL compilation engine. It
// parses and normalizes GraphQL text, resolves field names against a
// host-supplied schema resolver, and generates parameterized Postgres
// statements. It executes nothing: the host owns connections, transactions
// and result decoding.
package grasql

import (
	"context"
	"log/slog"
	"regexp"

	"go.opentelemetry.io/otel/attribute"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/internal/intern"
	"github.com/simple-platform/grasql-sub001/internal/logging"
	"github.com/simple-platform/grasql-sub001/internal/observability"
	"github.com/simple-platform/grasql-sub001/internal/querycache"
	"github.com/simple-platform/grasql-sub001/internal/resolve"
	"github.com/simple-platform/grasql-sub001/internal/sqlgen"
)

// OperationKind classifies a parsed operation.
type OperationKind string

const (
	OperationQuery        OperationKind = "query"
	OperationMutation     OperationKind = "mutation"
	OperationSubscription OperationKind = "subscription"
)

// ParseResult describes a parsed query. The Handle identifies the cached
// normalized form and can be passed to GenerateSQL instead of the raw text
// while the cache entry lives.
type ParseResult struct {
	Handle        string
	OperationKind OperationKind
	// OperationName is empty for anonymous operations.
	OperationName string
	Named         bool
}

// Statement is one generated SQL statement. Params are ordered exactly as
// their placeholders appear in the SQL text.
type Statement struct {
	SQL    string
	Params []any
	// WantsAffectedRows marks a mutation whose selection requested the
	// affected-row count.
	WantsAffectedRows bool
}

// interner is process-wide and survives engine re-initialization: symbols
// are append-only and never invalidated.
var interner = intern.NewInterner()

// Engine is a compiled-query pipeline instance. Safe for unbounded
// concurrent use; it spawns no goroutines of its own.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	parseOpts gqlparse.Options
	cache     *querycache.Cache
	resolver  *resolve.Engine
	generator *sqlgen.Generator
}

// New validates cfg and builds an engine. No partial application: on error
// nothing is retained.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		parseOpts: gqlparse.Options{
			Interner: interner,
			MaxDepth: cfg.MaxQueryDepth,
		},
		generator: sqlgen.NewGenerator(sqlgen.Options{
			PaginationAliases: cfg.PaginationAliases,
		}),
	}
	e.cache = querycache.New(cfg.MaxCacheSize, cfg.CacheTTL, func(text string) (*gqlparse.ParsedQuery, error) {
		return gqlparse.Parse(text, e.parseOpts)
	}, metrics)
	e.resolver = resolve.NewEngine(resolve.Options{
		AggregateFieldSuffix:    cfg.AggregateFieldSuffix,
		AggregateNodesFieldName: cfg.AggregateNodesFieldName,
		PrimaryKeyArgumentName:  cfg.PrimaryKeyArgumentName,
		InsertPrefix:            cfg.InsertPrefix,
		UpdatePrefix:            cfg.UpdatePrefix,
		DeletePrefix:            cfg.DeletePrefix,
		PaginationAliases:       cfg.PaginationAliases,
		CacheSize:               cfg.MaxCacheSize,
		CacheTTL:                cfg.CacheTTL,
	}, cfg.Resolver, metrics)
	return e, nil
}

// ParseQuery parses and normalizes text, returning its handle and operation
// classification. Repeated calls with identical text within the cache TTL
// return the same handle without re-parsing.
func (e *Engine) ParseQuery(ctx context.Context, text string) (ParseResult, error) {
	ctx, span := observability.StartSpan(ctx, "grasql.parse")
	pq, hit, err := e.cache.GetOrParse(ctx, text)
	observability.FinishSpan(span, err)
	if err != nil {
		e.logger.Debug("parse failed", "error", err)
		return ParseResult{}, err
	}
	e.logger.Debug("parsed query", "handle", pq.Handle, "cached", hit)
	return parseResult(pq), nil
}

// LookupQuery reports whether a handle is still cached.
func (e *Engine) LookupQuery(handle string) (ParseResult, bool) {
	pq, ok := e.cache.Lookup(handle)
	if !ok {
		return ParseResult{}, false
	}
	return parseResult(pq), true
}

// handlePattern matches the hex form of a 64-bit content hash. Valid GraphQL
// documents cannot collide with it, so a matching input is always treated as
// a handle.
var handlePattern = regexp.MustCompile(`^[0-9a-f]{1,16}$`)

// GenerateSQL compiles a query to SQL. handleOrText is either a handle from
// ParseQuery (skipping the parse while cached; an expired handle is
// ErrNotFound) or raw GraphQL text, compiled in one call. resolverCtx is
// passed to every resolver callback verbatim.
func (e *Engine) GenerateSQL(ctx context.Context, handleOrText string, variables map[string]any, resolverCtx any) (Statement, error) {
	var (
		pq  *gqlparse.ParsedQuery
		err error
	)
	if handlePattern.MatchString(handleOrText) {
		cached, ok := e.cache.Lookup(handleOrText)
		if !ok {
			return Statement{}, graerr.ErrNotFound
		}
		pq = cached
	} else {
		pq, _, err = e.cache.GetOrParse(ctx, handleOrText)
		if err != nil {
			return Statement{}, err
		}
	}

	rctx, span := observability.StartSpan(ctx, "grasql.resolve",
		attribute.String("grasql.handle", pq.Handle))
	plan, err := e.resolver.Resolve(rctx, pq, resolverCtx)
	observability.FinishSpan(span, err)
	if err != nil {
		e.logger.Warn("resolution failed", "handle", pq.Handle, "error", err)
		return Statement{}, err
	}

	_, span = observability.StartSpan(ctx, "grasql.generate",
		attribute.String("grasql.handle", pq.Handle))
	stmt, err := e.generator.Generate(plan, variables)
	observability.FinishSpan(span, err)
	if err != nil {
		e.logger.Warn("generation failed", "handle", pq.Handle, "error", err)
		return Statement{}, err
	}

	return Statement{
		SQL:               stmt.SQL,
		Params:            stmt.Params,
		WantsAffectedRows: stmt.WantsAffectedRows,
	}, nil
}

// PurgeCaches drops every cached parse and resolution result. Schema changes
// on the host side call this to force re-resolution.
func (e *Engine) PurgeCaches() {
	e.cache.Purge()
	e.resolver.Purge()
}

func parseResult(pq *gqlparse.ParsedQuery) ParseResult {
	return ParseResult{
		Handle:        pq.Handle,
		OperationKind: OperationKind(pq.OperationKind.String()),
		OperationName: pq.OperationName,
		Named:         pq.Named,
	}
}
