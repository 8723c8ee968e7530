package grasql

import (
	"context"
	"sync/atomic"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
)

// The package-level engine mirrors the original single-instance embedding
// model: the host initializes once and every worker calls through the shared
// instance. Re-initialization swaps the whole engine atomically; in-flight
// requests finish against the engine they started with. The interner is the
// one piece of state that survives the swap.

var defaultEngine atomic.Pointer[Engine]

// Initialize builds the process-wide engine from cfg, replacing any previous
// one. Configuration errors leave the previous engine in place.
func Initialize(cfg Config) error {
	e, err := New(cfg)
	if err != nil {
		return err
	}
	defaultEngine.Store(e)
	return nil
}

// Default returns the process-wide engine, nil before Initialize.
func Default() *Engine {
	return defaultEngine.Load()
}

// ParseQuery parses text through the process-wide engine.
func ParseQuery(ctx context.Context, text string) (ParseResult, error) {
	e := defaultEngine.Load()
	if e == nil {
		return ParseResult{}, graerr.ErrNotInitialized
	}
	return e.ParseQuery(ctx, text)
}

// GenerateSQL compiles a query through the process-wide engine.
func GenerateSQL(ctx context.Context, handleOrText string, variables map[string]any, resolverCtx any) (Statement, error) {
	e := defaultEngine.Load()
	if e == nil {
		return Statement{}, graerr.ErrNotInitialized
	}
	return e.GenerateSQL(ctx, handleOrText, variables, resolverCtx)
}
