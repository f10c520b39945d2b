// Package iteration helps node implementations drive their scope callbacks
// over collections. Scope activations report their own execution indices,
// so the callback itself must run sequentially per activation; the helper
// keeps the per-item bookkeeping in one place.
package iteration

import (
	"context"
	"fmt"
)

// ItemFunc processes one collection item; idx is the zero-based position.
// The returned value is collected into the iteration results.
type ItemFunc func(ctx context.Context, item interface{}, idx int) (interface{}, error)

// ForEach invokes fn for every item in order, fail-fast, honoring context
// cancellation between items. Returns the collected per-item results.
func ForEach(ctx context.Context, items []interface{}, fn ItemFunc) ([]interface{}, error) {
	results := make([]interface{}, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("iteration cancelled at item %d: %w", i, err)
		}
		out, err := fn(ctx, item, i)
		if err != nil {
			return nil, fmt.Errorf("failed processing item %d: %w", i, err)
		}
		results[i] = out
	}
	return results, nil
}

// Reduce folds fn over the items in order with an initial accumulator,
// fail-fast, honoring context cancellation between items.
func Reduce(ctx context.Context, items []interface{}, acc interface{}, fn func(ctx context.Context, acc, item interface{}, idx int) (interface{}, error)) (interface{}, error) {
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("iteration cancelled at item %d: %w", i, err)
		}
		next, err := fn(ctx, acc, item, i)
		if err != nil {
			return nil, fmt.Errorf("failed reducing item %d: %w", i, err)
		}
		acc = next
	}
	return acc, nil
}
