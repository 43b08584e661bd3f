package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/transfer"
)

// ValidationTimeout bounds the two counts of one order.
const ValidationTimeout = 5 * time.Minute

// ValidationResult compares the row counts of one order's source and target.
type ValidationResult struct {
	Order       string
	SourceCount int64
	TargetCount int64
	Err         error
}

// Match reports whether both counts succeeded and agree.
func (r ValidationResult) Match() bool {
	return r.Err == nil && r.SourceCount == r.TargetCount
}

// Validate counts the rows of every copy or insert order's source and target
// in parallel. Other operations do not preserve counts and are skipped.
func (o *Orchestrator) Validate(ctx context.Context, orders []transfer.Order) ([]ValidationResult, error) {
	results := make(chan ValidationResult, len(orders))
	var wg sync.WaitGroup
	for _, order := range orders {
		if order.Operation != transfer.Copy && order.Operation != transfer.Insert {
			continue
		}
		wg.Add(1)
		go func(order transfer.Order) {
			defer wg.Done()
			results <- o.validateOrder(ctx, order)
		}(order)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var all []ValidationResult
	for r := range results {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Order < all[j].Order })

	logging.Info("Validation results:")
	var failed int
	for _, r := range all {
		switch {
		case r.Err != nil:
			logging.Error("%-50s ERROR: %v", r.Order, r.Err)
			failed++
		case r.Match():
			logging.Info("%-50s OK %d rows", r.Order, r.TargetCount)
		default:
			logging.Error("%-50s FAIL source=%d target=%d (diff=%d)",
				r.Order, r.SourceCount, r.TargetCount, r.SourceCount-r.TargetCount)
			failed++
		}
	}
	if failed > 0 {
		return all, fmt.Errorf("validation failed for %d of %d orders", failed, len(all))
	}
	return all, nil
}

func (o *Orchestrator) validateOrder(ctx context.Context, order transfer.Order) ValidationResult {
	r := ValidationResult{Order: order.Source.String() + " -> " + order.Target.String()}
	ctx, cancel := context.WithTimeout(ctx, ValidationTimeout)
	defer cancel()

	src, ok := o.conns[order.Source.Conn]
	if !ok {
		r.Err = fmt.Errorf("unknown connection %q", order.Source.Conn)
		return r
	}
	tgt, ok := o.conns[order.Target.Conn]
	if !ok {
		r.Err = fmt.Errorf("unknown connection %q", order.Target.Conn)
		return r
	}
	if r.SourceCount, r.Err = src.Count(ctx, order.Source); r.Err != nil {
		return r
	}
	target, err := tgt.ResolvePath(ctx, order.Target.Path)
	if err != nil {
		r.Err = err
		return r
	}
	r.TargetCount, r.Err = tgt.Count(ctx, target)
	return r
}
