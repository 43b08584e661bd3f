package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/transfer"
)

// RunOrders runs orders concurrently, at most max_concurrent_orders at a
// time. Under Strict the first failure cancels the orders still running and
// is returned; under Lenient every order runs and failures are only recorded.
// The report lists the orders that ran, in submission order.
func (o *Orchestrator) RunOrders(ctx context.Context, orders []transfer.Order) (*Report, error) {
	outcomes := make([]*Outcome, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	logging.Debug("Running %d orders, %d at a time (%s)", len(orders), o.maxConcurrent, o.policy)
	start := time.Now()
	for i, order := range orders {
		if gctx.Err() != nil {
			break
		}
		i, order := i, order
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := o.mgr.Run(gctx, order)
			out := &Outcome{
				Resource:  order.Target.String(),
				Action:    string(order.Operation),
				Method:    res.Method,
				Rows:      res.Rows,
				Committed: res.Committed,
				Elapsed:   res.Elapsed,
				Err:       err,
			}
			outcomes[i] = out
			if err == nil {
				return nil
			}
			if o.policy == Strict {
				return err
			}
			logging.Warn("%s failed, continuing: %v", order, err)
			return nil
		})
	}
	err := g.Wait()

	rep := &Report{}
	var total int64
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		total += max(out.Committed, 0)
		rep.add(*out)
	}
	logTransferProfile(rep, total, time.Since(start))
	if err == nil {
		err = ctx.Err()
	}
	return rep, err
}

func logTransferProfile(rep *Report, total int64, elapsed time.Duration) {
	if !logging.Enabled(logging.LevelDebug) {
		return
	}
	logging.Debug("Transfer profile:")
	for _, out := range rep.Outcomes {
		logging.Debug("  %-40s %-12s %10d rows %s", out.Resource, out.Method, out.Committed, out.Elapsed.Round(time.Millisecond))
	}
	logging.Debug("  %-40s %-12s %10d rows %s", "TOTAL", "", total, elapsed.Round(time.Millisecond))
}
