package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/johndauphine/tabxfer/internal/orchestrator"
)

// RunResult is the machine-readable result of a transfer run.
type RunResult struct {
	RunID           string        `json:"run_id"`
	Status          string        `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
	DurationSeconds float64       `json:"duration_seconds"`
	OrdersTotal     int           `json:"orders_total"`
	OrdersSuccess   int           `json:"orders_success"`
	OrdersFailed    int           `json:"orders_failed"`
	RowsTransferred int64         `json:"rows_transferred"`
	RowsPerSecond   int64         `json:"rows_per_second"`
	Orders          []OrderResult `json:"orders"`
}

// OrderResult is one order of a RunResult.
type OrderResult struct {
	Target    string  `json:"target"`
	Operation string  `json:"operation"`
	Method    string  `json:"method,omitempty"`
	Rows      int64   `json:"rows"`
	Committed int64   `json:"committed"`
	Seconds   float64 `json:"seconds"`
	Error     string  `json:"error,omitempty"`
}

func newRunResult(rep *orchestrator.Report, total int, started, completed time.Time) *RunResult {
	r := &RunResult{
		RunID:           uuid.NewString(),
		StartedAt:       started,
		CompletedAt:     completed,
		DurationSeconds: completed.Sub(started).Seconds(),
		OrdersTotal:     total,
		Orders:          []OrderResult{},
	}
	for _, o := range rep.Outcomes {
		or := OrderResult{
			Target:    o.Resource,
			Operation: o.Action,
			Method:    string(o.Method),
			Rows:      o.Rows,
			Committed: o.Committed,
			Seconds:   o.Elapsed.Seconds(),
		}
		if o.Err != nil {
			or.Error = o.Err.Error()
			r.OrdersFailed++
		} else {
			r.OrdersSuccess++
		}
		r.RowsTransferred += max(o.Committed, 0)
		r.Orders = append(r.Orders, or)
	}
	switch {
	case r.OrdersFailed == 0 && r.OrdersSuccess == total:
		r.Status = "success"
	case r.OrdersSuccess == 0:
		r.Status = "failed"
	default:
		r.Status = "partial"
	}
	if r.DurationSeconds > 0 {
		r.RowsPerSecond = int64(float64(r.RowsTransferred) / r.DurationSeconds)
	}
	return r
}

// outputJSON prints result to stdout with --output-json and writes it to
// --output-file when given.
func outputJSON(c *cli.Context, result *RunResult) error {
	toStdout := c.Bool("output-json")
	file := c.String("output-file")
	if !toStdout && file == "" {
		return nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if toStdout {
		fmt.Println(string(data))
	}
	if file != "" {
		if err := os.WriteFile(file, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
	}
	return nil
}
