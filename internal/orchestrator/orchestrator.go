// Package orchestrator runs groups of transfers and schema operations under
// one error policy and reports the outcome of each resource.
package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/johndauphine/tabxfer/internal/connection"
	"github.com/johndauphine/tabxfer/internal/logging"
	"github.com/johndauphine/tabxfer/internal/transfer"
)

// ErrorPolicy decides what a failed resource does to the rest of a run.
type ErrorPolicy int

const (
	// Strict aborts the run on the first failure.
	Strict ErrorPolicy = iota
	// Lenient records the failure, logs a warning and continues.
	Lenient
)

func (p ErrorPolicy) String() string {
	if p == Lenient {
		return "lenient"
	}
	return "strict"
}

// PolicyFor maps the strict configuration flag to a policy.
func PolicyFor(strict bool) ErrorPolicy {
	if strict {
		return Strict
	}
	return Lenient
}

// Outcome is the result of one action on one resource.
type Outcome struct {
	Resource  string
	Action    string
	Method    transfer.Method
	Rows      int64
	Committed int64
	Elapsed   time.Duration
	Err       error
}

// Report collects the outcomes of a run in submission order.
type Report struct {
	mu       sync.Mutex
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.mu.Lock()
	r.Outcomes = append(r.Outcomes, o)
	r.mu.Unlock()
}

// Failed returns the outcomes that carry an error.
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the errors of every failed outcome, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// Summary renders one line per outcome.
func (r *Report) Summary() string {
	var sb strings.Builder
	for _, o := range r.Outcomes {
		status := "OK"
		if o.Err != nil {
			status = "FAILED: " + o.Err.Error()
		}
		fmt.Fprintf(&sb, "%-8s %-40s", o.Action, o.Resource)
		if o.Method != "" {
			fmt.Fprintf(&sb, " %s rows (%s, %s)", humanize.Comma(o.Committed), o.Method, o.Elapsed.Round(time.Millisecond))
		}
		sb.WriteString(" " + status + "\n")
	}
	return sb.String()
}

// Orchestrator runs orders and schema operations against a set of
// connections.
type Orchestrator struct {
	conns         map[string]*connection.Connection
	mgr           *transfer.Manager
	policy        ErrorPolicy
	maxConcurrent int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the error policy; Strict when not given.
func WithPolicy(p ErrorPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithMaxConcurrentOrders bounds the orders RunOrders runs at once.
func WithMaxConcurrentOrders(n int) Option {
	return func(o *Orchestrator) { o.maxConcurrent = n }
}

// New creates an orchestrator. mgr runs the transfer orders.
func New(conns []*connection.Connection, mgr *transfer.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conns:         make(map[string]*connection.Connection, len(conns)),
		mgr:           mgr,
		maxConcurrent: 1,
	}
	for _, c := range conns {
		o.conns[c.Name()] = c
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxConcurrent < 1 {
		o.maxConcurrent = 1
	}
	if o.mgr == nil {
		o.mgr = transfer.NewManager(conns)
	}
	return o
}

// Policy returns the error policy of the orchestrator.
func (o *Orchestrator) Policy() ErrorPolicy { return o.policy }

// settle records out and decides whether the run stops: it returns out.Err
// under Strict and nil under Lenient.
func (o *Orchestrator) settle(rep *Report, out Outcome) error {
	rep.add(out)
	if out.Err == nil {
		return nil
	}
	if o.policy == Strict {
		return out.Err
	}
	logging.Warn("%s %s failed, continuing: %v", out.Action, out.Resource, out.Err)
	return nil
}
