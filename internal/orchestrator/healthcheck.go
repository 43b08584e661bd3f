package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/johndauphine/tabxfer/internal/connection"
	"github.com/johndauphine/tabxfer/internal/model"
)

// checkTimeout bounds each connection's check independently so one slow
// backend does not fail the others.
const checkTimeout = 30 * time.Second

// ConnectionHealth is the result of checking one connection.
type ConnectionHealth struct {
	Name      string
	Type      string
	Connected bool
	State     connection.Phase
	Tables    int
	Latency   time.Duration
	Error     string
}

// HealthCheckResult contains the results of a health check.
type HealthCheckResult struct {
	Timestamp   time.Time
	Connections []ConnectionHealth
	Healthy     bool
}

// HealthCheck opens every connection in parallel and counts the tables of
// its current namespace.
func (o *Orchestrator) HealthCheck(ctx context.Context) *HealthCheckResult {
	result := &HealthCheckResult{Timestamp: time.Now()}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range o.conns {
		wg.Add(1)
		go func(c *connection.Connection) {
			defer wg.Done()
			h := checkConnection(ctx, c)
			mu.Lock()
			result.Connections = append(result.Connections, h)
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	sort.Slice(result.Connections, func(i, j int) bool {
		return result.Connections[i].Name < result.Connections[j].Name
	})
	result.Healthy = true
	for _, h := range result.Connections {
		if !h.Connected {
			result.Healthy = false
		}
	}
	return result
}

func checkConnection(ctx context.Context, c *connection.Connection) ConnectionHealth {
	h := ConnectionHealth{Name: c.Name(), Type: c.Driver().Name()}
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if _, err := c.DB(checkCtx); err != nil {
		h.Error = err.Error()
	} else {
		h.Connected = true
		if tables, err := c.Select(checkCtx, "*", model.KindTable); err == nil {
			h.Tables = len(tables)
		} else {
			h.Error = err.Error()
		}
	}
	h.Latency = time.Since(start)
	h.State = c.State().Phase
	return h
}
