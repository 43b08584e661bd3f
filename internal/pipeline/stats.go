// Package pipeline streams rows from one source query into batched,
// periodically committed writes on a target.
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Stats splits the time of one run between the source query, row scanning
// and the writers.
type Stats struct {
	QueryTime time.Duration
	ScanTime  time.Duration
	// WriteTime sums the time of every writer, so it may exceed wall time.
	WriteTime time.Duration
	// Rows is the number of rows committed.
	Rows int64
}

func (s *Stats) String() string {
	total := s.QueryTime + s.ScanTime + s.WriteTime
	if total == 0 {
		return "no data"
	}
	var sb strings.Builder
	for _, part := range []struct {
		name string
		d    time.Duration
	}{{"query", s.QueryTime}, {"scan", s.ScanTime}, {"write", s.WriteTime}} {
		fmt.Fprintf(&sb, "%s=%.1fs (%.0f%%), ", part.name, part.d.Seconds(), float64(part.d)/float64(total)*100)
	}
	sb.WriteString("rows=" + humanize.Comma(s.Rows))
	return sb.String()
}
