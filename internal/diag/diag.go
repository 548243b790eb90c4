// Package diag carries the findings strategies report about a buffer.
package diag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity is the inverse of Severity.String. Unknown names map to
// SeverityWarning.
func ParseSeverity(s string) Severity {
	switch s {
	case "error":
		return SeverityError
	case "info":
		return SeverityInfo
	}
	return SeverityWarning
}

// Diagnostic is a single finding. Lines and columns are 1-based.
type Diagnostic struct {
	Source   string
	Severity Severity
	Line     int
	Col      int
	EndLine  int
	EndCol   int
	Code     string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s: %s [%s]", d.Line, d.Col, d.Severity, d.Message, d.Source)
}

// Sink receives the complete, current set of diagnostics a source produced
// for an input. Each call replaces what the source published before.
type Sink interface {
	Publish(ctx context.Context, source, input string, diags []Diagnostic) error
}

// Sort orders diagnostics by position, then severity, then source.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		return a.Source < b.Source
	})
}

// Collector is an in-memory Sink keeping the latest set per (input, source).
type Collector struct {
	mu   sync.Mutex
	sets map[string]map[string][]Diagnostic // input → source → diags
}

var _ Sink = (*Collector)(nil)

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{sets: make(map[string]map[string][]Diagnostic)}
}

// Publish implements Sink.
func (c *Collector) Publish(_ context.Context, source, input string, diags []Diagnostic) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	bySource, ok := c.sets[input]
	if !ok {
		bySource = make(map[string][]Diagnostic)
		c.sets[input] = bySource
	}
	if len(diags) == 0 {
		delete(bySource, source)
		return nil
	}
	bySource[source] = append([]Diagnostic(nil), diags...)
	return nil
}

// All returns every diagnostic held for input, sorted by position.
func (c *Collector) All(input string) []Diagnostic {
	c.mu.Lock()
	var out []Diagnostic
	for _, ds := range c.sets[input] {
		out = append(out, ds...)
	}
	c.mu.Unlock()
	Sort(out)
	return out
}

// Count returns how many diagnostics of severity sev are held for input.
func (c *Collector) Count(input string, sev Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ds := range c.sets[input] {
		for _, d := range ds {
			if d.Severity == sev {
				n++
			}
		}
	}
	return n
}

type multi []Sink

// Multi returns a Sink publishing to every non-nil sink in order. All sinks
// are attempted; their errors are joined.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) Publish(ctx context.Context, source, input string, diags []Diagnostic) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, source, input, diags); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
