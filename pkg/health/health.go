// Package health probes the endpoints of a strata node from the outside: the
// HTTP health and readiness handlers, the public site and the TCP listener of
// the gRPC API. The CLI uses it to report on a node it is not part of.
package health

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of a health check
type Result struct {
	Name      string        `json:"name"`
	Type      CheckType     `json:"type"`
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// Checker performs one check. Name and Type of the result are filled in by
// the Probe.
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Probe runs a named set of checks
type Probe struct {
	names    []string
	checkers map[string]Checker
}

// NewProbe creates an empty probe
func NewProbe() *Probe {
	return &Probe{checkers: make(map[string]Checker)}
}

// Add registers a check under name, replacing any previous one
func (p *Probe) Add(name string, c Checker) *Probe {
	if _, ok := p.checkers[name]; !ok {
		p.names = append(p.names, name)
	}
	p.checkers[name] = c
	return p
}

// Run performs every check concurrently and returns the results in the order
// the checks were added
func (p *Probe) Run(ctx context.Context) []Result {
	results := make([]Result, len(p.names))
	var wg sync.WaitGroup
	for i, name := range p.names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := p.checkers[name].Check(ctx)
			r.Name = name
			r.Type = p.checkers[name].Type()
			results[i] = r
		}()
	}
	wg.Wait()
	return results
}

// Healthy reports whether every result is healthy
func Healthy(results []Result) bool {
	return !slices.ContainsFunc(results, func(r Result) bool { return !r.Healthy })
}

func failed(start time.Time, format string, args ...any) Result {
	return Result{
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
