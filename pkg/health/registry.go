// Package health aggregates component health checks.
package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status is the outcome of a check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// severity orders statuses from best to worst.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// CheckResult is what a single Checker reports.
type CheckResult struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Checker is implemented by every health check.
type Checker interface {
	Check(ctx context.Context) CheckResult
	Name() string
}

// Registry holds named checkers. Registering a name twice replaces the
// earlier checker.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[checker.Name()] = checker
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every registered check concurrently and folds the results into
// a Report ordered by check name.
func (r *Registry) Check(ctx context.Context) Report {
	names := r.List()
	return r.run(ctx, names)
}

// CheckOne runs the named checks only. Unknown names are an error.
func (r *Registry) CheckOne(ctx context.Context, names ...string) (Report, error) {
	r.mu.RLock()
	var missing []string
	for _, name := range names {
		if _, ok := r.checkers[name]; !ok {
			missing = append(missing, name)
		}
	}
	r.mu.RUnlock()

	if len(missing) > 0 {
		return Report{}, fmt.Errorf("health check not found: %s", strings.Join(missing, ", "))
	}
	return r.run(ctx, names), nil
}

func (r *Registry) run(ctx context.Context, names []string) Report {
	r.mu.RLock()
	checkers := make([]Checker, 0, len(names))
	for _, name := range names {
		checkers = append(checkers, r.checkers[name])
	}
	r.mu.RUnlock()

	start := time.Now()
	results := make([]CheckResult, len(checkers))

	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}(i, checker)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	report := Report{Status: StatusHealthy, Checks: results}
	for _, result := range results {
		if result.Status.severity() > report.Status.severity() {
			report.Status = result.Status
		}
	}
	report.Timestamp = time.Now()
	report.Duration = time.Since(start)
	return report
}

// Report is the folded result of several checks. Its status is the worst
// status among the checks.
type Report struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

func (r Report) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Failing returns "name: reason" for every check that is not healthy.
func (r Report) Failing() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Status == StatusHealthy {
			continue
		}
		reason := c.Message
		if reason == "" {
			reason = c.Error
		}
		if reason == "" {
			reason = string(c.Status)
		}
		out = append(out, c.Name+": "+reason)
	}
	return out
}
