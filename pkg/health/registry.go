// Package health aggregates readiness checks of the document store and
// the page cache.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status of a component or of the whole service.
type Status string

// Status values.
const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultTimeout bounds a single check when none is configured.
const DefaultTimeout = 5 * time.Second

// Checkable is implemented by store and cache adapters.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

// HealthCheck implements Checkable.
func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name       string  `json:"name"`
	Status     Status  `json:"status"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// Report is the outcome of all checks.
type Report struct {
	Status    Status        `json:"status"`
	Checks    []CheckResult `json:"checks"`
	Timestamp time.Time     `json:"timestamp"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

type entry struct {
	target  Checkable
	timeout time.Duration
}

// Registry holds named checks. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces the check called name. A non-positive timeout
// means DefaultTimeout.
func (r *Registry) Register(name string, target Checkable, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{target: target, timeout: timeout}
}

// Names returns the registered check names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every check concurrently. The report is unhealthy when any
// check fails or exceeds its timeout.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.RLock()
	snapshot := make(map[string]entry, len(r.entries))
	for name, e := range r.entries {
		snapshot[name] = e
	}
	r.mu.RUnlock()

	results := make([]CheckResult, 0, len(snapshot))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, e := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(ctx, name, e)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	status := StatusHealthy
	for _, res := range results {
		if res.Status != StatusHealthy {
			status = StatusUnhealthy
		}
	}
	return Report{Status: status, Checks: results, Timestamp: time.Now().UTC()}
}

func run(ctx context.Context, name string, e entry) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := e.target.HealthCheck(ctx)
	res := CheckResult{
		Name:       name,
		Status:     StatusHealthy,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
	}
	return res
}
