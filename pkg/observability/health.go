package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus is the overall state reported by /health.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// RunState is the state of the most recent run.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateOK        RunState = "ok"
	RunStateError     RunState = "error"
	RunStateCancelled RunState = "cancelled"
)

// RunStatus describes the most recently started run, as recorded through the
// run metrics.
type RunStatus struct {
	State      RunState  `json:"state"`
	Runner     string    `json:"runner,omitempty"`
	Active     int       `json:"active"`
	Epochs     int       `json:"epochs"`
	Finished   int       `json:"finished"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

type runTracker struct {
	mu     sync.Mutex
	status RunStatus
}

func newRunTracker() *runTracker {
	return &runTracker{status: RunStatus{State: RunStateIdle}}
}

func (t *runTracker) started(runner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = RunStateRunning
	t.status.Runner = runner
	t.status.Active++
	t.status.Epochs = 0
	t.status.StartedAt = time.Now()
	t.status.FinishedAt = time.Time{}
}

func (t *runTracker) epoch() {
	t.mu.Lock()
	t.status.Epochs++
	t.mu.Unlock()
}

func (t *runTracker) finished(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Active > 0 {
		t.status.Active--
	}
	t.status.Finished++
	t.status.State = RunState(status)
	t.status.FinishedAt = time.Now()
}

func (t *runTracker) snapshot() RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// CurrentRun returns the state of the most recently started run.
func CurrentRun() RunStatus { return runs.snapshot() }

// HealthCheck checks a dependency of the running pipeline. A failing
// critical check makes the process unhealthy; any other failure degrades it.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

// StoreCheck creates a critical check for a backing store such as a redis sink.
func StoreCheck(name string, ping func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:      name,
		CheckFunc: ping,
		Timeout:   5 * time.Second,
		Critical:  true,
	}
}

// HealthChecker combines the registered checks with the run state.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]*HealthCheck
	runs   *runTracker
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Run       RunStatus              `json:"run"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
}

// CheckStatus is the outcome of one check.
type CheckStatus struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration"`
}

var (
	runs           = newRunTracker()
	globalChecker  *HealthChecker
	initHealthOnce sync.Once
	startTime      = time.Now()
	version        = "dev"
	versionMu      sync.RWMutex
)

// SetVersion sets the version reported by health responses.
func SetVersion(v string) {
	versionMu.Lock()
	version = v
	versionMu.Unlock()
}

func currentVersion() string {
	versionMu.RLock()
	defer versionMu.RUnlock()
	return version
}

func newHealthChecker(t *runTracker) *HealthChecker {
	return &HealthChecker{checks: make(map[string]*HealthCheck), runs: t}
}

// InitHealthChecker returns the process-wide health checker, which reports
// the runs recorded through the run metrics.
func InitHealthChecker() *HealthChecker {
	initHealthOnce.Do(func() {
		globalChecker = newHealthChecker(runs)
	})
	return globalChecker
}

// RegisterCheck adds or replaces a check by name.
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = check
}

// Check runs every registered check concurrently. A run that ended with an
// error degrades the status.
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make([]*HealthCheck, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hc.mu.RUnlock()

	results := make([]CheckStatus, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Version:   currentVersion(),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Run:       hc.runs.snapshot(),
	}
	if resp.Run.State == RunStateError {
		resp.Status = HealthStatusDegraded
	}
	if len(checks) > 0 {
		resp.Checks = make(map[string]CheckStatus, len(checks))
	}
	for i, c := range checks {
		resp.Checks[c.Name] = results[i]
		switch results[i].Status {
		case HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if resp.Status == HealthStatusHealthy {
				resp.Status = HealthStatusDegraded
			}
		}
	}
	return resp
}

func runCheck(ctx context.Context, check *HealthCheck) CheckStatus {
	ctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	start := time.Now()
	err := check.CheckFunc(ctx)
	status := CheckStatus{Status: HealthStatusHealthy, Duration: time.Since(start).String()}
	if err != nil {
		status.Status = HealthStatusDegraded
		if check.Critical {
			status.Status = HealthStatusUnhealthy
		}
		status.Message = fmt.Sprintf("%s: %v", check.Name, err)
	}
	return status
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHandler serves the full health response. Only an unhealthy process
// answers 503.
func HealthHandler() http.HandlerFunc {
	return healthHandler(InitHealthChecker())
}

func healthHandler(hc *HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hc.Check(r.Context())
		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// LivenessHandler answers as long as the process serves HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler reports ready while no critical check fails.
func ReadinessHandler() http.HandlerFunc {
	return readinessHandler(InitHealthChecker())
}

func readinessHandler(hc *HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := hc.Check(r.Context())
		if resp.Status == HealthStatusUnhealthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "run": resp.Run.State})
	}
}
