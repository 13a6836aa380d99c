package runner

import (
	"fmt"
	"sort"
	"strings"
)

// HealthStatus is the health of every managed service.
type HealthStatus struct {
	Healthy  bool
	Services map[string]ServiceHealth
}

// ServiceHealth is the health of one service.
type ServiceHealth struct {
	Healthy  bool
	Running  bool
	Restarts int
	Error    string
}

// HealthStatus checks every managed service.
func (r *Runner) HealthStatus() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := HealthStatus{Healthy: true, Services: make(map[string]ServiceHealth, len(r.services))}
	for name, m := range r.services {
		m.mu.Lock()
		sh := ServiceHealth{Healthy: true, Running: m.running, Restarts: m.restarts}
		m.mu.Unlock()

		if !sh.Running {
			sh.Healthy = false
			sh.Error = "service not running"
		} else if err := m.service.Health(); err != nil {
			sh.Healthy = false
			sh.Error = err.Error()
		}
		if !sh.Healthy {
			status.Healthy = false
		}
		status.Services[name] = sh
	}
	return status
}

// Health returns nil when every service is running and healthy.
func (r *Runner) Health() error {
	status := r.HealthStatus()
	if status.Healthy {
		return nil
	}

	var unhealthy []string
	for name, sh := range status.Services {
		if !sh.Healthy {
			unhealthy = append(unhealthy, fmt.Sprintf("%s: %s", name, sh.Error))
		}
	}
	sort.Strings(unhealthy)
	return fmt.Errorf("unhealthy services: %s", strings.Join(unhealthy, ", "))
}
