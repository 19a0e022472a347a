package registry

import "context"

// Well-known lookups used across the fleet.
const (
	// CapabilityAI marks services that can run model inference.
	CapabilityAI = "ai"

	// ServiceDashboard is the registered name of the operations dashboard.
	ServiceDashboard = "dashboard"
)

// EnvironmentHealth counts the services of one environment by health.
type EnvironmentHealth struct {
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
}

// HealthSummary is a fleet-wide health rollup.
type HealthSummary struct {
	Total         int                          `json:"total"`
	Healthy       int                          `json:"healthy"`
	Unhealthy     int                          `json:"unhealthy"`
	ByEnvironment map[string]EnvironmentHealth `json:"byEnvironment"`
}

// FindAIService locates a healthy AI-capable service, preferring one on
// the Windows VM where the GPU lives. It returns nil when none is
// available.
func (c *Client) FindAIService(ctx context.Context) *RegisteredService {
	services := c.DiscoverByCapability(ctx, CapabilityAI)
	if len(services) == 0 {
		return nil
	}
	for i := range services {
		if services[i].Environment == EnvironmentWindowsVM {
			return &services[i]
		}
	}
	return &services[0]
}

// FindDashboard locates the dashboard service. It returns nil when the
// dashboard is not registered anywhere.
func (c *Client) FindDashboard(ctx context.Context) *RegisteredService {
	return c.DiscoverService(ctx, ServiceDashboard)
}

// ServiceHealth rolls up everything the serving tier knows into counts by
// health and environment. An unreachable registry reads as an empty
// fleet, not an error.
func (c *Client) ServiceHealth(ctx context.Context) HealthSummary {
	summary := HealthSummary{ByEnvironment: make(map[string]EnvironmentHealth)}
	for _, svc := range c.AllServices(ctx) {
		summary.Total++
		env := summary.ByEnvironment[svc.Environment]
		if svc.IsHealthy {
			summary.Healthy++
			env.Healthy++
		} else {
			summary.Unhealthy++
			env.Unhealthy++
		}
		summary.ByEnvironment[svc.Environment] = env
	}
	return summary
}
