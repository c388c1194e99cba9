package app

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// HealthCheck probes one component. A non-nil error degrades the status.
type HealthCheck func(ctx context.Context) (string, error)

type HealthService struct {
	checks map[string]HealthCheck
	now    func() time.Time
}

func NewHealthService() *HealthService {
	return &HealthService{checks: map[string]HealthCheck{}, now: time.Now}
}

// Register adds or replaces a named check.
func (s *HealthService) Register(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  s.now().UTC(),
		Components: make(map[string]string, len(s.checks)),
	}
	for name, check := range s.checks {
		detail, err := check(ctx)
		if err != nil {
			status.Status = "degraded"
			status.Components[name] = fmt.Sprintf("error: %v", err)
			continue
		}
		if detail == "" {
			detail = "ok"
		}
		status.Components[name] = detail
	}
	return status
}
