package rag

import (
	"context"

	"ragmix/src/log"
)

// Pinger reports liveness of one backing component.
type Pinger func(ctx context.Context) error

type systemService struct {
	probes map[string]Pinger
}

func NewSystemService(probes map[string]Pinger) SystemService {
	return &systemService{probes: probes}
}

func (s *systemService) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Status:     "healthy",
		Components: make(map[string]ComponentStatus, len(s.probes)),
	}

	for name, probe := range s.probes {
		state := StatusUp
		if err := probe(ctx); err != nil {
			log.Error(err, "component health check failed", "component", name)
			state = StatusDown
			status.Status = "unhealthy"
		}
		status.Components[name] = state
	}

	return status, nil
}
