package api

import (
	"context"
	"time"

	"morgonpodd/internal/config"
	"morgonpodd/internal/deps"
	"morgonpodd/internal/stage"
)

// Pinger is implemented by the script and speech API clients.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ServiceCheck names one remote collaborator to probe.
type ServiceCheck struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

// DiagnoseRequest lists what Diagnose should probe.
type DiagnoseRequest struct {
	Config   *config.Config
	Storage  stage.Checker
	Services []ServiceCheck
	Timeout  time.Duration
}

// Diagnose checks binaries, storage and remote APIs. Ready is false when
// any required dependency or service is unavailable.
func Diagnose(ctx context.Context, req DiagnoseRequest) Diagnostics {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	diag := Diagnostics{Ready: true}
	if req.Config != nil {
		statuses := deps.CheckBinaries(ctx, deps.Requirements(req.Config))
		diag.Dependencies = FromDependencies(statuses)
		if len(deps.Missing(statuses)) > 0 {
			diag.Ready = false
		}
	}

	var records []stage.Health
	required := map[string]bool{}
	if req.Storage != nil {
		records = append(records, req.Storage.HealthCheck(ctx))
		required["storage"] = true
	}
	for _, svc := range req.Services {
		if svc.Pinger == nil {
			continue
		}
		if err := svc.Pinger.HealthCheck(ctx); err != nil {
			records = append(records, stage.Unhealthy(svc.Name, err.Error()))
		} else {
			records = append(records, stage.Healthy(svc.Name))
		}
		required[svc.Name] = !svc.Optional
	}
	diag.Services = StageHealthSlice(records)
	for _, h := range diag.Services {
		if !h.Ready && required[h.Name] {
			diag.Ready = false
		}
	}
	return diag
}
