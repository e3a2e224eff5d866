// Package module wires the ingest service: policy from config, orchestrator
// over a storage port, routes on the router
package module

import (
	"cashgate/internal/core/classify"
	"cashgate/internal/platform/config"
	phttp "cashgate/internal/platform/net/http"
	"cashgate/internal/services/ingest/domain"
	ihttp "cashgate/internal/services/ingest/http"
	"cashgate/internal/services/ingest/service"
)

// Module is the ingest service module
type Module struct {
	svc *service.Service
}

// New constructs the module from the INGEST_* config namespace and a port
func New(cfg config.Conf, port domain.StoragePort) *Module {
	opts := FromConfig(cfg.Prefix("INGEST_"))

	pol := classify.Policy{
		MinCCTConfidence: opts.MinCCTConfidence,
		AmbiguityDelta:   opts.AmbiguityDelta,
		Thresholds:       classify.ParseThresholds(opts.ThresholdsJSON),
		Version:          opts.PolicyVersion,
	}

	svc := service.New(port, pol, service.Config{
		MinAcceptRatio:        opts.MinAcceptRatio,
		AllowMissingWatermark: opts.AllowMissingWatermark,
		MaxRows:               opts.MaxRows,
	})

	return &Module{svc: svc}
}

// Name identifies the module
func (m *Module) Name() string { return "ingest" }

// Ingester exposes the callable port for other consumers
func (m *Module) Ingester() domain.IngesterPort { return m.svc }

// MountRoutes mounts the ingest http surface
func (m *Module) MountRoutes(r phttp.Router) { ihttp.Register(r, m.svc) }
