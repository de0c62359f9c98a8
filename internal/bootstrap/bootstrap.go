// Package bootstrap assembles a single pipeline's router, servlet
// container, and handler set from configuration, the way
// fluxsce-gateway's internal/gateway/bootstrap turns a loaded config
// into a running gateway instance.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/searchktools/compare-server/internal/config"
	"github.com/searchktools/compare-server/internal/eventloop"
	"github.com/searchktools/compare-server/internal/handlers"
	"github.com/searchktools/compare-server/internal/hybrid"
	"github.com/searchktools/compare-server/internal/logging"
	"github.com/searchktools/compare-server/internal/metrics"
	"github.com/searchktools/compare-server/internal/protocol"
	"github.com/searchktools/compare-server/internal/servlet"
	"github.com/searchktools/compare-server/internal/threaded"
)

// Pipeline is the common surface every concurrency architecture's Server
// type satisfies, letting cmd/ treat all three uniformly.
type Pipeline interface {
	ListenAndServe(ctx context.Context) error
	Shutdown(ctx context.Context)
	StatusSnapshot() map[string]any
}

// registerRoutes wires the fixed benchmark-facing surface of spec.md §6
// onto both the router (used directly by Threaded/Hybrid/EventLoop) and
// the servlet container (consulted first by every pipeline's dispatch
// path), plus any provider-specific /status handler.
func registerRoutes(name string, router *protocol.Router, box *servlet.Container, provider handlers.StatusProvider) error {
	displayName := handlers.DisplayName(name)
	router.Register("GET", "/hello", handlers.Hello(displayName))
	router.Register("GET", "/health", handlers.Health(name))
	router.Register("HEAD", "/health", handlers.Health(name))
	router.Register("GET", "/cpu-intensive", handlers.CPUIntensive(name))
	router.Register("GET", "/io-simulation", handlers.IOSimulation(name))
	router.Register("GET", "/status", handlers.Status(name, provider))

	if err := box.Register("/hello", handlers.Hello(displayName), nil); err != nil {
		return fmt.Errorf("bootstrap: register servlet /hello: %w", err)
	}
	return box.Initialize()
}

// BuildThreaded assembles a ready-to-serve Threaded pipeline.
func BuildThreaded(cfg config.Pipeline, log *logging.Logger, reg *metrics.Registry) (*threaded.Server, error) {
	router := protocol.NewRouter()
	router.SetDebugMode(cfg.DebugMode)
	box := servlet.New(map[string]string{"pipeline": cfg.Name})

	srv := threaded.New(cfg, router, box, log.With("pipeline", cfg.Name), reg.ForPipeline(cfg.Name))
	if err := registerRoutes(cfg.Name, router, box, srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// BuildHybrid assembles a ready-to-serve Hybrid pipeline.
func BuildHybrid(cfg config.Pipeline, log *logging.Logger, reg *metrics.Registry) (*hybrid.Server, error) {
	router := protocol.NewRouter()
	router.SetDebugMode(cfg.DebugMode)
	box := servlet.New(map[string]string{"pipeline": cfg.Name})

	srv := hybrid.New(cfg, router, box, log.With("pipeline", cfg.Name), reg.ForPipeline(cfg.Name))
	if err := registerRoutes(cfg.Name, router, box, srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// BuildEventLoop assembles a ready-to-serve EventLoop pipeline.
func BuildEventLoop(cfg config.Pipeline, log *logging.Logger, reg *metrics.Registry) (*eventloop.Server, error) {
	router := protocol.NewRouter()
	router.SetDebugMode(cfg.DebugMode)
	box := servlet.New(map[string]string{"pipeline": cfg.Name})

	srv := eventloop.New(cfg, router, box, log.With("pipeline", cfg.Name), reg.ForPipeline(cfg.Name))
	if err := registerRoutes(cfg.Name, router, box, srv); err != nil {
		return nil, err
	}
	return srv, nil
}

// Named pairs a built Pipeline with the architecture name it was built
// under, since the Pipeline interface itself carries no identity.
type Named struct {
	Name     string
	Pipeline Pipeline
}

// BuildSelected builds one Pipeline per requested architecture name
// ("threaded", "hybrid", "eventloop", or "all" for every one), in that
// fixed order, against the matching section of cfg.
func BuildSelected(names []string, cfg config.Config, log *logging.Logger, reg *metrics.Registry) ([]Named, error) {
	if len(names) == 1 && names[0] == "all" {
		names = []string{"threaded", "hybrid", "eventloop"}
	}

	var built []Named
	for _, name := range names {
		switch name {
		case "threaded":
			srv, err := BuildThreaded(cfg.Threaded, log, reg)
			if err != nil {
				return nil, err
			}
			built = append(built, Named{Name: name, Pipeline: srv})
		case "hybrid":
			srv, err := BuildHybrid(cfg.Hybrid, log, reg)
			if err != nil {
				return nil, err
			}
			built = append(built, Named{Name: name, Pipeline: srv})
		case "eventloop":
			srv, err := BuildEventLoop(cfg.EventLoop, log, reg)
			if err != nil {
				return nil, err
			}
			built = append(built, Named{Name: name, Pipeline: srv})
		default:
			return nil, fmt.Errorf("bootstrap: unknown pipeline %q (want threaded, hybrid, eventloop, or all)", name)
		}
	}
	return built, nil
}
