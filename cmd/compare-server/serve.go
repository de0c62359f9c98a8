package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/searchktools/compare-server/internal/bootstrap"
	"github.com/searchktools/compare-server/internal/config"
	"github.com/searchktools/compare-server/internal/logging"
	"github.com/searchktools/compare-server/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:       "serve {threaded|hybrid|eventloop|all}",
		Short:     "Start one or all pipelines standalone",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"threaded", "hybrid", "eventloop", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args[0], port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override the selected pipeline's listen port (ignored for \"all\")")
	return cmd
}

func runServe(which string, portOverride int) error {
	cfg, err := config.Load(flagConfigPath, nil)
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	log, err := logging.New(flagLogLevel, flagLogFormat)
	if err != nil {
		return fmt.Errorf("serve: build logger: %w", err)
	}
	defer log.Sync()

	if portOverride > 0 && which != "all" {
		switch which {
		case "threaded":
			cfg.Threaded.Port = portOverride
		case "hybrid":
			cfg.Hybrid.Port = portOverride
		case "eventloop":
			cfg.EventLoop.Port = portOverride
		}
	}

	reg := metrics.NewRegistry()
	pipelines, err := bootstrap.BuildSelected([]string{which}, cfg, log, reg)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, len(pipelines))
	for _, p := range pipelines {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Infow("starting pipeline", "pipeline", p.Name)
			if err := p.Pipeline.ListenAndServe(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", p.Name, err)
			}
		}()
	}

	<-ctx.Done()
	log.Infow("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, p := range pipelines {
		p.Pipeline.Shutdown(shutdownCtx)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
