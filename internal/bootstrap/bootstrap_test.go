package bootstrap

import (
	"testing"

	"github.com/searchktools/compare-server/internal/config"
	"github.com/searchktools/compare-server/internal/logging"
	"github.com/searchktools/compare-server/internal/metrics"
)

func TestBuildSelected_All(t *testing.T) {
	cfg := config.Default()
	reg := metrics.NewRegistry()
	log := logging.Noop()

	built, err := BuildSelected([]string{"all"}, cfg, log, reg)
	if err != nil {
		t.Fatalf("BuildSelected: %v", err)
	}
	if len(built) != 3 {
		t.Fatalf("got %d pipelines, want 3", len(built))
	}

	want := map[string]bool{"threaded": true, "hybrid": true, "eventloop": true}
	for _, p := range built {
		if !want[p.Name] {
			t.Fatalf("unexpected pipeline name %q", p.Name)
		}
		if p.Pipeline.StatusSnapshot()["server"] == nil {
			// not every pipeline guarantees this key, just confirm the
			// snapshot call doesn't panic on a freshly built server.
			_ = p.Pipeline.StatusSnapshot()
		}
	}
}

func TestBuildSelected_UnknownName(t *testing.T) {
	cfg := config.Default()
	reg := metrics.NewRegistry()
	log := logging.Noop()

	if _, err := BuildSelected([]string{"quantum"}, cfg, log, reg); err == nil {
		t.Fatal("expected an error for an unrecognized pipeline name")
	}
}
