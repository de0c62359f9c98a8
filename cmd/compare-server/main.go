// Command compare-server runs and benchmarks the Threaded, Hybrid, and
// EventLoop HTTP pipelines behind one CLI, per spec.md §6's external
// interface and its CLI expansion in SPEC_FULL.md §4.9.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
