// Command healthcheck is the container health probe. It reads the monitor's
// heartbeat file and exits 0 when the last completed poll cycle is within the
// staleness threshold, 1 otherwise. The container runtime's start period
// covers the window before the first heartbeat exists.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/uks-watch/flats-monitor/internal/config"
	"github.com/uks-watch/flats-monitor/internal/health"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: load config: %v\n", err)
		return 1
	}

	ok, err := health.Probe(cfg.HeartbeatPath, cfg.StalenessThreshold, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "healthcheck: last cycle older than %s\n", cfg.StalenessThreshold)
		return 1
	}
	return 0
}
