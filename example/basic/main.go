package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	solardaq "github.com/IPrometheusI/solar-daq"
)

func main() {
	// Defaults keep the sink disabled; rows land under ./data/measurements.
	daemon, err := solardaq.New(solardaq.DefaultConfig(),
		solardaq.WithHardware(solardaq.NewSimulator()),
	)
	if err != nil {
		log.Fatalf("assemble daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("daemon exited: %v", err)
	}
}
