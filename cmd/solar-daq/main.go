package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	solardaq "github.com/IPrometheusI/solar-daq"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("solar-daq %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to daemon configuration file")
	simulate := fs.Bool("simulate", false, "Force simulated hardware even when a config is present")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := solardaq.LoadConfig(*cfgPath)
	if err != nil {
		if !os.IsNotExist(err) || !*simulate {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = solardaq.DefaultConfig()
	}

	var opts []solardaq.Option
	if *simulate {
		opts = append(opts, solardaq.WithHardware(solardaq.NewSimulator()))
	}

	daemon, err := solardaq.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := solardaq.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"solar_daq_rows_written_total":        0,
		"solar_daq_points_sent_total":         0,
		"solar_daq_points_dropped_total":      0,
		"solar_daq_daily_file_size_bytes":     0,
		"solar_daq_sink_consecutive_failures": 0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] rows=%.0f sent=%.0f dropped=%.0f file_bytes=%.0f sink_failures=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["solar_daq_rows_written_total"],
		targets["solar_daq_points_sent_total"],
		targets["solar_daq_points_dropped_total"],
		targets["solar_daq_daily_file_size_bytes"],
		targets["solar_daq_sink_consecutive_failures"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`solar-daq CLI

Usage:
  solar-daq <command> [flags]

Commands:
  run        Start the acquisition daemon using the provided config
  validate   Load and validate a config file without starting the daemon
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  solar-daq run -config ./data/config.yaml
  solar-daq run -simulate
  solar-daq validate -config ./data/config.yaml
  solar-daq stats -url http://localhost:9100/metrics -interval 1s
`)
}
