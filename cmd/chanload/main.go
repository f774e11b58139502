package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/conduit/pkg/config"
	"github.com/fluxorio/conduit/pkg/loadtest"
	"github.com/fluxorio/conduit/pkg/observability/prometheus"
)

func main() {
	configPath := flag.String("config", "", "path to a scenario file (YAML or JSON)")
	flag.Parse()

	scenario, err := config.LoadScenario(*configPath)
	if err != nil {
		logrus.Fatalf("Invalid scenario: %v", err)
	}

	level, err := logrus.ParseLevel(scenario.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	runner := loadtest.NewRunner(scenario)

	// Serve /metrics and /healthz while the run is active
	var server *fasthttp.Server
	if scenario.Metrics.Enabled {
		collector := prometheus.NewChannelCollector(runner.Snapshot)
		if err := prometheus.DefaultRegistry.Register(collector); err != nil {
			logrus.Fatalf("Failed to register channel collector: %v", err)
		}

		server = newMetricsServer()
		addr := scenario.Metrics.Addr
		go func() {
			logrus.Infof("Serving metrics on %s", addr)
			if err := server.ListenAndServe(addr); err != nil {
				logrus.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	// Stop the run on Ctrl-C or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := runner.Run(ctx)

	if server != nil {
		if err := server.Shutdown(); err != nil {
			logrus.Errorf("Metrics server shutdown error: %v", err)
		}
	}

	printSummary(result)

	if runErr != nil {
		logrus.Errorf("Run failed: %v", runErr)
		os.Exit(1)
	}
}

func newMetricsServer() *fasthttp.Server {
	metricsHandler := prometheus.Handler()
	handler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/metrics":
			metricsHandler(ctx)
		case "/healthz":
			ctx.SetContentType("application/json")
			json.NewEncoder(ctx).Encode(map[string]interface{}{"status": "ok"})
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	return &fasthttp.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func printSummary(res *loadtest.Result) {
	fmt.Printf("run %s  scenario=%s flavor=%s\n", res.RunID, res.Scenario, res.Flavor)
	fmt.Printf("  produced:  %d messages\n", res.Produced)
	fmt.Printf("  consumed:  %d messages, %d bytes (%.0f msg/s)\n", res.Consumed, res.Bytes, res.Throughput())
	fmt.Printf("  timeouts:  %d send, %d recv\n", res.SendTimeouts, res.RecvTimeouts)
	fmt.Printf("  conserved: %v\n", res.Conserved)
	fmt.Printf("  elapsed:   %s\n", res.Elapsed.Round(time.Millisecond))
	if res.CorruptSamples > 0 {
		fmt.Printf("  corrupt:   %d sampled payloads\n", res.CorruptSamples)
	}
}
