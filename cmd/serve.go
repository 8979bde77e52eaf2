package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ajoudaki/scheduler/internal/config"
	"github.com/ajoudaki/scheduler/internal/controlloop"
	"github.com/ajoudaki/scheduler/internal/handlers"
	"github.com/ajoudaki/scheduler/internal/output"
	"github.com/ajoudaki/scheduler/internal/probe"
	"github.com/ajoudaki/scheduler/internal/scheduler"
	"github.com/ajoudaki/scheduler/internal/supervisor"
)

// ServeCommand runs the scheduler daemon, grounded on the teacher's
// cmd.ServeCommand (cmd/serve.go): a single "serve" cli.Command whose
// flags bind directly into package config vars via Destination.
var ServeCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the GPU scheduler daemon",
	Flags: serveFlags,
	Action: func(cliCtx *cli.Context) error {
		return Serve(cliCtx)
	},
}

var serveFlags = []cli.Flag{
	&cli.StringFlag{
		Name:        "config",
		Usage:       "Path to an optional YAML config file",
		Destination: &config.ConfigFile,
		EnvVars:     []string{"GPU_SCHEDULER_CONFIG_FILE"},
	},
	&cli.IntFlag{
		Name:        "port",
		Value:       config.Port,
		Usage:       "Port to expose the HTTP control API on",
		Destination: &config.Port,
		EnvVars:     []string{"GPU_SCHEDULER_PORT"},
	},
	&cli.IntFlag{
		Name:        "poll-interval",
		Value:       config.PollIntervalSeconds,
		Usage:       "Control loop tick interval, in seconds",
		Destination: &config.PollIntervalSeconds,
		EnvVars:     []string{"GPU_SCHEDULER_POLL_INTERVAL"},
	},
	&cli.IntFlag{
		Name:        "min-free-memory",
		Value:       config.MinFreeMemoryMB,
		Usage:       "Minimum free GPU memory, in MB, for a GPU to be considered available",
		Destination: &config.MinFreeMemoryMB,
		EnvVars:     []string{"GPU_SCHEDULER_MIN_FREE_MEMORY"},
	},
	&cli.IntFlag{
		Name:        "max-gpu-util",
		Value:       config.MaxGPUUtilPct,
		Usage:       "Maximum GPU utilization percentage for a GPU to be considered available",
		Destination: &config.MaxGPUUtilPct,
		EnvVars:     []string{"GPU_SCHEDULER_MAX_GPU_UTIL"},
	},
	&cli.StringFlag{
		Name:        "output-root",
		Value:       config.OutputRoot,
		Usage:       "Root directory for per-job stdout/stderr capture",
		Destination: &config.OutputRoot,
		EnvVars:     []string{"GPU_SCHEDULER_OUTPUT_ROOT"},
	},
	&cli.StringFlag{
		Name:        "gpu-query-path",
		Value:       config.GPUQueryPath,
		Usage:       "Path to the gpu-query probe executable",
		Destination: &config.GPUQueryPath,
		EnvVars:     []string{"GPU_SCHEDULER_GPU_QUERY_PATH"},
	},
	&cli.StringFlag{
		Name:        "log-level",
		Value:       config.LogLevel,
		Usage:       "Log level (debug, info, warn, error)",
		Destination: &config.LogLevel,
		EnvVars:     []string{"GPU_SCHEDULER_LOG_LEVEL"},
	},
}

// Serve wires together every component and blocks until SIGINT/SIGTERM.
func Serve(cliCtx *cli.Context) error {
	if config.ConfigFile != "" {
		fc, err := config.LoadFile(config.ConfigFile)
		if err != nil {
			return err
		}
		config.ApplyFileDefaults(fc, cliCtx.IsSet)
	}

	logger := logging.Log
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	// Refuse to start without the GPU probe binary, matching the original
	// daemon's run_server() check (shutil.which("nvidia-smi")) per spec.md §7.
	if _, err := exec.LookPath(config.GPUQueryPath); err != nil {
		return fmt.Errorf("gpu probe binary %q not found on PATH: %w", config.GPUQueryPath, err)
	}

	outStore, err := output.NewStore(config.OutputRoot)
	if err != nil {
		return err
	}

	engine := scheduler.New(nil, logger)
	runner := supervisor.NewProcessRunner(logger)
	dispatcher := supervisor.NewDispatcher(engine, runner, outStore, logger, config.LaunchConcurrency)
	poller := probe.NewPoller(config.GPUQueryPath, 10*time.Second, logger)

	loop := controlloop.New(engine, poller, dispatcher, controlloop.Config{
		PollInterval:    time.Duration(config.PollIntervalSeconds) * time.Second,
		MinFreeMemoryMB: config.MinFreeMemoryMB,
		MaxGPUUtilPct:   config.MaxGPUUtilPct,
	}, logger)

	monitor, err := controlloop.NewResourceMonitor(30*time.Second, logger)
	if err != nil {
		logger.WithError(err).Warn("self resource monitor unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	if monitor != nil {
		go monitor.Run(ctx)
	}

	router := handlers.NewRouter(engine, dispatcher, outStore, logger)
	server := &http.Server{Addr: formatAddr(config.Port), Handler: router}

	go func() {
		logger.Infof("starting HTTP control API on port %d", config.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server exited with error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping daemon")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	if monitor != nil {
		monitor.Stop()
	}
	loop.Stop()
	cancel()

	logger.Info("scheduler shutdown complete")
	return nil
}

func formatAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
