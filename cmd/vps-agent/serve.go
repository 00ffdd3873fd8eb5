package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Mikeyy1405/Writgoai.nl/internal/config"
	agenterrors "github.com/Mikeyy1405/Writgoai.nl/internal/errors"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm"
	"github.com/Mikeyy1405/Writgoai.nl/internal/llm/router"
	"github.com/Mikeyy1405/Writgoai.nl/internal/logging"
	"github.com/Mikeyy1405/Writgoai.nl/internal/observability"
	"github.com/Mikeyy1405/Writgoai.nl/internal/sandbox"
	"github.com/Mikeyy1405/Writgoai.nl/internal/server"
	"github.com/Mikeyy1405/Writgoai.nl/internal/task"
	"github.com/Mikeyy1405/Writgoai.nl/internal/version"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("main")

	tracerProvider, err := observability.NewTracerProvider(cfg.Tracing())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Warn("Tracer shutdown: %v", err)
		}
	}()

	metrics, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: cfg.MetricsEnabled})
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	table, err := cfg.ModelTable()
	if err != nil {
		return err
	}
	modelRouter := router.New(table)

	baseClient, err := llm.NewOpenAIClient(modelRouter.ModelFor(router.TierDefault), llm.Config{
		APIKey:  cfg.AIMLAPIKey,
		BaseURL: cfg.AIMLBaseURL,
	})
	if err != nil {
		return fmt.Errorf("init gateway client: %w", err)
	}
	client := llm.NewRetryClient(baseClient,
		agenterrors.DefaultRetryConfig(),
		agenterrors.NewCircuitBreaker("aiml-gateway", agenterrors.DefaultCircuitBreakerConfig()))

	docker := sandbox.NewDockerClient()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := docker.Ping(pingCtx); err != nil {
		// Tasks will fail until the daemon comes up; health reports it.
		logger.Warn("Docker daemon not reachable: %v", err)
	}
	cancelPing()

	notifier := task.NewNotifier(task.NotifierConfig{
		BaseURL: cfg.WritgoAPIURL,
		Secret:  cfg.WritgoWebhookSecret,
	}, metrics)

	service := task.NewService(task.Config{
		WorkspaceRoot:      cfg.WorkspaceRoot,
		MaxIterations:      cfg.MaxIterations,
		MaxConcurrentTasks: cfg.MaxConcurrentTasks,
		EvictionGrace:      cfg.TaskEvictionGrace,
		Sandbox:            cfg.Sandbox(),
	}, client, modelRouter, docker, notifier, metrics)

	srv := server.New(server.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		Secret:         cfg.WritgoWebhookSecret,
		MetricsEnabled: cfg.MetricsEnabled,
	}, service)

	printBanner(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func printBanner(cfg *config.Config) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s %s\n", bold("vps-agent"), gray("v"+version.Version))
	fmt.Printf("  %s  %s:%d\n", cyan("listen"), cfg.Host, cfg.Port)
	fmt.Printf("  %s %s\n", cyan("gateway"), cfg.AIMLBaseURL)
	fmt.Printf("  %s %s\n", cyan("sandbox"), cfg.SandboxImage)
	fmt.Printf("  %s   %d concurrent, %d iterations max\n", cyan("tasks"), cfg.MaxConcurrentTasks, cfg.MaxIterations)
	if cfg.WritgoAPIURL != "" {
		fmt.Printf("  %s %s\n", cyan("webhook"), cfg.WritgoAPIURL)
	} else {
		fmt.Printf("  %s %s\n", cyan("webhook"), gray("disabled"))
	}
}
