package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ashureev/needle/internal/config"
	"github.com/ashureev/needle/internal/logging"
	"github.com/ashureev/needle/internal/server"
)

type launchFunc func(ctx context.Context, opts server.LaunchOptions) error

type serveFunc func(ctx context.Context, settings config.Settings, logger *slog.Logger, opts server.ServeOptions) error

// cli holds what the commands share. The launch and serve hooks are
// replaced in tests.
type cli struct {
	base   config.Settings
	launch launchFunc
	serve  serveFunc
	logOut io.Writer
}

func newCLI(base config.Settings) *cli {
	return &cli{
		base:   base,
		launch: server.Launch,
		serve:  server.Serve,
		logOut: os.Stdout,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "needle",
		Short:         "Chatbot web server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(c.startCmd(), c.runCmd(), c.serveCmd())
	return root
}

// setupLogging installs the process logger for s and returns a function
// releasing the log file.
func (c *cli) setupLogging(s config.Settings) (*slog.Logger, func(), error) {
	logger, closer, err := logging.New(logging.Options{
		Level:      s.LogLevel,
		Debug:      s.Debug,
		JSON:       !s.IsDevelopment(),
		File:       s.LogFile,
		MaxAgeDays: s.LogMaxAgeDays,
		Stdout:     c.logOut,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}
	slog.SetDefault(logger)
	return logger, func() { _ = closer.Close() }, nil
}

func (c *cli) startCmd() *cobra.Command {
	var (
		environment string
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Resolve the settings of an environment and start the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.ParseEnvironment(environment)
			if err != nil {
				return err
			}
			settings, err := config.Resolve(env, c.base)
			if err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, release, err := c.setupLogging(settings)
			if err != nil {
				return err
			}
			defer release()

			if err := config.WriteHandoff(settings.ConfigPath, settings.Handoff()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Starting the server on %s (%s)\n", settings.URI(), settings.Environment)
			logger.Info("Environment resolved",
				"environment", settings.Environment,
				"host", settings.Host,
				"port", settings.Port,
				"domain", settings.Domain,
			)

			return c.launch(cmd.Context(), server.LaunchOptions{
				Settings: settings,
				Workers:  workers,
				Env:      workerEnv(settings),
				Logger:   logger,
			})
		},
	}

	cmd.Flags().StringVar(&environment, "environment", string(c.base.Environment), "Environment to start (development, staging, production).")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of worker processes; 0 starts one per CPU.")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var workers int
	settings := c.base

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the server with explicit parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, release, err := c.setupLogging(settings)
			if err != nil {
				return err
			}
			defer release()

			fmt.Fprintf(cmd.OutOrStdout(), "Starting the server with host: '%s' and port: '%d'\n", settings.Host, settings.Port)
			logger.Info("Number of workers", "workers", server.EffectiveWorkers(workers), "max", runtime.NumCPU())

			if err := config.WriteHandoff(settings.ConfigPath, settings.Handoff()); err != nil {
				return err
			}

			return c.launch(cmd.Context(), server.LaunchOptions{
				Settings: settings,
				Workers:  workers,
				Env:      workerEnv(settings),
				Logger:   logger,
			})
		},
	}

	cmd.Flags().StringVar(&settings.Host, "host", c.base.Host, "Address on which the server should listen.")
	cmd.Flags().IntVar(&settings.Port, "port", c.base.Port, "Port on which the server should listen.")
	cmd.Flags().IntVar(&workers, "workers", 1, "Number of worker processes to use.")
	cmd.Flags().BoolVar(&settings.Debug, "debug", c.base.Debug, "Enable debug mode.")
	cmd.Flags().StringVar(&settings.LogLevel, "log-level", c.base.LogLevel, "Minimum log level.")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var reusePort bool
	settings := c.base

	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run one server worker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handoff, err := config.ReadHandoff(settings.ConfigPath)
			if err != nil {
				return err
			}
			worker := settings.WithHandoff(handoff)

			logger, release, err := c.setupLogging(worker)
			if err != nil {
				return err
			}
			defer release()

			logger.Info("Worker starting", "worker", os.Getenv("NEEDLE_WORKER_ID"), "pid", os.Getpid())
			return c.serve(cmd.Context(), worker, logger, server.ServeOptions{ReusePort: reusePort})
		},
	}

	cmd.Flags().StringVar(&settings.Host, "host", c.base.Host, "Address on which the server should listen.")
	cmd.Flags().IntVar(&settings.Port, "port", c.base.Port, "Port on which the server should listen.")
	cmd.Flags().StringVar(&settings.ConfigPath, "config", c.base.ConfigPath, "Hand-off file written by the launcher.")
	cmd.Flags().BoolVar(&reusePort, "reuse-port", false, "Bind with SO_REUSEPORT to share the port with sibling workers.")
	return cmd
}

// workerEnv passes the resolved environment and domain to worker processes,
// which rebuild the rest of their settings from the process environment.
func workerEnv(s config.Settings) []string {
	return []string{
		"ENVIRONMENT=" + string(s.Environment),
		"DOMAIN=" + s.Domain,
	}
}
