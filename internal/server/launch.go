package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ashureev/needle/internal/config"
)

// LaunchOptions configures Launch.
type LaunchOptions struct {
	Settings config.Settings

	// Workers is the number of server processes. Values below one start
	// one worker per CPU.
	Workers int

	// Executable is the binary started for each worker. Defaults to the
	// running executable.
	Executable string

	// Env is appended to the environment of every worker.
	Env []string

	Logger *slog.Logger
}

// EffectiveWorkers resolves a requested worker count.
func EffectiveWorkers(n int) int {
	if n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// Launch runs the server. A single worker is served in-process; more
// workers are started as "serve --reuse-port" child processes that share
// the port and read their settings from the hand-off file. Children are
// sent SIGTERM when ctx ends.
func Launch(ctx context.Context, opts LaunchOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workers := EffectiveWorkers(opts.Workers)
	if workers == 1 {
		return Serve(ctx, opts.Settings, logger, ServeOptions{})
	}

	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
	}

	// One failing worker stops the others.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("Starting workers", "workers", workers, "addr", opts.Settings.Addr())

	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)
	for i := range workers {
		cmd := workerCommand(ctx, exe, opts, i)
		if err := cmd.Start(); err != nil {
			cancel()
			mu.Lock()
			result = multierror.Append(result, fmt.Errorf("start worker %d: %w", i, err))
			mu.Unlock()
			break
		}
		logger.Info("Worker started", "worker", i, "pid", cmd.Process.Pid)

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := cmd.Wait()
			if err != nil && !stoppedBySignal(ctx, err) {
				logger.Error("Worker exited", "worker", i, "error", err)
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("worker %d: %w", i, err))
				mu.Unlock()
				cancel()
				return
			}
			logger.Info("Worker stopped", "worker", i)
		}()
	}

	wg.Wait()
	return result.ErrorOrNil()
}

func workerCommand(ctx context.Context, exe string, opts LaunchOptions, i int) *exec.Cmd {
	s := opts.Settings
	cmd := exec.CommandContext(ctx, exe,
		"serve",
		"--host", s.Host,
		"--port", strconv.Itoa(s.Port),
		"--config", s.ConfigPath,
		"--reuse-port",
	)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Env = append(cmd.Env, "NEEDLE_WORKER_ID="+strconv.Itoa(i))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = shutdownTimeout + 5*time.Second
	return cmd
}

// stoppedBySignal reports whether a worker ended because Launch asked it to.
func stoppedBySignal(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return errors.Is(err, context.Canceled)
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return status.Signal() == syscall.SIGTERM
	}
	return false
}
