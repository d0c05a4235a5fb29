// Command echsd is the scheduling daemon: it holds one task table per
// process, arms a timer per task from its event stream, and checkpoints
// pending schedules to the queue directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"echse/internal/daemon"
	"echse/internal/logging"
	"echse/internal/queuedir"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "echsd",
		Short: "echse scheduling daemon",
	}

	var foreground bool
	var pidfile string
	var queueDirFlag string
	var helperPath string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, logger, foreground, pidfile, queueDirFlag, helperPath)
		},
	}
	runCmd.Flags().BoolVar(&foreground, "foreground", false, "stay attached to the controlling terminal")
	runCmd.Flags().StringVar(&pidfile, "pidfile", "", "write the daemon's pid to this path")
	runCmd.Flags().StringVar(&queueDirFlag, "queuedir", "", "queue directory root (default: platform spool)")
	runCmd.Flags().StringVar(&helperPath, "helper", "echswd", "path to the echswd execution helper")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func run(ctx context.Context, logger *slog.Logger, foreground bool, pidfile, queueDirFlag, helperPath string) error {
	qd, err := resolveQueueDir(queueDirFlag)
	if err != nil {
		return fmt.Errorf("resolve queue directory: %w", err)
	}
	if err := qd.EnsureExists(); err != nil {
		return err
	}
	logger.Info("queue directory", "path", qd.Root())

	if pidfile != "" {
		if err := os.WriteFile(pidfile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("write pidfile: %w", err)
		}
		defer os.Remove(pidfile)
	}
	if !foreground {
		logger.Info("running attached (daemonization is left to the service manager)")
	}

	d, err := daemon.New(daemon.Config{
		QueueDir:        qd,
		HelperPath:      helperPath,
		Logger:          logger,
		CheckpointEvery: 60 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("scanning queue directory for pending instructions")
	if err := d.ScanQueueDir(); err != nil {
		logger.Error("initial queue scan failed", "error", err)
	}

	sockPath := filepath.Join(qd.Root(), "echsd.sock")
	go func() {
		if err := d.ListenAndServe(ctx, sockPath); err != nil {
			logger.Error("listener stopped", "error", err)
		}
	}()

	return d.Run(ctx)
}

func resolveQueueDir(flagValue string) (queuedir.Dir, error) {
	if flagValue != "" {
		return queuedir.New(flagValue), nil
	}
	return queuedir.Default()
}
